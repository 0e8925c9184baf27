package anchor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OperationStore is the durable record of operations and their broadcast
// attempts. The anchor's in-memory pendingQueue is a working cache rebuilt
// from the store at startup; the store is the source of truth for
// recovery.
type OperationStore interface {
	// LoadUnconfirmedOperations returns every (Operation, []TransactionRecord)
	// pair that has not yet been confirmed, ordered by OpID ascending.
	LoadUnconfirmedOperations(ctx context.Context) ([]OperationState, error)

	// SaveOperationEthTx durably persists a new TransactionRecord. Must
	// return only once the write is durable; the anchor broadcasts the
	// transaction only after this call succeeds (durable-before-wire,
	// spec.md §4.3 Step C).
	SaveOperationEthTx(ctx context.Context, opID uint64, hash common.Hash, deadlineBlock uint64, nonce uint64, gasPrice *big.Int, rawBytes []byte) error

	// ConfirmEthTx marks the broadcast attempt identified by hash as the
	// one that committed the operation. Must be idempotent: the anchor
	// may call it more than once for the same hash after a retried
	// confirm.
	ConfirmEthTx(ctx context.Context, hash common.Hash) error
}
