package anchor

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SignedTx is a serialized, signer-authorized contract call.
//
// Invariant: (Nonce, GasPrice) is sufficient to identify a replacement
// candidate on the settlement chain.
type SignedTx struct {
	Hash     common.Hash
	Nonce    uint64
	GasPrice *big.Int
	RawBytes []byte
}

// TransactionRecord binds a SignedTx to the operation it anchors.
// DeadlineBlock is the settlement-chain block height beyond which the tx is
// considered stuck.
type TransactionRecord struct {
	OpID          uint64
	SignedTx      SignedTx
	DeadlineBlock uint64
	// Confirmed is store-side bookkeeping: true once
	// OperationStore.ConfirmEthTx has recorded this attempt as the one
	// that committed the operation. The anchor's own lifecycle logic
	// never reads this field; it exists so OperationStore
	// implementations can answer LoadUnconfirmedOperations.
	Confirmed bool
}

// IsStuck reports whether the record's deadline has passed at the given
// chain height.
func (r TransactionRecord) IsStuck(currentBlock uint64) bool {
	return currentBlock > r.DeadlineBlock
}

// OperationState binds an Operation to the ordered, append-only sequence of
// broadcast attempts made on its behalf. All Txs target the same Operation
// and encode the same logical call; they may differ in nonce/gas price
// (replacements).
type OperationState struct {
	Operation Operation
	Txs       []TransactionRecord
}

// LastTx returns the most recently broadcast transaction record, if any.
func (s *OperationState) LastTx() (TransactionRecord, bool) {
	if len(s.Txs) == 0 {
		return TransactionRecord{}, false
	}
	return s.Txs[len(s.Txs)-1], true
}

// TxCheckOutcome is the ephemeral classification of a single transaction
// record's on-chain status.
type TxCheckOutcome int

const (
	TxPending TxCheckOutcome = iota
	TxCommitted
	TxStuck
	TxFailed
)

func (o TxCheckOutcome) String() string {
	switch o {
	case TxPending:
		return "Pending"
	case TxCommitted:
		return "Committed"
	case TxStuck:
		return "Stuck"
	case TxFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// OperationCommitment is the ephemeral result of driving an OperationState
// through one TxLifecycle tick.
type OperationCommitment int

const (
	CommitmentPending OperationCommitment = iota
	CommitmentCommitted
)
