package anchor

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxStatus is the settlement chain's report on a single broadcast
// transaction. A nil TxStatus means "not yet mined or unknown".
type TxStatus struct {
	Success       bool
	Confirmations uint64
	// Receipt is required to be non-nil when Success is false.
	Receipt *types.Receipt
}

// CallOptions carries the nonce/gas-price overrides used to sign a
// replacement transaction. A zero value means "let the chain/signer pick
// defaults", mirroring web3's Options::default() in the Rust source.
type CallOptions struct {
	Nonce    *big.Int
	GasPrice *big.Int
}

// SettlementChain is the capability set the anchor consumes from the
// external, probabilistic-finality chain it anchors operations to. It is a
// capability set, not a concrete client, so that the anchor can be driven
// against a deterministic fake in tests and against a real
// ethclient.Client-backed implementation in production (see
// internal/ethchain.Client).
type SettlementChain interface {
	// BlockNumber returns the current settlement-chain block height.
	BlockNumber(ctx context.Context) (uint64, error)
	// CurrentNonce returns the signer's current nonce as reported by the
	// chain.
	CurrentNonce(ctx context.Context) (*big.Int, error)
	// GasPrice returns the network-suggested gas price.
	GasPrice(ctx context.Context) (*big.Int, error)
	// GetTxStatus returns nil if the transaction is not yet mined or
	// unknown to the chain.
	GetTxStatus(ctx context.Context, hash common.Hash) (*TxStatus, error)
	// SignCallTx signs a contract call into a SignedTx without
	// broadcasting it.
	SignCallTx(ctx context.Context, op Operation, opts CallOptions) (SignedTx, error)
	// SendTx broadcasts a previously signed transaction. Idempotent with
	// respect to re-broadcast of the same raw bytes.
	SendTx(ctx context.Context, tx SignedTx) error
	// SignAndSendCompleteWithdrawals signs and broadcasts a
	// completeWithdrawals(n) call with default options. Fire-and-forget:
	// its own confirmation is not tracked by the anchor.
	SignAndSendCompleteWithdrawals(ctx context.Context, n uint32) error
}
