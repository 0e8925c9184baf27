package anchor

import "errors"

// Error taxonomy per spec.md §7. The lifecycle classifies every error it
// receives from the chain or the store into one of these buckets so the
// drive loop can decide whether to retry, abort-before-broadcast, or log
// and continue — rather than silently mapping every error to "pending",
// which is the behavior the Rust source's
// `unwrap_or_default()` TODO left ambiguous.
var (
	// ErrTransientChain wraps an RPC failure or timeout talking to the
	// settlement chain. Never fatal: the current drive is abandoned, the
	// head returns to the front of the queue, and the next tick retries.
	ErrTransientChain = errors.New("anchor: transient settlement chain error")

	// ErrStoreSave wraps a failure persisting a new TransactionRecord
	// before broadcast. The drive aborts before anything is sent; nothing
	// was broadcast, so the invariant in spec.md §4.3 Step C holds.
	ErrStoreSave = errors.New("anchor: failed to persist transaction record")

	// ErrStoreConfirm wraps a failure marking a transaction confirmed
	// after it was already observed committed on-chain. The head stays at
	// the front of the queue; the next tick re-observes Committed and
	// retries the confirm. confirm_eth_tx must therefore be idempotent.
	ErrStoreConfirm = errors.New("anchor: failed to mark transaction confirmed")

	// ErrChainTxFailed marks a transaction the chain reports as reverted.
	// Not fatal at this layer: the failed attempt never blocks the
	// operation, and a replacement is broadcast in the same drive, priced
	// as if the failed attempt were stuck.
	ErrChainTxFailed = errors.New("anchor: settlement chain reported transaction failure")

	// ErrInvariantViolation marks a condition the chain/store should never
	// produce absent a programming bug elsewhere (e.g. a failed status
	// with no receipt). Per spec.md §7, this is the one class that should
	// escalate to process-level abort rather than being retried.
	ErrInvariantViolation = errors.New("anchor: invariant violation")
)
