package anchor

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/log"
)

// LifecycleConfig carries the tunables of the tx lifecycle policy. It is
// threaded through construction rather than kept as process-wide mutable
// state (spec.md §9 design note).
type LifecycleConfig struct {
	// ExpectedWaitTimeBlocks is added to the current block height to
	// compute a new transaction's deadline block. Default 30.
	ExpectedWaitTimeBlocks uint64
	// WaitConfirmations is the number of confirmations a successful tx
	// needs before it is treated as Committed. Default 1.
	WaitConfirmations uint64
	// GasPriceScaleNum/Den is the replacement gas-price floor multiplier,
	// applied as ceil(oldGasPrice * Num / Den). Default 115/100.
	GasPriceScaleNum uint64
	GasPriceScaleDen uint64
}

// DefaultLifecycleConfig returns the spec.md §6 defaults.
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		ExpectedWaitTimeBlocks: 30,
		WaitConfirmations:      1,
		GasPriceScaleNum:       115,
		GasPriceScaleDen:       100,
	}
}

// TxLifecycle is the pure policy that decides, given an operation's tx
// history and the current chain state, whether to wait, replace, or
// finalize. It holds no per-operation state of its own; all state lives in
// the OperationState passed to Drive.
type TxLifecycle struct {
	cfg     LifecycleConfig
	chain   SettlementChain
	store   OperationStore
	log     log.Logger
	metrics AnchorMetrics
}

// NewTxLifecycle constructs a TxLifecycle against the given settlement
// chain and store.
func NewTxLifecycle(cfg LifecycleConfig, chain SettlementChain, store OperationStore, logger log.Logger, metrics AnchorMetrics) *TxLifecycle {
	if logger == nil {
		logger = log.Root()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &TxLifecycle{cfg: cfg, chain: chain, store: store, log: logger, metrics: metrics}
}

// checkTransactionState classifies a single transaction record against the
// current chain height, per the table in spec.md §4.3 Step A.
func (l *TxLifecycle) checkTransactionState(ctx context.Context, tx TransactionRecord, currentBlock uint64) (TxCheckOutcome, *TxStatus, error) {
	status, err := l.chain.GetTxStatus(ctx, tx.SignedTx.Hash)
	if err != nil {
		return TxPending, nil, fmt.Errorf("%w: get_tx_status: %v", ErrTransientChain, err)
	}

	switch {
	case status == nil && tx.IsStuck(currentBlock):
		return TxStuck, nil, nil
	case status == nil:
		return TxPending, nil, nil
	case status.Success && status.Confirmations >= l.cfg.WaitConfirmations:
		return TxCommitted, status, nil
	case status.Success:
		return TxPending, status, nil
	default:
		if status.Receipt == nil {
			return TxFailed, status, fmt.Errorf("%w: receipt missing for failed transaction %s", ErrInvariantViolation, tx.SignedTx.Hash)
		}
		return TxFailed, status, nil
	}
}

// Drive performs exactly one tick of the policy against op: inspect the
// history of broadcast attempts (Step A), and if none are pending or
// committed, broadcast one new attempt (Steps B and C).
//
// Errors returned are always one of the taxonomy in errors.go. Anchor
// treats every error except ErrInvariantViolation as CommitmentPending (the
// current drive is abandoned and retried next tick); ErrInvariantViolation
// is escalated to a panic by Anchor.driveHead.
func (l *TxLifecycle) Drive(ctx context.Context, op *OperationState) (OperationCommitment, error) {
	currentBlock, err := l.chain.BlockNumber(ctx)
	if err != nil {
		return CommitmentPending, fmt.Errorf("%w: block_number: %v", ErrTransientChain, err)
	}

	var lastStuckTx *TransactionRecord
	for i := range op.Txs {
		tx := op.Txs[i]
		outcome, status, err := l.checkTransactionState(ctx, tx, currentBlock)
		if err != nil {
			// Abandon this drive and let the caller decide what to do with
			// err: Anchor.driveHead distinguishes ErrInvariantViolation
			// (a programming bug, escalated to a process-level panic) from
			// every other error (transient, retried next tick). Drive
			// itself never special-cases the error beyond returning it
			// unwrapped of any queue/commitment decision.
			return CommitmentPending, err
		}

		switch outcome {
		case TxPending:
			// An earlier in-flight tx dominates later replacements.
			return CommitmentPending, nil

		case TxCommitted:
			l.log.Info("operation committed on settlement chain",
				"op_id", op.Operation.ID, "action", op.Operation.Action, "block", op.Operation.Block.BlockNumber,
				"tx", tx.SignedTx.Hash)
			if cerr := l.store.ConfirmEthTx(ctx, tx.SignedTx.Hash); cerr != nil {
				return CommitmentPending, fmt.Errorf("%w: %v", ErrStoreConfirm, cerr)
			}
			return CommitmentCommitted, nil

		case TxStuck:
			// The latest broadcast carries the highest gas price, so a
			// later Stuck observation overwrites an earlier one.
			stuck := tx
			lastStuckTx = &stuck

		case TxFailed:
			l.metrics.TxFailed()
			l.log.Warn("settlement chain transaction failed",
				"op_id", op.Operation.ID, "tx", tx.SignedTx.Hash, "receipt", status.Receipt,
				"err", fmt.Errorf("%w: %s", ErrChainTxFailed, tx.SignedTx.Hash))
			// Best-effort replace: failure is not fatal at this layer.
			// A failed attempt never blocks the operation; it is
			// re-checked on each drive, and the replacement's options
			// are derived from it as if it were stuck.
			failed := tx
			lastStuckTx = &failed
		}
	}

	// Reaching this point means no tx was Pending or Committed: either
	// there were no prior attempts, or the latest one is stuck or failed.
	deadlineBlock := currentBlock + l.cfg.ExpectedWaitTimeBlocks
	opts, err := l.nextCallOptions(ctx, lastStuckTx)
	if err != nil {
		return CommitmentPending, fmt.Errorf("%w: %v", ErrTransientChain, err)
	}

	signed, err := l.chain.SignCallTx(ctx, op.Operation, opts)
	if err != nil {
		return CommitmentPending, fmt.Errorf("%w: sign_call_tx: %v", ErrTransientChain, err)
	}

	record := TransactionRecord{
		OpID:          op.Operation.ID,
		SignedTx:      signed,
		DeadlineBlock: deadlineBlock,
	}

	// Durable-before-wire: persist before broadcasting. A crash between
	// persist and broadcast is safe (recovery re-broadcasts an idempotent
	// tx); a crash between broadcast and persist would orphan a live tx,
	// which is forbidden.
	if err := l.store.SaveOperationEthTx(ctx, record.OpID, record.SignedTx.Hash, record.DeadlineBlock, record.SignedTx.Nonce, record.SignedTx.GasPrice, record.SignedTx.RawBytes); err != nil {
		return CommitmentPending, fmt.Errorf("%w: %v", ErrStoreSave, err)
	}

	op.Txs = append(op.Txs, record)

	l.log.Info("broadcasting transaction for operation",
		"op_id", op.Operation.ID, "tx", record.SignedTx.Hash, "gas_price", record.SignedTx.GasPrice, "nonce", record.SignedTx.Nonce)

	if err := l.chain.SendTx(ctx, record.SignedTx); err != nil {
		return CommitmentPending, fmt.Errorf("%w: send_tx: %v", ErrTransientChain, err)
	}

	return CommitmentPending, nil
}

// nextCallOptions derives the options for the next broadcast attempt. With
// no stuck predecessor, it defers entirely to the chain/signer defaults
// (CallOptions{}). With a stuck predecessor, it computes a replacement gas
// price at least GasPriceScaleNum/Den above the old one, floored by the
// current network price, and re-queries the signer's current nonce.
func (l *TxLifecycle) nextCallOptions(ctx context.Context, stuckTx *TransactionRecord) (CallOptions, error) {
	if stuckTx == nil {
		return CallOptions{}, nil
	}

	networkPrice, err := l.chain.GasPrice(ctx)
	if err != nil {
		return CallOptions{}, fmt.Errorf("gas_price: %w", err)
	}
	nonce, err := l.chain.CurrentNonce(ctx)
	if err != nil {
		return CallOptions{}, fmt.Errorf("current_nonce: %w", err)
	}

	replacementPrice := scaleGasPrice(stuckTx.SignedTx.GasPrice, l.cfg.GasPriceScaleNum, l.cfg.GasPriceScaleDen)
	newGasPrice := replacementPrice
	if networkPrice.Cmp(newGasPrice) > 0 {
		newGasPrice = networkPrice
	}

	l.log.Info("replacing stuck transaction",
		"old_hash", stuckTx.SignedTx.Hash, "old_gas_price", stuckTx.SignedTx.GasPrice,
		"new_gas_price", newGasPrice, "old_nonce", stuckTx.SignedTx.Nonce, "new_nonce", nonce)

	return CallOptions{Nonce: nonce, GasPrice: newGasPrice}, nil
}

// scaleGasPrice computes ceil(old * num / den) with a wide accumulator so
// scaling never overflows and, since gas prices are strictly positive,
// never rounds to zero.
func scaleGasPrice(old *big.Int, num, den uint64) *big.Int {
	scaled := new(big.Int).Mul(old, new(big.Int).SetUint64(num))
	denom := new(big.Int).SetUint64(den)
	quo, rem := new(big.Int).QuoRem(scaled, denom, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}
