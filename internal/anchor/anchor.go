package anchor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Config carries the anchor loop's tunables, threaded through construction
// rather than kept as process-wide mutable state.
type Config struct {
	Lifecycle LifecycleConfig
	// TxPollPeriod is the driver tick interval. Default 5s.
	TxPollPeriod time.Duration
	// MaxWithdrawalsToCompleteInACall is the argument passed to the
	// post-verify completeWithdrawals call.
	MaxWithdrawalsToCompleteInACall uint32
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		Lifecycle:                       DefaultLifecycleConfig(),
		TxPollPeriod:                    5 * time.Second,
		MaxWithdrawalsToCompleteInACall: 0,
	}
}

// Anchor is the cooperative single-task loop that drains inbound
// operations, ticks on a polling interval, and drives the head operation
// through TxLifecycle, per spec.md §4.2.
type Anchor struct {
	cfg       Config
	chain     SettlementChain
	store     OperationStore
	lifecycle *TxLifecycle
	log       log.Logger

	inbound  <-chan Operation
	outbound chan<- Operation

	queue *pendingQueue

	metrics AnchorMetrics
}

// AnchorMetrics is the narrow set of counters/gauges the loop reports to.
// A nil-safe no-op implementation is used if none is supplied.
type AnchorMetrics interface {
	QueueDepth(n int)
	TxBroadcast()
	TxReplaced()
	OperationCommitted(action ActionType)
	TxFailed()
}

type noopMetrics struct{}

func (noopMetrics) QueueDepth(int)                {}
func (noopMetrics) TxBroadcast()                  {}
func (noopMetrics) TxReplaced()                   {}
func (noopMetrics) OperationCommitted(ActionType) {}
func (noopMetrics) TxFailed()                     {}

// New constructs an Anchor. inbound is drained non-blockingly each
// iteration; outbound receives a notification after each Verify operation
// commits (best-effort: if the channel is full the notification is dropped
// with a warning; sending on a closed outbound channel panics).
func New(cfg Config, chain SettlementChain, store OperationStore, inbound <-chan Operation, outbound chan<- Operation, logger log.Logger, metrics AnchorMetrics) *Anchor {
	if logger == nil {
		logger = log.Root()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Anchor{
		cfg:       cfg,
		chain:     chain,
		store:     store,
		lifecycle: NewTxLifecycle(cfg.Lifecycle, chain, store, logger, metrics),
		log:       logger,
		inbound:   inbound,
		outbound:  outbound,
		queue:     newPendingQueue(),
		metrics:   metrics,
	}
}

// Recover loads all non-confirmed operations from the store and rebuilds
// the pending queue in op_id order, equivalent to the queue the process
// would have had it never crashed (spec.md §4.5). Call before Run.
func (a *Anchor) Recover(ctx context.Context) error {
	states, err := a.store.LoadUnconfirmedOperations(ctx)
	if err != nil {
		// A fresh deployment has no state; treat a store error on this
		// read as "no unconfirmed operations" (spec.md §7).
		a.log.Info("no unconfirmed operations to recover", "err", err)
		return nil
	}
	for i := range states {
		state := states[i]
		a.queue.pushBack(&state)
	}
	a.log.Info("recovered pending operations", "count", a.queue.len())
	return nil
}

// Run executes the anchor loop until ctx is cancelled. Per iteration:
// drain the inbound channel non-blockingly, wait for the next tick, then
// drive the head operation through TxLifecycle.
func (a *Anchor) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TxPollPeriod)
	defer ticker.Stop()

	for {
		a.drainInbound()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		a.driveHead(ctx)
	}
}

// drainInbound non-blockingly moves every operation currently buffered on
// the inbound channel into the tail of the pending queue. Draining before
// waiting on the first tick lets new operations enqueue promptly on
// startup, without waiting a full period when the queue would otherwise be
// empty.
func (a *Anchor) drainInbound() {
	for {
		select {
		case op, ok := <-a.inbound:
			if !ok {
				a.inbound = nil
				return
			}
			a.queue.pushBack(&OperationState{Operation: op})
		default:
			a.metrics.QueueDepth(a.queue.len())
			return
		}
	}
}

// driveHead pops the head of the queue (if any), drives it through one
// lifecycle tick, and either emits the post-commitment effects or returns
// it to the front of the queue.
func (a *Anchor) driveHead(ctx context.Context) {
	head, ok := a.queue.popFront()
	if !ok {
		return
	}

	txsBefore := len(head.Txs)
	result, err := a.lifecycle.Drive(ctx, head)
	if errors.Is(err, ErrInvariantViolation) {
		// Per spec.md §7, only programming bugs should escalate to
		// process-level abort; everything else is retried. Requeuing this
		// head and continuing would loop forever on a condition that can
		// only be caused by a bug, so panic instead and let the
		// supervising goroutine (cmd/anchor's runSupervised) tear the
		// process down.
		a.log.Error("invariant violation while driving operation, aborting", "op_id", head.Operation.ID, "err", err)
		panic(fmt.Errorf("anchor: invariant violation driving op %d: %w", head.Operation.ID, err))
	}
	if err != nil {
		a.log.Warn("error while trying to complete uncommitted operation", "op_id", head.Operation.ID, "err", err)
	}
	if len(head.Txs) > txsBefore {
		if txsBefore > 0 {
			a.metrics.TxReplaced()
		} else {
			a.metrics.TxBroadcast()
		}
	}

	switch result {
	case CommitmentCommitted:
		a.metrics.OperationCommitted(head.Operation.Action.Type)
		a.onCommitted(ctx, head.Operation)
	case CommitmentPending:
		a.queue.pushFront(head)
	}
}

// onCommitted runs the post-commitment effects of spec.md §4.4: a
// best-effort notification for Verify operations, followed by a
// fire-and-forget completeWithdrawals call.
func (a *Anchor) onCommitted(ctx context.Context, op Operation) {
	if op.Action.Type != ActionVerify {
		return
	}

	select {
	case a.outbound <- op:
	default:
		a.log.Warn("failed to notify about verify operation confirmation: outbound channel full", "op_id", op.ID)
	}

	if err := a.chain.SignAndSendCompleteWithdrawals(ctx, a.cfg.MaxWithdrawalsToCompleteInACall); err != nil {
		a.log.Warn("error sending completeWithdrawals", "op_id", op.ID, "err", err)
	}
}

// Start runs the loop on its own goroutine and returns a function that
// cancels it and blocks until the goroutine has returned. Convenient for
// callers (such as the tests) that want fire-and-forget supervision rather
// than calling Run directly; it does not recover panics.
func (a *Anchor) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Run(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
