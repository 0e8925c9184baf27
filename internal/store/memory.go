package store

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/providenetwork/zksync/internal/anchor"
)

// MemStore is an in-process OperationStore: a --store.store-driver=memory deployment
// mode for single-node soak testing, and the store used by package-level
// tests outside internal/anchor (which use their own lightweight fake to
// avoid an import cycle).
type MemStore struct {
	mu    sync.Mutex
	state map[uint64]*anchor.OperationState
}

func NewMemStore() *MemStore {
	return &MemStore{state: make(map[uint64]*anchor.OperationState)}
}

// Seed registers an operation with the store, as the upstream producer
// would before handing it to the anchor's inbound channel.
func (m *MemStore) Seed(op anchor.Operation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state[op.ID]; !ok {
		m.state[op.ID] = &anchor.OperationState{Operation: op}
	}
}

func (m *MemStore) LoadUnconfirmedOperations(ctx context.Context) ([]anchor.OperationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]uint64, 0, len(m.state))
	for id, state := range m.state {
		if !m.hasConfirmedTx(state) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]anchor.OperationState, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneState(m.state[id]))
	}
	return out, nil
}

func (m *MemStore) hasConfirmedTx(state *anchor.OperationState) bool {
	for _, tx := range state.Txs {
		if tx.Confirmed {
			return true
		}
	}
	return false
}

func (m *MemStore) SaveOperationEthTx(ctx context.Context, opID uint64, hash common.Hash, deadlineBlock uint64, nonce uint64, gasPrice *big.Int, rawBytes []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.state[opID]
	if !ok {
		state = &anchor.OperationState{Operation: anchor.Operation{ID: opID}}
		m.state[opID] = state
	}
	state.Txs = append(state.Txs, anchor.TransactionRecord{
		OpID:          opID,
		DeadlineBlock: deadlineBlock,
		SignedTx: anchor.SignedTx{
			Hash:     hash,
			Nonce:    nonce,
			GasPrice: new(big.Int).Set(gasPrice),
			RawBytes: append([]byte(nil), rawBytes...),
		},
	})
	return nil
}

func (m *MemStore) ConfirmEthTx(ctx context.Context, hash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, state := range m.state {
		for i := range state.Txs {
			if state.Txs[i].SignedTx.Hash == hash {
				state.Txs[i].Confirmed = true
				return nil
			}
		}
	}
	// Idempotent even if the hash is unknown (e.g. a retried confirm
	// racing a process restart that already observed it): not an error.
	return nil
}

func cloneState(s *anchor.OperationState) anchor.OperationState {
	out := anchor.OperationState{Operation: s.Operation}
	out.Txs = append(out.Txs, s.Txs...)
	return out
}

var _ anchor.OperationStore = (*MemStore)(nil)
