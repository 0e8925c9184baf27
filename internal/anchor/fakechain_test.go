package anchor

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fakeChain is a deterministic in-memory SettlementChain used to drive the
// S1-S6 scenarios from spec.md §8 without a real Ethereum node.
type fakeChain struct {
	mu sync.Mutex

	height       uint64
	nonce        uint64
	networkPrice *big.Int

	statuses map[common.Hash]*TxStatus

	nextHash int

	sendCalls           []SignedTx
	completeWithdrawals []uint32
	signCalls           int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		height:       100,
		nonce:        1,
		networkPrice: big.NewInt(8),
		statuses:     make(map[common.Hash]*TxStatus),
	}
}

func (c *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *fakeChain) CurrentNonce(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).SetUint64(c.nonce), nil
}

func (c *fakeChain) GasPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.networkPrice), nil
}

func (c *fakeChain) GetTxStatus(ctx context.Context, hash common.Hash) (*TxStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[hash], nil
}

func (c *fakeChain) SignCallTx(ctx context.Context, op Operation, opts CallOptions) (SignedTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.signCalls++
	c.nextHash++
	hash := common.BigToHash(big.NewInt(int64(c.nextHash)))

	nonce := c.nonce
	if opts.Nonce != nil {
		nonce = opts.Nonce.Uint64()
	}
	gasPrice := new(big.Int).Set(c.networkPrice)
	if opts.GasPrice != nil {
		gasPrice = new(big.Int).Set(opts.GasPrice)
	}

	return SignedTx{
		Hash:     hash,
		Nonce:    nonce,
		GasPrice: gasPrice,
		RawBytes: []byte(fmt.Sprintf("op=%d nonce=%d gas=%s", op.ID, nonce, gasPrice)),
	}, nil
}

func (c *fakeChain) SendTx(ctx context.Context, tx SignedTx) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendCalls = append(c.sendCalls, tx)
	return nil
}

func (c *fakeChain) SignAndSendCompleteWithdrawals(ctx context.Context, n uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completeWithdrawals = append(c.completeWithdrawals, n)
	return nil
}

// --- test helpers on fakeChain ---

func (c *fakeChain) setHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = h
}

func (c *fakeChain) setNetworkPrice(p int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.networkPrice = big.NewInt(p)
}

func (c *fakeChain) setStatus(hash common.Hash, status *TxStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[hash] = status
}

func (c *fakeChain) sendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sendCalls)
}

func (c *fakeChain) lastSend() SignedTx {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendCalls[len(c.sendCalls)-1]
}

func failedReceipt() *types.Receipt {
	return &types.Receipt{Status: types.ReceiptStatusFailed}
}

// fakeStore is a minimal in-memory OperationStore for lifecycle/anchor
// tests. internal/store.MemStore is the production-facing equivalent; this
// one stays local to the anchor package's tests to avoid a test-only
// import cycle (internal/store imports internal/anchor for its types).
type fakeStore struct {
	mu          sync.Mutex
	saved       []TransactionRecord
	confirmed   map[common.Hash]bool
	saveErr     error
	confirmErr  error
	recoverable []OperationState
}

func newFakeStore() *fakeStore {
	return &fakeStore{confirmed: make(map[common.Hash]bool)}
}

func (s *fakeStore) LoadUnconfirmedOperations(ctx context.Context) ([]OperationState, error) {
	return s.recoverable, nil
}

func (s *fakeStore) SaveOperationEthTx(ctx context.Context, opID uint64, hash common.Hash, deadlineBlock uint64, nonce uint64, gasPrice *big.Int, rawBytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, TransactionRecord{
		OpID:          opID,
		DeadlineBlock: deadlineBlock,
		SignedTx: SignedTx{
			Hash:     hash,
			Nonce:    nonce,
			GasPrice: gasPrice,
			RawBytes: rawBytes,
		},
	})
	return nil
}

func (s *fakeStore) ConfirmEthTx(ctx context.Context, hash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmed[hash] = true
	return nil
}

func (s *fakeStore) confirmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ok := range s.confirmed {
		if ok {
			n++
		}
	}
	return n
}

func (s *fakeStore) isConfirmed(hash common.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed[hash]
}
