package store

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providenetwork/zksync/internal/anchor"
)

func openTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anchor.db")
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRecoversUnconfirmedInOpIDOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	op1 := anchor.Operation{ID: 3, Block: anchor.Block{BlockNumber: 10}}
	op2 := anchor.Operation{ID: 1, Block: anchor.Block{BlockNumber: 11}}
	require.NoError(t, s.SaveOperation(ctx, op1))
	require.NoError(t, s.SaveOperation(ctx, op2))

	hash1 := common.HexToHash("0x0a")
	hash2 := common.HexToHash("0x0b")
	require.NoError(t, s.SaveOperationEthTx(ctx, 3, hash1, 40, 1, big.NewInt(10), []byte("a")))
	require.NoError(t, s.SaveOperationEthTx(ctx, 1, hash2, 41, 1, big.NewInt(10), []byte("b")))

	states, err := s.LoadUnconfirmedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, uint64(1), states[0].Operation.ID)
	assert.Equal(t, uint64(3), states[1].Operation.ID)
	require.Len(t, states[0].Txs, 1)
	assert.Equal(t, hash2, states[0].Txs[0].SignedTx.Hash)
}

func TestSQLiteStoreConfirmExcludesFromRecovery(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	op := anchor.Operation{ID: 7}
	require.NoError(t, s.SaveOperation(ctx, op))

	hash := common.HexToHash("0x0c")
	require.NoError(t, s.SaveOperationEthTx(ctx, 7, hash, 40, 1, big.NewInt(10), []byte("x")))
	require.NoError(t, s.ConfirmEthTx(ctx, hash))

	states, err := s.LoadUnconfirmedOperations(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestSQLiteStoreRoundTripsVerifyProof(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	var proof [8]*uint256.Int
	for i := range proof {
		proof[i] = uint256.NewInt(uint64(i + 1))
	}
	op := anchor.Operation{
		ID:    5,
		Block: anchor.Block{BlockNumber: 20},
		Action: anchor.Action{
			Type:  anchor.ActionVerify,
			Proof: proof,
		},
	}
	require.NoError(t, s.SaveOperation(ctx, op))
	require.NoError(t, s.SaveOperationEthTx(ctx, 5, common.HexToHash("0x0e"), 50, 1, big.NewInt(10), []byte("stuck")))

	states, err := s.LoadUnconfirmedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)

	recovered := states[0].Operation
	assert.Equal(t, anchor.ActionVerify, recovered.Action.Type)
	for i := range proof {
		require.NotNil(t, recovered.Action.Proof[i], "limb %d", i)
		assert.Equal(t, proof[i].ToBig(), recovered.Action.Proof[i].ToBig(), "limb %d", i)
	}
}

func TestSQLiteStoreCommitOperationHasNilProof(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)

	op := anchor.Operation{ID: 6, Block: anchor.Block{BlockNumber: 21}, Action: anchor.Action{Type: anchor.ActionCommit}}
	require.NoError(t, s.SaveOperation(ctx, op))
	require.NoError(t, s.SaveOperationEthTx(ctx, 6, common.HexToHash("0x0f"), 51, 1, big.NewInt(10), []byte("x")))

	states, err := s.LoadUnconfirmedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	for i, limb := range states[0].Operation.Action.Proof {
		assert.Nil(t, limb, "limb %d", i)
	}
}

func TestSQLiteStoreConfirmIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLiteStore(t)
	require.NoError(t, s.SaveOperation(ctx, anchor.Operation{ID: 9}))

	hash := common.HexToHash("0x0d")
	require.NoError(t, s.SaveOperationEthTx(ctx, 9, hash, 40, 1, big.NewInt(10), nil))
	require.NoError(t, s.ConfirmEthTx(ctx, hash))
	require.NoError(t, s.ConfirmEthTx(ctx, hash))
}
