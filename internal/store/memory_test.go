package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providenetwork/zksync/internal/anchor"
)

func TestMemStoreSaveAndConfirm(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.Seed(anchor.Operation{ID: 1})

	hash := common.HexToHash("0x01")
	require.NoError(t, s.SaveOperationEthTx(ctx, 1, hash, 130, 1, big.NewInt(10), []byte("raw")))

	states, err := s.LoadUnconfirmedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, uint64(1), states[0].Operation.ID)
	require.Len(t, states[0].Txs, 1)
	assert.Equal(t, hash, states[0].Txs[0].SignedTx.Hash)

	require.NoError(t, s.ConfirmEthTx(ctx, hash))

	states, err = s.LoadUnconfirmedOperations(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestMemStoreConfirmIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	hash := common.HexToHash("0x02")
	require.NoError(t, s.SaveOperationEthTx(ctx, 2, hash, 130, 1, big.NewInt(10), nil))

	require.NoError(t, s.ConfirmEthTx(ctx, hash))
	require.NoError(t, s.ConfirmEthTx(ctx, hash)) // must not error on re-confirm
}

func TestMemStoreOrdersByOpID(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	s.Seed(anchor.Operation{ID: 5})
	s.Seed(anchor.Operation{ID: 2})
	s.Seed(anchor.Operation{ID: 9})

	states, err := s.LoadUnconfirmedOperations(ctx)
	require.NoError(t, err)
	require.Len(t, states, 3)
	assert.Equal(t, []uint64{2, 5, 9}, []uint64{states[0].Operation.ID, states[1].Operation.ID, states[2].Operation.ID})
}
