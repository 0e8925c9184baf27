// Package anchor implements the L2→L1 operation anchor: the state machine
// that reliably anchors a FIFO stream of rollup operations onto an
// Ethereum-compatible settlement chain.
package anchor

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ActionType distinguishes the two kinds of operations the anchor handles.
type ActionType int

const (
	// ActionCommit records block data (root, public data, witness) on
	// chain without proving it.
	ActionCommit ActionType = iota
	// ActionVerify submits a zero-knowledge proof finalizing a
	// previously committed block.
	ActionVerify
)

func (a ActionType) String() string {
	switch a {
	case ActionCommit:
		return "Commit"
	case ActionVerify:
		return "Verify"
	default:
		return "Unknown"
	}
}

// Block describes the rollup block data carried by a Commit operation.
type Block struct {
	BlockNumber uint32
	FeeAccount  uint32
	NewRoot     [32]byte
	PublicData  []byte
	WitnessData []byte
	WitnessAux  []byte
}

// Action is the payload of an Operation: either a Commit of block data or a
// Verify of a previously committed block's proof.
type Action struct {
	Type ActionType
	// Proof is only populated when Type == ActionVerify. Per the on-chain
	// verifyBlock(uint32, uint256[8]) signature; represented as
	// uint256.Int (rather than big.Int) since every limb is a genuine
	// 256-bit on-chain field element, matching go-ethereum's own internal
	// convention for fixed-width chain quantities.
	Proof [8]*uint256.Int
}

func (a Action) String() string {
	return a.Type.String()
}

// Operation is an L2 rollup event to be anchored on the settlement chain.
// It is opaque to the anchor except for the fields below; ID is assigned
// upstream and is monotone per stream, and must uniquely identify the
// operation across restarts.
type Operation struct {
	ID     uint64
	Block  Block
	Action Action
}

func (op Operation) String() string {
	return fmt.Sprintf("op %d (%s, block %d)", op.ID, op.Action, op.Block.BlockNumber)
}
