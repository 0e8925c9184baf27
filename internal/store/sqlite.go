// Package store provides durable OperationStore implementations for the
// anchor: a SQLite-backed store for production/recovery and an in-memory
// store for tests and single-node soak runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver, side-effect only.

	"github.com/providenetwork/zksync/internal/anchor"
)

// proofByteLen is the encoded width of an anchor.Action.Proof: 8 limbs of
// 32 bytes each, stored as one concatenated BLOB. Commit operations carry
// no proof and store NULL instead.
const proofByteLen = 8 * 32

func encodeProof(proof [8]*uint256.Int) []byte {
	out := make([]byte, 0, proofByteLen)
	for _, limb := range proof {
		if limb == nil {
			limb = new(uint256.Int)
		}
		b := limb.Bytes32()
		out = append(out, b[:]...)
	}
	return out
}

func decodeProof(raw []byte) [8]*uint256.Int {
	var proof [8]*uint256.Int
	if len(raw) != proofByteLen {
		return proof
	}
	for i := range proof {
		limb := new(uint256.Int)
		limb.SetBytes(raw[i*32 : (i+1)*32])
		proof[i] = limb
	}
	return proof
}

// SQLiteStore persists operations and their broadcast attempts in a local
// SQLite database, following the embedded-relational-state idiom used
// elsewhere in the pack (e.g. catalog.LoadFromSQLite).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures the anchor's schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite DB: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS operations (
	op_id        INTEGER PRIMARY KEY,
	action       INTEGER NOT NULL,
	block_number INTEGER NOT NULL,
	fee_account  INTEGER NOT NULL,
	new_root     BLOB NOT NULL,
	public_data  BLOB NOT NULL,
	witness_data BLOB NOT NULL,
	witness_aux  BLOB NOT NULL,
	proof        BLOB
);

CREATE TABLE IF NOT EXISTS eth_txs (
	hash           TEXT PRIMARY KEY,
	op_id          INTEGER NOT NULL REFERENCES operations(op_id),
	deadline_block INTEGER NOT NULL,
	nonce          INTEGER NOT NULL,
	gas_price      TEXT NOT NULL,
	raw_tx         BLOB NOT NULL,
	confirmed      INTEGER NOT NULL DEFAULT 0,
	created_seq    INTEGER
);

CREATE INDEX IF NOT EXISTS eth_txs_op_id_idx ON eth_txs(op_id);
`
	_, err := s.db.Exec(schema)
	return err
}

// LoadUnconfirmedOperations returns every operation that has no confirmed
// eth_tx row, along with all of its broadcast attempts, ordered by op_id
// ascending and, within an operation, by broadcast order.
func (s *SQLiteStore) LoadUnconfirmedOperations(ctx context.Context) ([]anchor.OperationState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT op_id, action, block_number, fee_account, new_root, public_data, witness_data, witness_aux, proof
		FROM operations
		WHERE op_id NOT IN (SELECT op_id FROM eth_txs WHERE confirmed = 1)
		ORDER BY op_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying unconfirmed operations: %w", err)
	}
	defer rows.Close()

	byID := make(map[uint64]*anchor.OperationState)
	var order []uint64
	for rows.Next() {
		var (
			opID                                          int64
			action, blockNumber, feeAccount               int64
			newRoot, publicData, witnessData, witnessAux  []byte
			proof                                          []byte
		)
		if err := rows.Scan(&opID, &action, &blockNumber, &feeAccount, &newRoot, &publicData, &witnessData, &witnessAux, &proof); err != nil {
			return nil, fmt.Errorf("scanning operation row: %w", err)
		}
		op := anchor.Operation{
			ID: uint64(opID),
			Block: anchor.Block{
				BlockNumber: uint32(blockNumber),
				FeeAccount:  uint32(feeAccount),
				PublicData:  publicData,
				WitnessData: witnessData,
				WitnessAux:  witnessAux,
			},
			Action: anchor.Action{
				Type:  anchor.ActionType(action),
				Proof: decodeProof(proof),
			},
		}
		copy(op.Block.NewRoot[:], newRoot)
		byID[op.ID] = &anchor.OperationState{Operation: op}
		order = append(order, op.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txRows, err := s.db.QueryContext(ctx, `
		SELECT op_id, hash, deadline_block, nonce, gas_price, raw_tx
		FROM eth_txs
		WHERE confirmed = 0
		ORDER BY op_id ASC, created_seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying eth_txs: %w", err)
	}
	defer txRows.Close()

	for txRows.Next() {
		var (
			opID          int64
			hashHex       string
			deadlineBlock int64
			nonce         int64
			gasPriceStr   string
			rawTx         []byte
		)
		if err := txRows.Scan(&opID, &hashHex, &deadlineBlock, &nonce, &gasPriceStr, &rawTx); err != nil {
			return nil, fmt.Errorf("scanning eth_tx row: %w", err)
		}
		state, ok := byID[uint64(opID)]
		if !ok {
			continue
		}
		gasPrice, _ := new(big.Int).SetString(gasPriceStr, 10)
		state.Txs = append(state.Txs, anchor.TransactionRecord{
			OpID:          uint64(opID),
			DeadlineBlock: uint64(deadlineBlock),
			SignedTx: anchor.SignedTx{
				Hash:     common.HexToHash(hashHex),
				Nonce:    uint64(nonce),
				GasPrice: gasPrice,
				RawBytes: rawTx,
			},
		})
	}
	if err := txRows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]anchor.OperationState, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// SaveOperationEthTx persists a new broadcast attempt. Performed inside its
// own statement (not a cross-operation transaction, per spec.md §5), and
// must return only once SQLite has durably committed the write.
func (s *SQLiteStore) SaveOperationEthTx(ctx context.Context, opID uint64, hash common.Hash, deadlineBlock uint64, nonce uint64, gasPrice *big.Int, rawBytes []byte) error {
	// raw_tx is NOT NULL and a nil slice would bind as NULL.
	if rawBytes == nil {
		rawBytes = []byte{}
	}
	var seq int64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_seq), 0) + 1 FROM eth_txs`)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("computing broadcast sequence: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO eth_txs (hash, op_id, deadline_block, nonce, gas_price, raw_tx, confirmed, created_seq)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, hash.Hex(), opID, deadlineBlock, nonce, gasPrice.String(), rawBytes, seq)
	if err != nil {
		return fmt.Errorf("inserting eth_tx: %w", err)
	}
	return nil
}

// ConfirmEthTx marks the eth_tx row identified by hash confirmed. Idempotent:
// re-running the UPDATE against an already-confirmed row is a no-op.
func (s *SQLiteStore) ConfirmEthTx(ctx context.Context, hash common.Hash) error {
	_, err := s.db.ExecContext(ctx, `UPDATE eth_txs SET confirmed = 1 WHERE hash = ?`, hash.Hex())
	if err != nil {
		return fmt.Errorf("confirming eth_tx: %w", err)
	}
	return nil
}

// SaveOperation inserts a new operation row. Not part of the
// anchor.OperationStore interface (the anchor never creates operations,
// only the upstream producer does), but is required for the producer-side
// collaborator named in spec.md §1 to durably hand operations to this
// store ahead of the in-memory channel, and is used by tests to seed
// recoverable state.
func (s *SQLiteStore) SaveOperation(ctx context.Context, op anchor.Operation) error {
	var proof []byte
	if op.Action.Type == anchor.ActionVerify {
		proof = encodeProof(op.Action.Proof)
	}
	// The block data columns are NOT NULL and a nil slice would bind as
	// NULL, so empty block data is stored as an empty blob.
	orEmpty := func(b []byte) []byte {
		if b == nil {
			return []byte{}
		}
		return b
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (op_id, action, block_number, fee_account, new_root, public_data, witness_data, witness_aux, proof)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, op.ID, int64(op.Action.Type), op.Block.BlockNumber, op.Block.FeeAccount, op.Block.NewRoot[:], orEmpty(op.Block.PublicData), orEmpty(op.Block.WitnessData), orEmpty(op.Block.WitnessAux), proof)
	if err != nil {
		return fmt.Errorf("inserting operation: %w", err)
	}
	return nil
}

var _ anchor.OperationStore = (*SQLiteStore)(nil)
