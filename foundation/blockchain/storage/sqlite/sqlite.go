// Package sqlite implements the ability to read and write blocks to an
// embedded sqlite database.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	_ "github.com/mattn/go-sqlite3"
)

// schema creates the tables when they don't exist yet.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS blocks (
		number INTEGER PRIMARY KEY,
		hash   TEXT NOT NULL UNIQUE,
		data   BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS mempool (
		seq  INTEGER PRIMARY KEY,
		txid TEXT NOT NULL,
		data BLOB NOT NULL
	)`,
}

// SQLite represents the storage implementation for reading and storing
// blocks in a sqlite database. This implements the database.Storage
// interface.
type SQLite struct {
	db *sql.DB
}

// New opens the sqlite database at the specified path and creates the
// schema. The path ":memory:" opens a private in memory database.
func New(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// A single connection keeps an in memory database alive and serializes
	// the writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Write stores the block. Blocks must be written in order.
func (s *SQLite) Write(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count uint64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM blocks`).Scan(&count); err != nil {
		return err
	}

	if exp := count + 1; blockData.Number != exp {
		return fmt.Errorf("block is out of order, got %d, exp %d", blockData.Number, exp)
	}

	const q = `INSERT INTO blocks (number, hash, data) VALUES (?, ?, ?)`
	if _, err := tx.Exec(q, blockData.Number, blockData.Hash, data); err != nil {
		return err
	}

	return tx.Commit()
}

// GetBlock searches the blocks table to locate and return the contents of
// the specified block by number.
func (s *SQLite) GetBlock(num uint64) (database.BlockData, error) {
	var data []byte

	const q = `SELECT data FROM blocks WHERE number = ?`
	if err := s.db.QueryRow(q, num).Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.BlockData{}, fmt.Errorf("%w: %d", database.ErrNotFound, num)
		}
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, fmt.Errorf("%w: block %d: %s", database.ErrMalformed, num, err)
	}

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (s *SQLite) ForEach() database.Iterator {
	return &sqliteIterator{storage: s}
}

// SaveMempool replaces the stored pending transactions inside a single
// sql transaction.
func (s *SQLite) SaveMempool(txs []database.BlockTx) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM mempool`); err != nil {
		return err
	}

	const q = `INSERT INTO mempool (seq, txid, data) VALUES (?, ?, ?)`
	for i, btx := range txs {
		data, err := json.Marshal(btx)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(q, i, btx.TxID, data); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadMempool returns the stored pending transactions in acceptance order.
func (s *SQLite) LoadMempool() ([]database.BlockTx, error) {
	rows, err := s.db.Query(`SELECT data FROM mempool ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []database.BlockTx
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		var btx database.BlockTx
		if err := json.Unmarshal(data, &btx); err != nil {
			return nil, fmt.Errorf("%w: mempool: %s", database.ErrMalformed, err)
		}
		txs = append(txs, btx)
	}

	return txs, rows.Err()
}

// Reset will clear out the blocks and the mempool.
func (s *SQLite) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM blocks`); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM mempool`); err != nil {
		return err
	}

	return tx.Commit()
}

// =============================================================================

// sqliteIterator represents the iteration implementation for walking
// through and reading blocks from the database. This implements the
// database Iterator interface.
type sqliteIterator struct {
	storage *SQLite // Access to the storage API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from the database.
func (si *sqliteIterator) Next() (database.BlockData, error) {
	if si.eoc {
		return database.BlockData{}, nil
	}

	si.current++
	blockData, err := si.storage.GetBlock(si.current)
	if errors.Is(err, database.ErrNotFound) {
		si.eoc = true
		return database.BlockData{}, nil
	}

	return blockData, err
}

// Done returns the end of chain value.
func (si *sqliteIterator) Done() bool {
	return si.eoc
}
