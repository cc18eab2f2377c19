// Package database handles all the lower level support for maintaining the
// blockchain in storage and maintaining an in memory ledger of the unspent
// transaction outputs.
package database

import (
	"errors"
	"fmt"
	"sync"
)

// Storage interface represents the behavior required to be implemented by any
// package providing support for storing and reading the blockchain. A
// successful Write must be visible to any later ForEach or GetBlock.
type Storage interface {
	Write(blockData BlockData) error
	GetBlock(num uint64) (BlockData, error)
	ForEach() Iterator
	SaveMempool(txs []BlockTx) error
	LoadMempool() ([]BlockTx, error)
	Close() error
	Reset() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks. Next returns blocks
// in chain order and Done reports true once a call to Next found no block.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// ErrNotFound is returned by storage when a block doesn't exist.
var ErrNotFound = errors.New("block not found")

// =============================================================================

// DatabaseIterator walks the blocks in storage converting each one.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from storage.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	if di.iterator.Done() {
		return Block{}, nil
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}

// =============================================================================

// Database manages the chain in storage along with the unspent outputs the
// chain produces. It is the one owner of this state.
type Database struct {
	mu          sync.RWMutex
	latestBlock Block
	ledger      *Ledger
	storage     Storage
	evHandler   func(v string, args ...any)
}

// New constructs a new database and replays the blocks already in storage.
// Every block is validated against its parent while it is replayed.
func New(storage Storage, evHandler func(v string, args ...any)) (*Database, error) {
	if evHandler == nil {
		evHandler = func(string, ...any) {}
	}

	db := Database{
		ledger:    NewLedger(),
		storage:   storage,
		evHandler: evHandler,
	}

	cv := NewChainValidator(ValidateOptions{EvHandler: evHandler})

	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		if err := cv.Next(block); err != nil {
			return nil, err
		}

		if err := db.ledger.ApplyBlock(block.Txs()); err != nil {
			return nil, &BlockError{Number: block.Number, Err: err}
		}
	}

	db.latestBlock = cv.Latest()

	evHandler("database: New: loaded: blocks[%d]: utxos[%d]", db.latestBlock.Number, db.ledger.Count())

	return &db, nil
}

// Close closes the open blocks database.
func (db *Database) Close() error {
	return db.storage.Close()
}

// Reset re-initializes the database back to an empty chain.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.storage.Reset(); err != nil {
		return err
	}

	db.latestBlock = Block{}
	db.ledger = NewLedger()

	return nil
}

// Ledger returns the ledger of unspent outputs.
func (db *Database) Ledger() *Ledger {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.ledger
}

// LatestBlock returns the latest block.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// Commit validates the block against the tip, advances the ledger by the
// transactions of the block, and writes the block to storage. If the write
// fails the ledger is replayed from storage so it matches the chain again.
func (db *Database) Commit(block Block) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := block.ValidateBlock(db.latestBlock, db.evHandler); err != nil {
		return &BlockError{Number: block.Number, Err: err}
	}

	if err := db.ledger.ApplyBlock(block.Txs()); err != nil {
		return &BlockError{Number: block.Number, Err: err}
	}

	if err := db.storage.Write(NewBlockData(block)); err != nil {
		if rerr := db.rebuild(); rerr != nil {
			return fmt.Errorf("write block: %w: rebuild ledger: %s", err, rerr)
		}
		return fmt.Errorf("write block: %w", err)
	}

	db.latestBlock = block

	db.evHandler("database: Commit: blk[%d]: hash[%s]: utxos[%d]", block.Number, block.Hash(), db.ledger.Count())

	return nil
}

// Rebuild replays every block in storage from genesis to reconstruct the
// ledger. It is the recovery path when the ledger can't be trusted.
func (db *Database) Rebuild() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.rebuild()
}

// rebuild performs the replay. The caller must hold the write lock.
func (db *Database) rebuild() error {
	var blocks [][]BlockTx

	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}
		blocks = append(blocks, block.Txs())
	}

	if err := db.ledger.Rebuild(blocks); err != nil {
		return err
	}

	db.evHandler("database: Rebuild: blocks[%d]: utxos[%d]", len(blocks), db.ledger.Count())

	return nil
}

// ValidateChain reads the whole chain from storage and validates it. With
// the audit option the scratch ledger built from the chain must also match
// the live ledger.
func (db *Database) ValidateChain(opts ValidateOptions) error {
	if opts.EvHandler == nil {
		opts.EvHandler = db.evHandler
	}

	cv := NewChainValidator(opts)

	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		if err := cv.Next(block); err != nil {
			return err
		}
	}

	if opts.Audit {
		live := db.Ledger().Copy()
		replayed := cv.ledger.Copy()

		if len(live) != len(replayed) {
			return fmt.Errorf("ledger holds %d utxos, chain produces %d", len(live), len(replayed))
		}

		for i := range live {
			if live[i] != replayed[i] {
				return fmt.Errorf("ledger utxo %s does not match chain utxo %s", live[i].Key, replayed[i].Key)
			}
		}
	}

	return nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.storage.ForEach()}
}

// GetBlock searches the blockchain in storage to locate and return the
// contents of the specified block by number.
func (db *Database) GetBlock(num uint64) (Block, error) {
	blockData, err := db.storage.GetBlock(num)
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// SaveMempool writes the pending transactions to storage.
func (db *Database) SaveMempool(txs []BlockTx) error {
	return db.storage.SaveMempool(txs)
}

// LoadMempool reads the pending transactions from storage.
func (db *Database) LoadMempool() ([]BlockTx, error) {
	return db.storage.LoadMempool()
}
