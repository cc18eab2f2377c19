// Package disk implements the ability to read and write blocks to disk
// writing each block to a separate block numbered file.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/golang/groupcache/lru"
)

// mempoolFile is the name of the file holding the pending transactions.
const mempoolFile = "mempool.json"

// defaultCacheSize is the number of decoded blocks kept in memory.
const defaultCacheSize = 128

// Disk represents the storage implementation for reading and storing blocks
// in their own separate files on disk. This implements the database.Storage
// interface.
type Disk struct {
	dbPath string

	mu    sync.Mutex
	cache *lru.Cache
}

// New constructs a Disk value for use. A cache size of zero uses the
// default size.
func New(dbPath string, cacheSize int) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}

	d := Disk{
		dbPath: dbPath,
		cache:  lru.New(cacheSize),
	}

	return &d, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Write takes the specified database blocks and stores it on disk in a
// file labeled with the block number. The file is written under a temporary
// name and renamed so a block file is either complete or missing.
func (d *Disk) Write(blockData database.BlockData) error {
	if blockData.Number == 0 || d.exists(blockData.Number) {
		return fmt.Errorf("block is out of order, got %d", blockData.Number)
	}

	if blockData.Number > 1 && !d.exists(blockData.Number-1) {
		return fmt.Errorf("block is out of order, got %d, missing %d", blockData.Number, blockData.Number-1)
	}

	data, err := json.MarshalIndent(blockData, "", "  ")
	if err != nil {
		return err
	}

	if err := writeFile(d.dbPath, d.getPath(blockData.Number), data); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Add(blockData.Number, blockData)

	return nil
}

// GetBlock searches the blockchain on disk to locate and return the
// contents of the specified block by number.
func (d *Disk) GetBlock(num uint64) (database.BlockData, error) {
	d.mu.Lock()
	if v, ok := d.cache.Get(num); ok {
		d.mu.Unlock()
		return v.(database.BlockData), nil
	}
	d.mu.Unlock()

	data, err := os.ReadFile(d.getPath(num))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.BlockData{}, fmt.Errorf("%w: %d", database.ErrNotFound, num)
		}
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, fmt.Errorf("%w: block %d: %s", database.ErrMalformed, num, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Add(num, blockData)

	return blockData, nil
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (d *Disk) ForEach() database.Iterator {
	return &diskIterator{storage: d}
}

// SaveMempool replaces the mempool file with the pending transactions.
func (d *Disk) SaveMempool(txs []database.BlockTx) error {
	if txs == nil {
		txs = []database.BlockTx{}
	}

	data, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return err
	}

	return writeFile(d.dbPath, filepath.Join(d.dbPath, mempoolFile), data)
}

// LoadMempool reads the pending transactions. A missing file is an empty
// mempool.
func (d *Disk) LoadMempool() ([]database.BlockTx, error) {
	data, err := os.ReadFile(filepath.Join(d.dbPath, mempoolFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var txs []database.BlockTx
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("%w: mempool: %s", database.ErrMalformed, err)
	}

	return txs, nil
}

// Reset will clear out the blockchain on disk.
func (d *Disk) Reset() error {
	entries, err := os.ReadDir(d.dbPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		if err := os.Remove(filepath.Join(d.dbPath, entry.Name())); err != nil {
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache.Clear()

	return nil
}

// getPath forms the path to the specified block.
func (d *Disk) getPath(blockNum uint64) string {
	name := strconv.FormatUint(blockNum, 10)
	return filepath.Join(d.dbPath, fmt.Sprintf("%s.json", name))
}

// exists reports whether the specified block has a file on disk.
func (d *Disk) exists(blockNum uint64) bool {
	_, err := os.Stat(d.getPath(blockNum))
	return err == nil
}

// writeFile writes the data to a temporary file in the directory and then
// renames it over the final path.
func writeFile(dir string, path string, data []byte) error {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}

// =============================================================================

// diskIterator represents the iteration implementation for walking
// through and reading blocks on disk. This implements the database
// Iterator interface.
type diskIterator struct {
	storage *Disk  // Access to the storage API.
	current uint64 // Current block number being iterated over.
	eoc     bool   // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from disk.
func (di *diskIterator) Next() (database.BlockData, error) {
	if di.eoc {
		return database.BlockData{}, nil
	}

	di.current++
	blockData, err := di.storage.GetBlock(di.current)
	if errors.Is(err, database.ErrNotFound) {
		di.eoc = true
		return database.BlockData{}, nil
	}

	return blockData, err
}

// Done returns the end of chain value.
func (di *diskIterator) Done() bool {
	return di.eoc
}
