// Package storage selects the backend that holds the blockchain.
package storage

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/utxochain/foundation/blockchain/storage/sqlite"
)

// Set of supported storage kinds.
const (
	KindDisk   = "disk"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Config describes the storage to open.
type Config struct {
	Kind      string // One of disk, sqlite or memory.
	Path      string // Directory for disk, database file for sqlite.
	CacheSize int    // Number of decoded blocks the disk backend keeps.
}

// Open provides access to blockchain storage of the configured kind.
func Open(cfg Config) (database.Storage, error) {
	switch strings.ToLower(cfg.Kind) {
	case KindDisk, "":
		return disk.New(cfg.Path, cfg.CacheSize)

	case KindSQLite:
		return sqlite.New(cfg.Path)

	case KindMemory:
		return memory.New(), nil
	}

	return nil, fmt.Errorf("unknown storage kind %q", cfg.Kind)
}
