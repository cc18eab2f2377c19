// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Set of default values used when the genesis file leaves them out.
const (
	DefaultMiningReward = 50
	DefaultWorkers      = 1
)

// Genesis represents the genesis file.
type Genesis struct {
	Date         time.Time `json:"date" toml:"date"`
	Difficulty   uint      `json:"difficulty" toml:"difficulty"`       // Number of leading zero bits needed to solve the work problem.
	MiningReward uint64    `json:"mining_reward" toml:"mining_reward"` // Reward for mining a block.
	Workers      int       `json:"workers" toml:"workers"`             // Number of goroutines searching the nonce space.
	AutoMine     bool      `json:"auto_mine" toml:"auto_mine"`         // Start mining as soon as a transaction is accepted.
}

// =============================================================================

// Load opens and consumes the genesis file. Files ending in .toml are read
// as TOML, everything else as JSON.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(content), &genesis); err != nil {
			return Genesis{}, fmt.Errorf("decoding %s: %w", path, err)
		}

	default:
		if err := json.Unmarshal(content, &genesis); err != nil {
			return Genesis{}, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, fmt.Errorf("%s: %w", path, err)
	}

	return genesis, nil
}

// Validate checks the values can be used to run a chain and applies the
// defaults for values left out.
func (g *Genesis) Validate() error {
	if g.Difficulty > 256 {
		return fmt.Errorf("difficulty %d can never be solved", g.Difficulty)
	}

	if g.MiningReward == 0 {
		g.MiningReward = DefaultMiningReward
	}

	if g.Workers <= 0 {
		g.Workers = DefaultWorkers
	}

	return nil
}
