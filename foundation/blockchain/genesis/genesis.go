// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Set of default values used when no genesis file is provided.
const (
	DefaultDifficulty   = 4
	DefaultMiningReward = 100
)

// Genesis represents the genesis file.
type Genesis struct {
	Date         time.Time `json:"date"`          // Timestamp recorded by the genesis block.
	Difficulty   uint      `json:"difficulty"`    // Number of leading zeros a block hash needs.
	MiningReward float64   `json:"mining_reward"` // Reward for mining a block.
}

// Default returns the genesis used when no file is specified. Every node
// started with the default shares the same genesis block.
func Default() Genesis {
	return Genesis{
		Date:         time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Difficulty:   DefaultDifficulty,
		MiningReward: DefaultMiningReward,
	}
}

// TimeStamp returns the genesis date in Unix milliseconds.
func (g Genesis) TimeStamp() uint64 {
	return uint64(g.Date.UTC().UnixMilli())
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	if genesis.MiningReward <= 0 {
		return Genesis{}, fmt.Errorf("mining reward must be greater than zero: %v", genesis.MiningReward)
	}

	return genesis, nil
}
