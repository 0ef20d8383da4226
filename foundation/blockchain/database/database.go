// Package database handles all the lower level support for the blockchain
// data model: transactions, blocks, chain validation and the snapshot form
// used to persist and share a ledger.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoSnapshot is returned by a Storage when nothing has been persisted.
var ErrNoSnapshot = errors.New("no snapshot persisted")

// Storage interface represents the behavior required to be implemented by any
// package providing support for persisting and reading a ledger snapshot.
type Storage interface {
	Save(snapshot Snapshot) error
	Load() (Snapshot, error)
	Close() error
}

// =============================================================================

// Snapshot represents the full state of a ledger. It is what is written to
// storage and what is sent to peers asking for the blockchain.
type Snapshot struct {
	Chain      []Block `json:"chain"`
	Pending    []Tx    `json:"pending_transactions"`
	Difficulty uint    `json:"difficulty"`
}

// EncodeSnapshot marshals the snapshot into its JSON form.
func EncodeSnapshot(snapshot Snapshot) ([]byte, error) {
	if snapshot.Chain == nil {
		snapshot.Chain = []Block{}
	}
	if snapshot.Pending == nil {
		snapshot.Pending = []Tx{}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %s", ErrSerialization, err)
	}

	return data, nil
}

// DecodeSnapshot unmarshals the JSON form of a snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode snapshot: %s", ErrSerialization, err)
	}

	return snapshot, nil
}

// =============================================================================

// ValidateChain walks the chain and checks the genesis block, the index and
// hash linkage of every block, the recomputed content hash and the proof of
// work. A transaction id can only be committed once in the chain. A chain
// holding only the genesis block is valid.
func ValidateChain(chain []Block, difficulty uint) error {
	if len(chain) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidGenesis)
	}

	genesis := chain[0]
	if !genesis.IsGenesis() {
		return fmt.Errorf("%w: index %d, previous hash %q", ErrInvalidGenesis, genesis.Index, genesis.PreviousHash)
	}

	if hash := genesis.ComputeHash(); genesis.Hash != hash {
		return fmt.Errorf("blk[0]: %w: got %s, exp %s", ErrInvalidHash, genesis.Hash, hash)
	}

	committed := make(map[string]struct{})
	for i, block := range chain {
		if i > 0 {
			if err := block.ValidateBlock(chain[i-1], difficulty); err != nil {
				return err
			}
		}

		for _, tx := range block.Transactions {
			if _, exists := committed[tx.ID]; exists {
				return fmt.Errorf("blk[%d]: %w: tx[%s]", block.Index, ErrDuplicateTx, tx.ID)
			}
			committed[tx.ID] = struct{}{}
		}
	}

	return nil
}
