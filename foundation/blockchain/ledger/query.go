package ledger

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
)

// ErrNotFound is returned when a requested block doesn't exist.
var ErrNotFound = errors.New("not found")

// Genesis returns a copy of the genesis information.
func (l *Ledger) Genesis() genesis.Genesis {
	return l.genesis
}

// Difficulty returns the number of leading zeros a block hash needs.
func (l *Ledger) Difficulty() uint {
	return l.difficulty
}

// Chain returns a copy of the chain.
func (l *Ledger) Chain() []database.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return copyBlocks(l.chain)
}

// Pending returns a copy of the pending transactions.
func (l *Ledger) Pending() []database.Tx {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pending := make([]database.Tx, len(l.pending))
	copy(pending, l.pending)

	return pending
}

// Height returns the number of blocks in the chain, genesis included.
func (l *Ledger) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.chain)
}

// LatestBlock returns a copy of the current tip of the chain.
func (l *Ledger) LatestBlock() database.Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return copyBlocks(l.chain[len(l.chain)-1:])[0]
}

// BlockByIndex returns a copy of the block at the specified index.
func (l *Ledger) BlockByIndex(index uint64) (database.Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index >= uint64(len(l.chain)) {
		return database.Block{}, fmt.Errorf("blk[%d]: %w", index, ErrNotFound)
	}

	return copyBlocks(l.chain[index : index+1])[0], nil
}

// Snapshot returns a copy of the full state of the ledger.
func (l *Ledger) Snapshot() database.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.snapshot()
}
