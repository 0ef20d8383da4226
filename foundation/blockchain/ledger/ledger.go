// Package ledger is the core API for the blockchain and implements all the
// business rules for the chain and the pending transaction pool.
package ledger

import (
	"errors"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
)

// EventPrefix marks the events that are meant for clients of the node
// rather than for the log.
const EventPrefix = "event:"

// EventHandler defines a function that is called when events
// occur in the processing of the ledger.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to construct a ledger.
type Config struct {
	Genesis      genesis.Genesis
	Storage      database.Storage
	ValidAddress func(address string) bool
	EvHandler    EventHandler
}

// Ledger manages the chain and the pending transactions. One lock guards
// both so a reader never sees a block and pending transactions that
// disagree with each other.
type Ledger struct {
	genesis      genesis.Genesis
	genesisBlock database.Block
	difficulty   uint
	storage      database.Storage
	validAddress func(address string) bool
	evHandler    EventHandler

	mu        sync.RWMutex
	chain     []database.Block
	pending   []database.Tx
	committed map[string]struct{}
}

// New constructs a ledger, restoring the last persisted snapshot. A snapshot
// that is missing or can't be validated is replaced by a chain holding only
// the genesis block.
func New(cfg Config) (*Ledger, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	validAddress := cfg.ValidAddress
	if validAddress == nil {
		validAddress = database.IsAddress
	}

	l := Ledger{
		genesis:      cfg.Genesis,
		genesisBlock: database.NewGenesisBlock(cfg.Genesis.TimeStamp()),
		difficulty:   cfg.Genesis.Difficulty,
		storage:      cfg.Storage,
		validAddress: validAddress,
		evHandler:    ev,
	}

	l.restore()

	return &l, nil
}

// Close persists the final state of the ledger and releases the storage.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.storage.Save(l.snapshot()); err != nil {
		l.storage.Close()
		return err
	}

	return l.storage.Close()
}

// =============================================================================

// restore loads the persisted snapshot into memory.
func (l *Ledger) restore() {
	l.reset()

	snapshot, err := l.storage.Load()
	switch {
	case errors.Is(err, database.ErrNoSnapshot):
		l.evHandler("ledger: restore: no snapshot, starting from genesis")
		return

	case err != nil:
		l.evHandler("ledger: restore: ERROR: %s: starting from genesis", err)
		return
	}

	if err := l.validateChain(snapshot.Chain); err != nil {
		l.evHandler("ledger: restore: ERROR: invalid chain: %s: starting from genesis", err)
		return
	}

	if snapshot.Difficulty != l.difficulty {
		l.evHandler("ledger: restore: WARNING: snapshot difficulty[%d] differs from genesis difficulty[%d]", snapshot.Difficulty, l.difficulty)
	}

	l.chain = copyBlocks(snapshot.Chain)
	l.indexCommitted()

	for _, tx := range snapshot.Pending {
		if _, exists := l.committed[tx.ID]; exists {
			continue
		}
		l.pending = append(l.pending, tx)
	}

	l.evHandler("ledger: restore: height[%d]: pending[%d]", len(l.chain), len(l.pending))
}

// reset places the ledger back to the genesis only state.
func (l *Ledger) reset() {
	l.chain = []database.Block{l.genesisBlock}
	l.pending = []database.Tx{}
	l.committed = make(map[string]struct{})
}

// indexCommitted rebuilds the set of transaction ids held by the chain.
func (l *Ledger) indexCommitted() {
	l.committed = make(map[string]struct{})
	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			l.committed[tx.ID] = struct{}{}
		}
	}
}

// persist writes the current state to storage. A failure is reported but
// doesn't roll back the change since memory is the source of truth while
// the node is running.
func (l *Ledger) persist() {
	if err := l.storage.Save(l.snapshot()); err != nil {
		l.evHandler("ledger: persist: ERROR: %s", err)
	}
}

// snapshot produces a copy of the ledger state. The caller must hold the lock.
func (l *Ledger) snapshot() database.Snapshot {
	pending := make([]database.Tx, len(l.pending))
	copy(pending, l.pending)

	return database.Snapshot{
		Chain:      copyBlocks(l.chain),
		Pending:    pending,
		Difficulty: l.difficulty,
	}
}

// copyBlocks returns a copy of the blocks that shares no slices.
func copyBlocks(blocks []database.Block) []database.Block {
	out := make([]database.Block, len(blocks))
	for i, block := range blocks {
		trans := make([]database.Tx, len(block.Transactions))
		copy(trans, block.Transactions)
		block.Transactions = trans
		out[i] = block
	}
	return out
}
