// Package memory implements the ability to read and write a ledger snapshot
// to memory.
package memory

import (
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Memory represents the serialization implementation for reading and storing
// the ledger snapshot in memory. The encoded form is kept so a loaded snapshot
// never shares slices with the ledger that saved it. This implements the
// database.Storage interface.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Save takes the specified snapshot and stores it in memory.
func (m *Memory) Save(snapshot database.Snapshot) error {
	data, err := database.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = data
	return nil
}

// Load returns the last snapshot that was saved.
func (m *Memory) Load() (database.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.data == nil {
		return database.Snapshot{}, database.ErrNoSnapshot
	}

	return database.DecodeSnapshot(m.data)
}
