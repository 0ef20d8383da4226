// Package disk implements the ability to read and write a ledger snapshot
// to a JSON file on disk.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Disk represents the serialization implementation for reading and storing
// the ledger snapshot in a single file on disk. This implements the
// database.Storage interface.
type Disk struct {
	mu     sync.Mutex
	dbPath string
}

// New constructs a Disk value for use. The directory holding the file is
// created if it doesn't exist.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since the file is written
// and immediately closed on every save.
func (d *Disk) Close() error {
	return nil
}

// Save writes the snapshot to a temporary file and then renames it over the
// existing file so a crash can't leave a partially written snapshot behind.
func (d *Disk) Save(snapshot database.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Marshal the snapshot for writing to disk in a more human readable format.
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	tmp := d.dbPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	if err := os.Rename(tmp, d.dbPath); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}

// Load reads the snapshot from disk.
func (d *Disk) Load() (database.Snapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.dbPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.Snapshot{}, database.ErrNoSnapshot
		}
		return database.Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}

	return database.DecodeSnapshot(data)
}

// encode produces the indented form of the snapshot.
func encode(snapshot database.Snapshot) ([]byte, error) {
	data, err := database.EncodeSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	var v json.RawMessage = data
	indented, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: indent snapshot: %s", database.ErrSerialization, err)
	}

	return indented, nil
}
