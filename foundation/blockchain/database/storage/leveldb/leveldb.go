// Package leveldb implements the ability to read and write a ledger snapshot
// to a LevelDB database.
package leveldb

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// snapshotKey is the key the encoded snapshot is stored under.
var snapshotKey = []byte("ledger:snapshot")

// LevelDB represents the serialization implementation for reading and
// storing the ledger snapshot in a LevelDB database. This implements the
// database.Storage interface.
type LevelDB struct {
	db *leveldb.DB
}

// New opens or creates the database at the specified path.
func New(dbPath string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &LevelDB{db: db}, nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// Save replaces the stored snapshot. The write is synced before returning.
func (l *LevelDB) Save(snapshot database.Snapshot) error {
	data, err := database.EncodeSnapshot(snapshot)
	if err != nil {
		return err
	}

	if err := l.db.Put(snapshotKey, data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}

	return nil
}

// Load reads the stored snapshot.
func (l *LevelDB) Load() (database.Snapshot, error) {
	data, err := l.db.Get(snapshotKey, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.Snapshot{}, database.ErrNoSnapshot
		}
		return database.Snapshot{}, fmt.Errorf("get snapshot: %w", err)
	}

	return database.DecodeSnapshot(data)
}
