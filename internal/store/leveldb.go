package store

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDB is a Store backed by a goleveldb database.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens or creates a database in dir.
func OpenLevelDB(dir string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return &LevelDB{db: db}, nil
}

// OpenLevelDBMemory opens a database held entirely in memory.
func OpenLevelDBMemory() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

// Get returns the value stored under key.
func (l *LevelDB) Get(key string) ([]byte, error) {
	v, err := l.db.Get([]byte(key), nil)
	if err != nil {
		return nil, mapErr(err)
	}
	return v, nil
}

// Put stores value under key, syncing to disk.
func (l *LevelDB) Put(key string, value []byte) error {
	return mapErr(l.db.Put([]byte(key), value, &opt.WriteOptions{Sync: true}))
}

// Delete removes key. Deleting a missing key is not an error.
func (l *LevelDB) Delete(key string) error {
	return mapErr(l.db.Delete([]byte(key), &opt.WriteOptions{Sync: true}))
}

// Close closes the database.
func (l *LevelDB) Close() error {
	return mapErr(l.db.Close())
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leveldb.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, leveldb.ErrClosed):
		return ErrClosed
	}
	return err
}
