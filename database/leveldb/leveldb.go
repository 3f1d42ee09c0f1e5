// Package leveldb is the sole storage engine behind database.Database,
// wrapping github.com/syndtr/goleveldb the same way database/ffldb/ldb
// wraps it: one shared on-disk LevelDB instance, with every logical table
// living in its own prefixed keyspace rather than its own physical
// database.
package leveldb

import (
	"github.com/omnilayer/omnicore/database"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelDB is a database.Database backed by a single goleveldb handle.
type LevelDB struct {
	ldb *leveldb.DB
}

// Open opens (creating if necessary) a LevelDB-backed database at path.
func Open(path string) (*LevelDB, error) {
	opts := &opt.Options{
		ErrorIfMissing: false,
	}
	ldb, err := leveldb.OpenFile(path, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening database at %s", path)
	}
	return &LevelDB{ldb: ldb}, nil
}

// Get returns the value for key, or database.ErrNotFound if absent.
func (db *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := db.ldb.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, errors.WithStack(database.ErrNotFound)
		}
		return nil, errors.WithStack(err)
	}
	return value, nil
}

// Has reports whether key exists.
func (db *LevelDB) Has(key []byte) (bool, error) {
	has, err := db.ldb.Has(key, nil)
	return has, errors.WithStack(err)
}

// Put writes key/value directly, outside of any transaction.
func (db *LevelDB) Put(key, value []byte) error {
	return errors.WithStack(db.ldb.Put(key, value, nil))
}

// Delete removes key directly, outside of any transaction.
func (db *LevelDB) Delete(key []byte) error {
	return errors.WithStack(db.ldb.Delete(key, nil))
}

// Cursor opens a cursor over every key sharing prefix.
func (db *LevelDB) Cursor(prefix []byte) (database.Cursor, error) {
	return newCursor(db.ldb.NewIterator(prefixRange(prefix), nil), prefix), nil
}

// Begin starts a new atomic write batch.
func (db *LevelDB) Begin() (database.Transaction, error) {
	return newTransaction(db.ldb), nil
}

// Close releases the underlying engine handle.
func (db *LevelDB) Close() error {
	return errors.WithStack(db.ldb.Close())
}
