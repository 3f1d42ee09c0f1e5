package leveldb

import (
	"github.com/omnilayer/omnicore/database"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// transaction stages writes in an in-memory leveldb.Batch and reads through
// to the underlying database for anything not yet staged. Grounded on
// database2/ffldb/transaction.go's split between a staged batch and a
// pass-through reader, adapted from ffldb's flat-file-plus-ldb transaction
// to a pure LevelDB one (omnicore has no flat-file blob store: every
// logical table fits as ordered key/value rows).
type transaction struct {
	ldb    *leveldb.DB
	batch  *leveldb.Batch
	closed bool
}

func newTransaction(ldb *leveldb.DB) *transaction {
	return &transaction{ldb: ldb, batch: new(leveldb.Batch)}
}

// Get reads through to the underlying database. Transactions in omnicore
// are write-batches, not full snapshot-isolated views: per spec §4.1 ("on
// failure the store state is unchanged"), only Commit's atomicity is
// guaranteed, not read-your-writes within an open transaction.
func (tx *transaction) Get(key []byte) ([]byte, error) {
	value, err := tx.ldb.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, errors.WithStack(database.ErrNotFound)
		}
		return nil, errors.WithStack(err)
	}
	return value, nil
}

// Has reads through to the underlying database.
func (tx *transaction) Has(key []byte) (bool, error) {
	has, err := tx.ldb.Has(key, nil)
	return has, errors.WithStack(err)
}

// Put stages a write into the transaction's batch.
func (tx *transaction) Put(key, value []byte) error {
	tx.batch.Put(key, value)
	return nil
}

// Delete stages a delete into the transaction's batch.
func (tx *transaction) Delete(key []byte) error {
	tx.batch.Delete(key)
	return nil
}

// Cursor opens a cursor over the underlying database (uncommitted writes in
// this transaction are not visible to it).
func (tx *transaction) Cursor(prefix []byte) (database.Cursor, error) {
	return newCursor(tx.ldb.NewIterator(prefixRange(prefix), nil), prefix), nil
}

// Commit atomically applies every staged Put/Delete. On failure the
// database is left exactly as it was before Commit was called.
func (tx *transaction) Commit() error {
	if tx.closed {
		return errors.New("cannot commit a closed transaction")
	}
	tx.closed = true
	return errors.WithStack(tx.ldb.Write(tx.batch, nil))
}

// Rollback discards every staged write.
func (tx *transaction) Rollback() error {
	if tx.closed {
		return errors.New("cannot rollback a closed transaction")
	}
	tx.closed = true
	tx.batch.Reset()
	return nil
}

// RollbackUnlessClosed rolls back unless Commit or Rollback already ran.
func (tx *transaction) RollbackUnlessClosed() error {
	if tx.closed {
		return nil
	}
	return tx.Rollback()
}
