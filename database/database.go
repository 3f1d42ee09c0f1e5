// Package database defines the ordered key-value storage abstraction that
// every logical table in omnicore is built on top of. Every logical table
// (tally, property registry, NFT ranges, order books, tx/trade/STO lists,
// fee cache, checkpoints) is a prefixed keyspace inside a single engine
// handle; the abstraction does not know or care what any particular table
// means.
package database

// DataAccessor defines the common read/write surface shared by a Database
// handle and by an open Transaction. It is split out from Database so that
// a Transaction isn't forced to also implement Begin/Close.
//
// Important: this is not merged into Database because Transaction embeds
// it too; were Database and DataAccessor the same interface, a Transaction
// implementation would be forced to also implement Begin and Close, which
// makes no sense for a transaction.
type DataAccessor interface {
	// Get returns the value for key, or ErrNotFound if it does not exist.
	Get(key []byte) ([]byte, error)

	// Has returns whether key exists.
	Has(key []byte) (bool, error)

	// Put sets the value for key, overwriting any previous value.
	Put(key, value []byte) error

	// Delete removes key. It is not an error to delete a missing key.
	Delete(key []byte) error

	// Cursor opens a cursor over every key sharing the given prefix.
	Cursor(prefix []byte) (Cursor, error)
}

// Database is a handle to the underlying storage engine. It can begin
// atomic transactions and be closed.
type Database interface {
	DataAccessor

	// Begin begins a new atomic transaction.
	Begin() (Transaction, error)

	// Close closes the database.
	Close() error
}

// Transaction is an atomic batch of reads and writes. Writes staged inside
// a Transaction are invisible to everyone else until Commit succeeds, and
// are discarded entirely on Rollback or on an unclean exit.
type Transaction interface {
	DataAccessor

	// Commit atomically applies every staged write. On failure the
	// database is left exactly as it was before the transaction began.
	Commit() error

	// Rollback discards every staged write.
	Rollback() error

	// RollbackUnlessClosed rolls back unless the transaction was already
	// committed or rolled back. Safe to call in a defer.
	RollbackUnlessClosed() error
}

// Cursor iterates, in key order, over every key sharing the prefix it was
// opened with. A cursor observes a consistent snapshot for its entire
// lifetime, independent of writes that happen after it was opened.
type Cursor interface {
	// Next advances to the next key/value pair. Returns false once
	// exhausted or after the cursor has been closed.
	Next() bool

	// First seeks to the first key/value pair. Returns false if the
	// prefix range is empty.
	First() bool

	// Seek moves to the first key/value pair whose full key is greater
	// than or equal to key. key must begin with the cursor's prefix.
	Seek(key []byte) error

	// Key returns the current key with the cursor's prefix stripped.
	Key() ([]byte, error)

	// Value returns the current value.
	Value() ([]byte, error)

	// Error returns any error accumulated during iteration. Running off
	// the end of the range is not an error.
	Error() error

	// Close releases the cursor's resources.
	Close() error
}
