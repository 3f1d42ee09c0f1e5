// Package dbaccess provides the per-table prefixes every persisted store in
// omnicore keys into, plus a Context that lets helpers read/write without
// caring whether they are running against a bare database.Database handle
// or inside an open database.Transaction. Grounded on the
// `context.accessor()` call seen in dbaccess/fee_data.go; the concrete
// Context type is rebuilt here since only two leaf accessor files
// survived retrieval.
package dbaccess

import "github.com/omnilayer/omnicore/database"

// Context wraps whichever DataAccessor is in scope for a call: the bare
// database handle when no transaction is open, or the currently open
// Transaction when one is. Every table accessor function in this package
// and in the component packages (tally, property, nft, ...) takes a
// Context as its first argument instead of a concrete database.Database.
type Context struct {
	db DataAccessor
}

// DataAccessor is the minimal surface a Context needs; satisfied by both
// database.Database and database.Transaction.
type DataAccessor = database.DataAccessor

// NewContext builds a Context bound directly to a database handle, with no
// transaction open.
func NewContext(db database.Database) *Context {
	return &Context{db: db}
}

// WithTx returns a new Context bound to an already-open transaction, so
// that helpers called with it stage their writes into that transaction
// instead of writing directly.
func WithTx(tx database.Transaction) *Context {
	return &Context{db: tx}
}

// Accessor returns the DataAccessor this Context currently reads/writes
// through (grounded on dbaccess/fee_data.go's `context.accessor()`).
func (c *Context) Accessor() DataAccessor {
	return c.db
}
