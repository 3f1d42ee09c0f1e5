package leveldb

import (
	"bytes"

	"github.com/omnilayer/omnicore/database"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// prefixRange builds the *util.Range goleveldb needs to iterate exactly the
// keys sharing prefix.
func prefixRange(prefix []byte) *util.Range {
	return util.BytesPrefix(prefix)
}

// cursor is a thin wrapper around a goleveldb iterator, grounded directly
// on LevelDBCursor (database/ffldb/ldb/cursor.go), generalized from
// daghash.Hash keys to arbitrary byte keys.
type cursor struct {
	it       iterator.Iterator
	prefix   []byte
	isClosed bool
}

func newCursor(it iterator.Iterator, prefix []byte) *cursor {
	return &cursor{it: it, prefix: prefix}
}

// Next moves to the next key/value pair. Returns false if the cursor is
// closed or exhausted.
func (c *cursor) Next() bool {
	if c.isClosed {
		return false
	}
	return c.it.Next()
}

// First moves to the first key/value pair in the prefix range.
func (c *cursor) First() bool {
	if c.isClosed {
		return false
	}
	return c.it.First()
}

// Seek moves to the first key/value pair whose key is >= key.
func (c *cursor) Seek(key []byte) error {
	if c.isClosed {
		return errors.New("cannot seek a closed cursor")
	}
	if !c.it.Seek(key) {
		return errors.WithStack(database.ErrNotFound)
	}
	return nil
}

// Key returns the current key with the cursor's prefix stripped.
func (c *cursor) Key() ([]byte, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the key of a closed cursor")
	}
	full := c.it.Key()
	if full == nil {
		return nil, errors.WithStack(database.ErrNotFound)
	}
	key := make([]byte, len(full))
	copy(key, full)
	return bytes.TrimPrefix(key, c.prefix), nil
}

// Value returns the current value.
func (c *cursor) Value() ([]byte, error) {
	if c.isClosed {
		return nil, errors.New("cannot get the value of a closed cursor")
	}
	value := c.it.Value()
	if value == nil {
		return nil, errors.WithStack(database.ErrNotFound)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Error returns any accumulated iteration error.
func (c *cursor) Error() error {
	return errors.WithStack(c.it.Error())
}

// Close releases the underlying iterator.
func (c *cursor) Close() error {
	if c.isClosed {
		return errors.New("cannot close an already closed cursor")
	}
	c.isClosed = true
	c.it.Release()
	return nil
}
