package nft

import (
	"encoding/binary"

	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/pkg/errors"
)

// opType distinguishes an overwritten/deleted key (oldValue replays as a
// Put) from a freshly-inserted one (replays as a Delete).
type opType byte

const (
	opOverwrite opType = iota
	opInsert
)

// journal accumulates rollback records for one block's worth of NFT
// mutations, flushed to the NFTRollback log by Flush. Grounded on
// blockdag's stage-a-diff-before-committing shape.
type journal struct {
	block   uint64
	seq     uint32
	entries [][]byte // encoded (opType, key, oldValue) records
}

func newJournal(block uint64) *journal {
	return &journal{block: block}
}

// recordBeforePut must be called with the range key's current raw value
// (nil if absent) before a Put or Delete is applied, so rollback_above can
// restore it.
func (j *journal) recordBeforePut(key, oldValue []byte) {
	op := opOverwrite
	if oldValue == nil {
		op = opInsert
	}
	var rec []byte
	rec = append(rec, byte(op))
	var klen [4]byte
	binary.BigEndian.PutUint32(klen[:], uint32(len(key)))
	rec = append(rec, klen[:]...)
	rec = append(rec, key...)
	rec = append(rec, oldValue...)
	j.entries = append(j.entries, rec)
}

// flush writes every accumulated record to the NFTRollback log under
// (block, seq) keys, numbering after any records an earlier journal has
// already flushed for the same block.
func (j *journal) flush(db database.DataAccessor) error {
	cur, err := db.Cursor(dbaccess.NFTRollback.Key(database.BigEndianUint64(j.block)))
	if err != nil {
		return errors.WithStack(err)
	}
	for ok := cur.First(); ok; ok = cur.Next() {
		j.seq++
	}
	cur.Close()
	for _, rec := range j.entries {
		key := dbaccess.NFTRollback.Key(database.BigEndianUint64(j.block), database.BigEndianUint32(j.seq))
		if err := db.Put(key, rec); err != nil {
			return errors.WithStack(err)
		}
		j.seq++
	}
	return nil
}

// put stages a Put on key, recording the pre-image into j first.
func put(db database.DataAccessor, j *journal, key, value []byte) error {
	old, err := db.Get(key)
	if err != nil && !database.IsNotFoundError(err) {
		return errors.WithStack(err)
	}
	if database.IsNotFoundError(err) {
		old = nil
	}
	j.recordBeforePut(key, old)
	return errors.WithStack(db.Put(key, value))
}

// del stages a Delete on key, recording the pre-image into j first. A
// delete of a nonexistent key is a no-op and is not journaled.
func del(db database.DataAccessor, j *journal, key []byte) error {
	old, err := db.Get(key)
	if database.IsNotFoundError(err) {
		return nil
	}
	if err != nil {
		return errors.WithStack(err)
	}
	j.recordBeforePut(key, old)
	return errors.WithStack(db.Delete(key))
}

// RollbackAbove drains every rollback entry at height ≥ block and replays
// it in reverse (spec §4.4: "rollback_above(block) drains those entries
// and replays them in reverse").
func RollbackAbove(ctx *dbaccess.Context, block uint64) error {
	db := ctx.Accessor()
	cur, err := db.Cursor(dbaccess.NFTRollback.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()

	type record struct {
		key    []byte
		opType opType
		dbKey  []byte
		old    []byte
	}
	var toReplay []record
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(key) < 8 {
			return errors.New("nft: malformed rollback key")
		}
		height := database.DecodeBigEndianUint64(key[:8])
		if height < block {
			continue
		}
		val, err := cur.Value()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(val) < 1+4 {
			return errors.New("nft: malformed rollback record")
		}
		op := opType(val[0])
		klen := binary.BigEndian.Uint32(val[1:5])
		if uint32(len(val)) < 5+klen {
			return errors.New("nft: truncated rollback record key")
		}
		dbKey := val[5 : 5+klen]
		old := val[5+klen:]
		toReplay = append(toReplay, record{key: append([]byte{}, key...), opType: op, dbKey: append([]byte{}, dbKey...), old: append([]byte{}, old...)})
	}
	if err := cur.Error(); err != nil {
		return errors.WithStack(err)
	}

	// Replay in reverse order (highest block/seq first) so later
	// overwrites are undone before earlier ones.
	for i := len(toReplay) - 1; i >= 0; i-- {
		r := toReplay[i]
		switch r.opType {
		case opInsert:
			if err := db.Delete(r.dbKey); err != nil {
				return errors.WithStack(err)
			}
		case opOverwrite:
			if err := db.Put(r.dbKey, r.old); err != nil {
				return errors.WithStack(err)
			}
		}
		if err := db.Delete(dbaccess.NFTRollback.Key(r.key)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
