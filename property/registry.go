package property

import (
	"encoding/binary"

	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/omni"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get/GetIssuerAt/GetDelegateAt when the
// property does not exist.
var ErrNotFound = errors.New("property not found")

// fabricated returns the constant entry that id 1 or 2 fabricates on read (spec §3.1, §4.3: "never stored as current").
func fabricated(id omni.PropertyId) *Entry {
	issuer := dagparams.Exodus.Main
	name := "Omni"
	if id == omni.PropertyIdTest {
		issuer = dagparams.Exodus.Test
		name = "Test Omni"
	}
	return &Entry{
		Issuer: issuer,
		Kind:   omni.Divisible,
		Name:   name,
		Flags:  Flags{Fixed: true},
	}
}

func idKey(id omni.PropertyId) []byte {
	return database.BigEndianUint32(uint32(id))
}

// Create atomically assigns the next id in ecosystem, writes current +
// tx-lookup (+ unique, if set), per spec §4.3.
func Create(ctx *dbaccess.Context, ecosystem omni.Ecosystem, entry *Entry, creationTxID string, block uint64) (omni.PropertyId, error) {
	id, err := nextID(ctx, ecosystem)
	if err != nil {
		return 0, err
	}
	entry = entry.Clone()
	entry.CreationTxID = creationTxID
	entry.CreationBlock = block
	entry.UpdateBlock = block

	db := ctx.Accessor()
	if err := db.Put(dbaccess.PropertyCurrent.Key(idKey(id)), entry.Encode()); err != nil {
		return 0, errors.WithStack(err)
	}
	if err := db.Put(dbaccess.PropertyTxLookup.Key([]byte(creationTxID)), idKey(id)); err != nil {
		return 0, errors.WithStack(err)
	}
	if entry.Flags.Unique {
		if err := db.Put(dbaccess.PropertyUnique.Key(idKey(id)), []byte{1}); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	return id, nil
}

func nextID(ctx *dbaccess.Context, ecosystem omni.Ecosystem) (omni.PropertyId, error) {
	db := ctx.Accessor()
	counterKey := dbaccess.CounterMain
	first := omni.PropertyId(3)
	if ecosystem == omni.EcosystemTest {
		counterKey = dbaccess.CounterTest
		first = omni.PropertyId(0x80000003)
	}
	key := dbaccess.Counters.Key(counterKey)
	val, err := db.Get(key)
	var next omni.PropertyId
	if database.IsNotFoundError(err) {
		next = first
	} else if err != nil {
		return 0, errors.WithStack(err)
	} else {
		next = omni.PropertyId(binary.BigEndian.Uint32(val)) + 1
	}
	if err := db.Put(key, database.BigEndianUint32(uint32(next))); err != nil {
		return 0, errors.WithStack(err)
	}
	return next, nil
}

// Update writes the prior current into history keyed by the prior entry's
// update_block, then overwrites current with the new entry (spec §4.3).
func Update(ctx *dbaccess.Context, id omni.PropertyId, newEntry *Entry, block uint64) error {
	db := ctx.Accessor()
	prior, err := Get(ctx, id)
	if err != nil {
		return err
	}
	histKey := dbaccess.PropertyHistory.Key(idKey(id), database.DescendingUint64(prior.UpdateBlock))
	if err := db.Put(histKey, prior.Encode()); err != nil {
		return errors.WithStack(err)
	}

	newEntry = newEntry.Clone()
	newEntry.UpdateBlock = block
	if err := db.Put(dbaccess.PropertyCurrent.Key(idKey(id)), newEntry.Encode()); err != nil {
		return errors.WithStack(err)
	}

	if prior.Issuer != newEntry.Issuer {
		firstKey := dbaccess.IssuerHistory.Key(idKey(id), database.DescendingUint64(prior.CreationBlock))
		if _, err := db.Get(firstKey); database.IsNotFoundError(err) {
			if err := db.Put(firstKey, []byte(prior.Issuer)); err != nil {
				return errors.WithStack(err)
			}
		}
		ikey := dbaccess.IssuerHistory.Key(idKey(id), database.DescendingUint64(block))
		if err := db.Put(ikey, []byte(newEntry.Issuer)); err != nil {
			return errors.WithStack(err)
		}
	}
	if prior.Delegate != newEntry.Delegate {
		firstKey := dbaccess.DelegateHistory.Key(idKey(id), database.DescendingUint64(prior.CreationBlock))
		if _, err := db.Get(firstKey); database.IsNotFoundError(err) {
			if err := db.Put(firstKey, []byte(prior.Delegate)); err != nil {
				return errors.WithStack(err)
			}
		}
		dkey := dbaccess.DelegateHistory.Key(idKey(id), database.DescendingUint64(block))
		if err := db.Put(dkey, []byte(newEntry.Delegate)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// Get reads current; for 1/2 returns the fabricated constant entry.
func Get(ctx *dbaccess.Context, id omni.PropertyId) (*Entry, error) {
	if id == omni.PropertyIdMain || id == omni.PropertyIdTest {
		return fabricated(id), nil
	}
	val, err := ctx.Accessor().Get(dbaccess.PropertyCurrent.Key(idKey(id)))
	if database.IsNotFoundError(err) {
		return nil, errors.WithStack(ErrNotFound)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return DecodeEntry(val)
}

// Exists reports whether id names a property, fabricated entries included.
func Exists(ctx *dbaccess.Context, id omni.PropertyId) (bool, error) {
	_, err := Get(ctx, id)
	if errors.Cause(err) == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// FindByTx resolves a property id by its creation tx-id.
func FindByTx(ctx *dbaccess.Context, txID string) (omni.PropertyId, bool, error) {
	val, err := ctx.Accessor().Get(dbaccess.PropertyTxLookup.Key([]byte(txID)))
	if database.IsNotFoundError(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.WithStack(err)
	}
	return omni.PropertyId(binary.BigEndian.Uint32(val)), true, nil
}

// IsUnique reports the cached unique flag.
func IsUnique(ctx *dbaccess.Context, id omni.PropertyId) (bool, error) {
	val, err := ctx.Accessor().Get(dbaccess.PropertyUnique.Key(idKey(id)))
	if database.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	return len(val) > 0 && val[0] == 1, nil
}

// GetIssuerAt returns the issuer as of block: the most recent
// historical-issuer entry with key ≤ (block, +∞), or the current issuer if
// none (spec §4.3 "Historical issuer lookup").
func GetIssuerAt(ctx *dbaccess.Context, id omni.PropertyId, block uint64) (omni.Address, error) {
	entry, err := Get(ctx, id)
	if err != nil {
		return "", err
	}
	addr, found, err := historicalAt(ctx, dbaccess.IssuerHistory, id, block)
	if err != nil {
		return "", err
	}
	if found {
		return addr, nil
	}
	return entry.Issuer, nil
}

// GetDelegateAt is GetIssuerAt's twin for the delegate history.
func GetDelegateAt(ctx *dbaccess.Context, id omni.PropertyId, block uint64) (omni.Address, error) {
	entry, err := Get(ctx, id)
	if err != nil {
		return "", err
	}
	addr, found, err := historicalAt(ctx, dbaccess.DelegateHistory, id, block)
	if err != nil {
		return "", err
	}
	if found {
		return addr, nil
	}
	return entry.Delegate, nil
}

// historicalAt finds the greatest (block, idx)-keyed entry in bucket with
// block field ≤ target, by seeking a descending-complement cursor to the
// partial key for target and taking the first hit (which, because the
// block field is complement-encoded, is the smallest key ≥ complement(target),
// i.e. the largest real block ≤ target). Grounded on the backward-cursor
// trick used for "most recent first" traversal of per-block logs.
func historicalAt(ctx *dbaccess.Context, bucket database.Bucket, id omni.PropertyId, target uint64) (omni.Address, bool, error) {
	cur, err := ctx.Accessor().Cursor(bucket.Key(idKey(id)))
	if err != nil {
		return "", false, errors.WithStack(err)
	}
	defer cur.Close()
	seekKey := bucket.Key(idKey(id), database.DescendingUint64(target))
	if err := cur.Seek(seekKey); err != nil {
		if database.IsNotFoundError(err) {
			return "", false, nil
		}
		return "", false, errors.WithStack(err)
	}
	key, err := cur.Key()
	if err != nil {
		return "", false, errors.WithStack(err)
	}
	if len(key) < 8 {
		return "", false, errors.New("property: malformed history key")
	}
	storedBlock := database.DecodeDescendingUint64(key[:8])
	if storedBlock > target {
		return "", false, nil
	}
	val, err := cur.Value()
	if err != nil {
		return "", false, errors.WithStack(err)
	}
	return omni.Address(val), true, nil
}

// ListByIssuer returns every property id whose current entry's issuer is
// addr, by a full scan of PropertyCurrent. Crowdsale lookups are the only
// caller; a per-issuer secondary index would replace this if the number
// of properties per issuer stopped being small.
func ListByIssuer(ctx *dbaccess.Context, addr omni.Address) ([]omni.PropertyId, error) {
	db := ctx.Accessor()
	cur, err := db.Cursor(dbaccess.PropertyCurrent.Path())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer cur.Close()

	var ids []omni.PropertyId
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		val, err := cur.Value()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		entry, err := DecodeEntry(val)
		if err != nil {
			return nil, err
		}
		if entry.Issuer == addr {
			ids = append(ids, omni.PropertyId(binary.BigEndian.Uint32(key)))
		}
	}
	if err := cur.Error(); err != nil {
		return nil, errors.WithStack(err)
	}
	return ids, nil
}

// AllCurrent returns every property's current entry, keyed by id, by a
// full scan of PropertyCurrent. Used by the consensus hash (every
// property-registry record, spec §4.8.1) and by the block pipeline's
// crowdsale-expiry sweep.
func AllCurrent(ctx *dbaccess.Context) (map[omni.PropertyId]*Entry, error) {
	db := ctx.Accessor()
	cur, err := db.Cursor(dbaccess.PropertyCurrent.Path())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer cur.Close()

	out := make(map[omni.PropertyId]*Entry)
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		val, err := cur.Value()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		entry, err := DecodeEntry(val)
		if err != nil {
			return nil, err
		}
		out[omni.PropertyId(binary.BigEndian.Uint32(key))] = entry
	}
	if err := cur.Error(); err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

// RollbackAbove restores, for every property whose current update_block ≥
// block, the most recent historical record with update_block < block; if
// none exists, deletes the property record and its tx-lookup entry (spec
// §4.3).
func RollbackAbove(ctx *dbaccess.Context, block uint64) error {
	db := ctx.Accessor()
	cur, err := db.Cursor(dbaccess.PropertyCurrent.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()

	var toRestore []omni.PropertyId
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		val, err := cur.Value()
		if err != nil {
			return errors.WithStack(err)
		}
		entry, err := DecodeEntry(val)
		if err != nil {
			return err
		}
		if entry.UpdateBlock >= block {
			toRestore = append(toRestore, omni.PropertyId(binary.BigEndian.Uint32(key)))
		}
	}
	if err := cur.Error(); err != nil {
		return errors.WithStack(err)
	}

	for _, id := range toRestore {
		if err := rollbackOne(ctx, id, block); err != nil {
			return err
		}
	}
	return nil
}

func rollbackOne(ctx *dbaccess.Context, id omni.PropertyId, block uint64) error {
	db := ctx.Accessor()
	histCur, err := db.Cursor(dbaccess.PropertyHistory.Key(idKey(id)))
	if err != nil {
		return errors.WithStack(err)
	}
	defer histCur.Close()

	var restored *Entry
	var restoredKey []byte
	var toDelete [][]byte
	for ok := histCur.First(); ok; ok = histCur.Next() {
		key, err := histCur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(key) < 8 {
			return errors.New("property: malformed history key")
		}
		histBlock := database.DecodeDescendingUint64(key[:8])
		if histBlock >= block {
			toDelete = append(toDelete, append([]byte{}, key...))
			continue
		}
		if restored == nil {
			val, err := histCur.Value()
			if err != nil {
				return errors.WithStack(err)
			}
			restored, err = DecodeEntry(val)
			if err != nil {
				return err
			}
			restoredKey = append([]byte{}, key...)
		}
	}
	if err := histCur.Error(); err != nil {
		return errors.WithStack(err)
	}

	for _, k := range toDelete {
		if err := db.Delete(dbaccess.PropertyHistory.Key(idKey(id), k)); err != nil {
			return errors.WithStack(err)
		}
	}

	if restored == nil {
		current, err := Get(ctx, id)
		if err == nil {
			if err := db.Delete(dbaccess.PropertyTxLookup.Key([]byte(current.CreationTxID))); err != nil {
				return errors.WithStack(err)
			}
		}
		if err := db.Delete(dbaccess.PropertyCurrent.Key(idKey(id))); err != nil {
			return errors.WithStack(err)
		}
		if err := db.Delete(dbaccess.PropertyUnique.Key(idKey(id))); err != nil {
			return errors.WithStack(err)
		}
		return nil
	}

	if err := db.Put(dbaccess.PropertyCurrent.Key(idKey(id)), restored.Encode()); err != nil {
		return errors.WithStack(err)
	}
	return db.Delete(dbaccess.PropertyHistory.Key(idKey(id), restoredKey))
}
