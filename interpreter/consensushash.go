package interpreter

import (
	"crypto/sha256"

	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/pkg/errors"
)

// ConsensusHash implements spec §4.8.1: a double-SHA256 over a canonical,
// lexicographically tie-broken concatenation of every non-zero tally
// entry, every property-registry record, every resting MetaDEx order,
// every accepted DEx-1 offer, and every frozen (property, address) pair.
// NFT ranges are deliberately excluded, the spec calls them out as the
// one piece of state two consensus-compatible nodes are allowed to
// disagree on (e.g. during a still-in-flight range migration).
//
// Bucket-backed components are hashed straight off the cursor's raw
// (key, value) bytes rather than through a decode/re-encode round trip:
// every key above is built by a Bucket.Key call whose field widths are
// fixed or length-prefixed, so distinct records never collide, and
// scanning a bucket already yields keys in ascending byte order, exactly
// the tie-break the spec asks for, with no extra sort needed.
func ConsensusHash(ictx *Context) ([32]byte, error) {
	h := sha256.New()

	for _, e := range ictx.Tally.Entries() {
		h.Write(propKey(e.Property))
		h.Write([]byte(e.Address))
		h.Write([]byte{byte(e.Bucket)})
		h.Write(database.BigEndianUint64(uint64(e.Amount)))
	}

	if err := hashBucket(ictx, h, dbaccess.PropertyCurrent); err != nil {
		return [32]byte{}, err
	}
	if err := hashBucket(ictx, h, dbaccess.MetaDExOrders); err != nil {
		return [32]byte{}, err
	}
	if err := hashBucket(ictx, h, dbaccess.DExAccepts); err != nil {
		return [32]byte{}, err
	}
	if err := hashFrozenPairs(ictx, h); err != nil {
		return [32]byte{}, err
	}

	var out [32]byte
	sum := sha256.Sum256(h.Sum(nil))
	copy(out[:], sum[:])
	return out, nil
}

func hashBucket(ictx *Context, h interface{ Write([]byte) (int, error) }, bucket database.Bucket) error {
	cur, err := ictx.DB.Accessor().Cursor(bucket.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()

	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		val, err := cur.Value()
		if err != nil {
			return errors.WithStack(err)
		}
		h.Write(key)
		h.Write(val)
	}
	return errors.WithStack(cur.Error())
}

// hashFrozenPairs scans FreezeFlags and writes only pairs currently
// flagged frozen (value byte 1), an unfreeze leaves a 0-valued record in
// place rather than deleting it, so unlike the other buckets a raw scan
// would otherwise pull in stale unfrozen entries.
func hashFrozenPairs(ictx *Context, h interface{ Write([]byte) (int, error) }) error {
	cur, err := ictx.DB.Accessor().Cursor(dbaccess.FreezeFlags.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()

	for ok := cur.First(); ok; ok = cur.Next() {
		val, err := cur.Value()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(val) == 0 || val[0] != 1 {
			continue
		}
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		h.Write(key)
	}
	return errors.WithStack(cur.Error())
}
