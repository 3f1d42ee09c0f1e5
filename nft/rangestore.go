// Package nft implements the non-fungible-token range store (spec §4.4):
// contiguous ranges of unique token ids per property, grouped by kind, with
// ownership merges/splits and a per-block rollback log. Grounded directly
// on the write-ahead-journal idiom used in `blockdag.saveChangesFromBlock`/
// `applyDAGChanges` (stage a diff, commit or replay it backward on
// disconnect), adapted from block-DAG state to per-range ownership rows.
package nft

import (
	"encoding/binary"

	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/omni"
	"github.com/pkg/errors"
)

// Kind selects which of the four NFT row kinds a range belongs to (spec
// §3.1): RangeIndex carries ownership, the other three carry free-form
// data keyed the same way.
type Kind byte

// The four kinds spec §3.1 names.
const (
	RangeIndex Kind = iota
	IssuerData
	HolderData
	GrantData
)

// Range is a half-open-free, inclusive [Start, End] token-id interval.
type Range struct {
	Start uint64
	End   uint64
}

// MaxTokenID is the ceiling Create saturates at (spec §4.4: "saturates at
// 2^63 − 1 if overflow would occur").
const MaxTokenID = uint64(1<<63 - 1)

// ErrNoCoveringRange is returned by Move when no owning range exactly
// covers the requested interval.
var ErrNoCoveringRange = errors.New("nft: no owning range covers the requested interval")

// ErrWrongOwner is returned by Move when the covering range's owner does
// not match the expected sender.
var ErrWrongOwner = errors.New("nft: covering range is not owned by sender")

func propKindKey(property omni.PropertyId, kind Kind) []byte {
	return append(database.BigEndianUint32(uint32(property)), byte(kind))
}

func rangeKey(property omni.PropertyId, kind Kind, start uint64) []byte {
	return dbaccess.NFTRanges.Key(propKindKey(property, kind), database.DescendingUint64(start))
}

func encodeValue(end uint64, payload []byte) []byte {
	buf := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(buf[:8], end)
	copy(buf[8:], payload)
	return buf
}

func decodeValue(v []byte) (end uint64, payload []byte) {
	return binary.BigEndian.Uint64(v[:8]), v[8:]
}

// get reads the single range stored at exactly start (not a covering
// lookup); used internally by scans.
func get(db database.DataAccessor, property omni.PropertyId, kind Kind, start uint64) (end uint64, payload []byte, found bool, err error) {
	val, err := db.Get(rangeKey(property, kind, start))
	if database.IsNotFoundError(err) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, errors.WithStack(err)
	}
	e, p := decodeValue(val)
	return e, p, true, nil
}

// findCovering locates the range (if any) that contains point, by seeking
// a descending-complement cursor to point: the first hit is the largest
// start ≤ point, then checking end ≥ point. Grounded on the same
// backward-cursor trick used in property.historicalAt.
func findCovering(db database.DataAccessor, property omni.PropertyId, kind Kind, point uint64) (Range, []byte, bool, error) {
	prefix := dbaccess.NFTRanges.Key(propKindKey(property, kind))
	cur, err := db.Cursor(prefix)
	if err != nil {
		return Range{}, nil, false, errors.WithStack(err)
	}
	defer cur.Close()

	seekKey := dbaccess.NFTRanges.Key(propKindKey(property, kind), database.DescendingUint64(point))
	if err := cur.Seek(seekKey); err != nil {
		if database.IsNotFoundError(err) {
			return Range{}, nil, false, nil
		}
		return Range{}, nil, false, errors.WithStack(err)
	}
	key, err := cur.Key()
	if err != nil {
		return Range{}, nil, false, errors.WithStack(err)
	}
	if len(key) < 8 {
		return Range{}, nil, false, errors.New("nft: malformed range key")
	}
	start := database.DecodeDescendingUint64(key[:8])
	val, err := cur.Value()
	if err != nil {
		return Range{}, nil, false, errors.WithStack(err)
	}
	end, payload := decodeValue(val)
	if start > point || end < point {
		return Range{}, nil, false, nil
	}
	return Range{Start: start, End: end}, payload, true, nil
}

// allRanges returns every stored range for (property, kind), in ascending
// start order.
func allRanges(db database.DataAccessor, property omni.PropertyId, kind Kind) ([]Range, [][]byte, error) {
	prefix := dbaccess.NFTRanges.Key(propKindKey(property, kind))
	cur, err := db.Cursor(prefix)
	if err != nil {
		return nil, nil, errors.WithStack(err)
	}
	defer cur.Close()

	var ranges []Range
	var payloads [][]byte
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return nil, nil, errors.WithStack(err)
		}
		val, err := cur.Value()
		if err != nil {
			return nil, nil, errors.WithStack(err)
		}
		start := database.DecodeDescendingUint64(key[:8])
		end, payload := decodeValue(val)
		ranges = append(ranges, Range{Start: start, End: end})
		payloads = append(payloads, payload)
	}
	if err := cur.Error(); err != nil {
		return nil, nil, errors.WithStack(err)
	}
	// Cursor iterates in descending-key order, i.e. descending start;
	// reverse to ascending for callers that rely on left-to-right order.
	for i, j := 0, len(ranges)-1; i < j; i, j = i+1, j-1 {
		ranges[i], ranges[j] = ranges[j], ranges[i]
		payloads[i], payloads[j] = payloads[j], payloads[i]
	}
	return ranges, payloads, nil
}

// TotalTokens sums end-start+1 over every RangeIndex entry of property
// (testable property #3: "property-total matches NFT ranges").
func TotalTokens(ctx *dbaccess.Context, property omni.PropertyId) (omni.Amount, error) {
	ranges, _, err := allRanges(ctx.Accessor(), property, RangeIndex)
	if err != nil {
		return 0, err
	}
	var total omni.Amount
	for _, r := range ranges {
		total += omni.Amount(r.End - r.Start + 1)
	}
	return total, nil
}

// OwnerOf returns the address owning token point of property, if any.
func OwnerOf(ctx *dbaccess.Context, property omni.PropertyId, point uint64) (omni.Address, bool, error) {
	_, payload, found, err := findCovering(ctx.Accessor(), property, RangeIndex, point)
	if err != nil || !found {
		return "", false, err
	}
	return omni.Address(payload), true, nil
}
