package nft

import (
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/omni"
	"github.com/pkg/errors"
)

// Move transfers ownership of [start, end] of property's RangeIndex from
// owner `from` to `to`, splitting and coalescing as required (spec §4.4).
func Move(ctx *dbaccess.Context, property omni.PropertyId, start, end uint64, from, to omni.Address, block uint64) error {
	db := ctx.Accessor()
	j := newJournal(block)

	covering, payload, found, err := findCovering(db, property, RangeIndex, start)
	if err != nil {
		return err
	}
	if !found || covering.End < end {
		return errors.WithStack(ErrNoCoveringRange)
	}
	if omni.Address(payload) != from {
		return errors.WithStack(ErrWrongOwner)
	}

	// Remove the covering range and reinsert any residual left/right
	// segments still owned by `from`.
	if err := del(db, j, rangeKey(property, RangeIndex, covering.Start)); err != nil {
		return err
	}
	if covering.Start < start {
		if err := put(db, j, rangeKey(property, RangeIndex, covering.Start), encodeValue(start-1, []byte(from))); err != nil {
			return err
		}
	}
	if covering.End > end {
		if err := put(db, j, rangeKey(property, RangeIndex, end+1), encodeValue(covering.End, []byte(from))); err != nil {
			return err
		}
	}

	newStart, newEnd := start, end

	if newStart > 0 {
		if left, leftPayload, ok, err := findCovering(db, property, RangeIndex, newStart-1); err != nil {
			return err
		} else if ok && omni.Address(leftPayload) == to {
			if err := del(db, j, rangeKey(property, RangeIndex, left.Start)); err != nil {
				return err
			}
			newStart = left.Start
		}
	}
	if right, rightPayload, ok, err := findCovering(db, property, RangeIndex, newEnd+1); err != nil {
		return err
	} else if ok && omni.Address(rightPayload) == to {
		if err := del(db, j, rangeKey(property, RangeIndex, right.Start)); err != nil {
			return err
		}
		newEnd = right.End
	}

	if err := put(db, j, rangeKey(property, RangeIndex, newStart), encodeValue(newEnd, []byte(to))); err != nil {
		return err
	}

	return j.flush(db)
}

// SetData writes free-form data over [start, end] of the given data kind,
// preserving the pre-existing data of the outermost intersecting ranges on
// the segments that fall outside [start, end] (spec §4.4).
func SetData(ctx *dbaccess.Context, property omni.PropertyId, kind Kind, start, end uint64, data []byte, block uint64) error {
	if kind == RangeIndex {
		return errors.New("nft: SetData does not apply to RangeIndex")
	}
	db := ctx.Accessor()
	j := newJournal(block)

	ranges, payloads, err := allRanges(db, property, kind)
	if err != nil {
		return err
	}

	for i, r := range ranges {
		if r.End < start || r.Start > end {
			continue
		}
		if err := del(db, j, rangeKey(property, kind, r.Start)); err != nil {
			return err
		}
		if r.Start < start {
			if err := put(db, j, rangeKey(property, kind, r.Start), encodeValue(start-1, payloads[i])); err != nil {
				return err
			}
		}
		if r.End > end {
			if err := put(db, j, rangeKey(property, kind, end+1), encodeValue(r.End, payloads[i])); err != nil {
				return err
			}
		}
	}

	if err := put(db, j, rangeKey(property, kind, start), encodeValue(end, data)); err != nil {
		return err
	}
	return j.flush(db)
}

// Create extends property's token-id space by amount starting at
// highest_end+1 (saturating at MaxTokenID), writes GrantData for the new
// ids, and inserts (or coalesces) a RangeIndex entry owned by owner (spec
// §4.4).
func Create(ctx *dbaccess.Context, property omni.PropertyId, amount uint64, owner omni.Address, data []byte, block uint64) (Range, error) {
	db := ctx.Accessor()
	j := newJournal(block)

	highestEnd, err := HighestEnd(ctx, property)
	if err != nil {
		return Range{}, err
	}
	newStart := highestEnd + 1
	if highestEnd == 0 {
		// HighestEnd's zero value also means "nothing issued yet"; ids
		// start at 1, matching the NFT range space being 1-indexed.
		newStart = 1
	}
	newEnd := newStart + amount - 1
	if newEnd < newStart || newEnd > MaxTokenID {
		newEnd = MaxTokenID
	}

	if err := put(db, j, rangeKey(property, GrantData, newStart), encodeValue(newEnd, data)); err != nil {
		return Range{}, err
	}

	finalStart := newStart
	if newStart > 0 {
		if left, leftPayload, ok, err := findCovering(db, property, RangeIndex, newStart-1); err != nil {
			return Range{}, err
		} else if ok && omni.Address(leftPayload) == owner {
			if err := del(db, j, rangeKey(property, RangeIndex, left.Start)); err != nil {
				return Range{}, err
			}
			finalStart = left.Start
		}
	}
	if err := put(db, j, rangeKey(property, RangeIndex, finalStart), encodeValue(newEnd, []byte(owner))); err != nil {
		return Range{}, err
	}

	if err := setHighestEnd(db, j, property, newEnd); err != nil {
		return Range{}, err
	}

	if err := j.flush(db); err != nil {
		return Range{}, err
	}
	return Range{Start: newStart, End: newEnd}, nil
}

// HighestEnd returns the highest token id ever allocated for property, 0 if
// none.
func HighestEnd(ctx *dbaccess.Context, property omni.PropertyId) (uint64, error) {
	val, err := ctx.Accessor().Get(dbaccess.NFTHighestEnd.Key(database.BigEndianUint32(uint32(property))))
	if database.IsNotFoundError(err) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return database.DecodeBigEndianUint64(val), nil
}

func setHighestEnd(db database.DataAccessor, j *journal, property omni.PropertyId, end uint64) error {
	return put(db, j, dbaccess.NFTHighestEnd.Key(database.BigEndianUint32(uint32(property))), database.BigEndianUint64(end))
}

// SanityCheck compares the sum of property's owned ranges (TotalTokens) to
// expectedTotal (the block pipeline passes the registry's NumTokens); a
// mismatch is returned as an error, which the pipeline treats as fatal.
func SanityCheck(ctx *dbaccess.Context, property omni.PropertyId, expectedTotal omni.Amount) error {
	total, err := TotalTokens(ctx, property)
	if err != nil {
		return err
	}
	if total != expectedTotal {
		return errors.Errorf("nft: range total %d does not match expected total %d for property %d", total, expectedTotal, property)
	}
	return nil
}
