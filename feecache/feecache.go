// Package feecache implements the per-property trading fee cache and its
// threshold-triggered proportional distribution (spec §4.10). Grounded on
// `dbaccess/fee_data.go`'s `FetchFeeData`/`StoreFeeData` accessor shape,
// generalized from "one blob per block hash" to "cumulative log per
// property, latest entry via iterator-first on a reverse-ordered key".
package feecache

import (
	"encoding/binary"

	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/tally"
	"github.com/pkg/errors"
)

// ErrOverflow is the fatal condition spec §4.10 names ("overflow against
// 2^63 − 1 is fatal"); callers must turn this into an errs.ConsistencyError
// and abort the node.
var ErrOverflow = errors.New("fee cache overflow")

func cacheKey(property omni.PropertyId, block uint64) []byte {
	return dbaccess.FeeCache.Key(database.BigEndianUint32(uint32(property)), database.DescendingUint64(block))
}

// Latest returns the newest cumulative fee recorded for property (0 if
// none), reading the first entry of a descending-key cursor.
func Latest(ctx *dbaccess.Context, property omni.PropertyId) (omni.Amount, error) {
	prefix := dbaccess.FeeCache.Key(database.BigEndianUint32(uint32(property)))
	cur, err := ctx.Accessor().Cursor(prefix)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	defer cur.Close()
	if !cur.First() {
		return 0, nil
	}
	val, err := cur.Value()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return omni.Amount(binary.BigEndian.Uint64(val)), nil
}

// Threshold computes distribution_threshold(p) = total_tokens(p) / K, with
// a floor of 1 (spec §4.10).
func Threshold(totalTokens omni.Amount) omni.Amount {
	t := totalTokens / dagparams.FeeDistributionThreshold
	if t < 1 {
		t = 1
	}
	return t
}

// mainTokenFor returns the ecosystem's main-token property id that
// distribution proportions against (spec §4.10: "property 1 for main, 2
// for test").
func mainTokenFor(property omni.PropertyId) omni.PropertyId {
	if eco, ok := omni.EcosystemOf(property); ok && eco == omni.EcosystemTest {
		return omni.PropertyIdTest
	}
	return omni.PropertyIdMain
}

func exodusFor(property omni.PropertyId) omni.Address {
	if eco, ok := omni.EcosystemOf(property); ok && eco == omni.EcosystemTest {
		return dagparams.Exodus.Test
	}
	return dagparams.Exodus.Main
}

// AddFee adds amount to property's cache at block, triggering distribution
// if the threshold is crossed (spec §4.10). totalTokens is the property's
// current num_tokens supply (for the threshold computation).
func AddFee(ctx *dbaccess.Context, ledger *tally.Ledger, property omni.PropertyId, amount omni.Amount, block uint64, totalTokens omni.Amount) (distributed omni.Amount, err error) {
	if amount <= 0 {
		return 0, errors.WithStack(omni.ErrAmountRange)
	}
	latest, err := Latest(ctx, property)
	if err != nil {
		return 0, err
	}
	sum, err := omni.AddAmount(latest, amount)
	if err != nil {
		return 0, errors.WithStack(ErrOverflow)
	}

	if err := putCache(ctx, property, block, sum); err != nil {
		return 0, err
	}

	threshold := Threshold(totalTokens)
	if sum < threshold {
		return 0, nil
	}

	if err := distribute(ctx, ledger, property, sum, block); err != nil {
		return 0, err
	}
	if err := putCache(ctx, property, block, 0); err != nil {
		return 0, err
	}
	return sum, nil
}

func putCache(ctx *dbaccess.Context, property omni.PropertyId, block uint64, value omni.Amount) error {
	return errors.WithStack(ctx.Accessor().Put(cacheKey(property, block), database.BigEndianUint64(uint64(value))))
}

// distribute proportionally credits holders of the ecosystem's main token
// with property's accumulated fee (the same STO floor-division algorithm
// as C7's SendToOwners), residual going to the ecosystem's Exodus address,
// and appends one history record.
func distribute(ctx *dbaccess.Context, ledger *tally.Ledger, property omni.PropertyId, total omni.Amount, block uint64) error {
	mainToken := mainTokenFor(property)
	holders := ledger.Holders(mainToken)
	var mainSupply omni.Amount
	for _, h := range holders {
		mainSupply += h.Amount
	}

	var distributedSoFar omni.Amount
	for _, h := range holders {
		share := omni.Amount(int64(total) * int64(h.Amount) / int64(mainSupply))
		if share <= 0 {
			continue
		}
		if err := ledger.Credit(h.Address, property, omni.Available, share); err != nil {
			return err
		}
		distributedSoFar += share
	}
	residual := total - distributedSoFar
	if residual > 0 {
		if err := ledger.Credit(exodusFor(property), property, omni.Available, residual); err != nil {
			return err
		}
	}

	histKey := dbaccess.FeeHistory.Key(database.BigEndianUint32(uint32(property)), database.DescendingUint64(block))
	return errors.WithStack(ctx.Accessor().Put(histKey, database.BigEndianUint64(uint64(total))))
}

// RollbackAbove deletes all cache and history rows at height ≥ block (spec
// §4.10).
func RollbackAbove(ctx *dbaccess.Context, block uint64) error {
	db := ctx.Accessor()
	if err := dropAbove(db, dbaccess.FeeCache, block); err != nil {
		return err
	}
	return dropAbove(db, dbaccess.FeeHistory, block)
}

func dropAbove(db database.DataAccessor, bucket database.Bucket, block uint64) error {
	cur, err := db.Cursor(bucket.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()
	var toDelete [][]byte
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(key) < 12 {
			continue
		}
		height := database.DecodeDescendingUint64(key[4:12])
		if height >= block {
			toDelete = append(toDelete, append([]byte{}, key...))
		}
	}
	if err := cur.Error(); err != nil {
		return errors.WithStack(err)
	}
	for _, k := range toDelete {
		if err := db.Delete(bucket.Key(k)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}
