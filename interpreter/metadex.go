package interpreter

import (
	"sort"

	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/feecache"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
	"github.com/omnilayer/omnicore/property"
	"github.com/pkg/errors"
)

// MetaDEx (spec §3.1, §4.7) is a resting-order book between any two
// properties of the same ecosystem, matched price-time priority: a new
// order consumes compatible resting orders on the opposite side before any
// unfilled remainder rests in the book. Grounded on the same reserved-
// bucket discipline as DEx-1 (MetaDExReserve), generalized from a
// two-party escrow to an N-order book.

func pairKey(forSale, desired omni.PropertyId) []byte {
	return dbaccess.MetaDExOrders.Key(propKey(forSale), propKey(desired))
}

type metaDExOrder struct {
	seller        omni.Address
	amountForSale omni.Amount // remaining
	amountDesired omni.Amount // remaining, at the order's original price
	block         uint64
	position      int
}

// Rather than a derived sortable byte key (amounts change as an order
// fills, which would require rewriting its key on every partial match),
// resting orders are keyed directly by (block, position, seller), stable
// for the order's lifetime, and the book is price-sorted in memory at
// match time. Order books are expected to hold at most a few thousand
// live entries per pair, well within a single scan's cost.
func restingOrderKey(forSale, desired omni.PropertyId, block uint64, position int, seller omni.Address) []byte {
	key := pairKey(forSale, desired)
	key = append(key, database.BigEndianUint64(block)...)
	key = append(key, database.Varint(uint64(position))...)
	key = append(key, []byte(seller)...)
	return key
}

func encodeOrder(o metaDExOrder) []byte {
	w := payload.NewWriter()
	w.String(string(o.seller)).Amount(o.amountForSale).Amount(o.amountDesired).Uint64(o.block).Uint64(uint64(o.position))
	return w.Bytes()
}

func decodeOrder(b []byte) (metaDExOrder, error) {
	r := payload.NewReader(b)
	seller, err := r.String(255)
	if err != nil {
		return metaDExOrder{}, err
	}
	forSale, err := r.Amount()
	if err != nil {
		return metaDExOrder{}, err
	}
	desired, err := r.Amount()
	if err != nil {
		return metaDExOrder{}, err
	}
	block, err := r.Uint64()
	if err != nil {
		return metaDExOrder{}, err
	}
	position, err := r.Uint64()
	if err != nil {
		return metaDExOrder{}, err
	}
	return metaDExOrder{seller: omni.Address(seller), amountForSale: forSale, amountDesired: desired, block: block, position: int(position)}, nil
}

// listRestingOrders returns every resting order on the (forSale, desired)
// side of the book, in price-time priority (lowest unit price first).
func listRestingOrders(ictx *Context, forSale, desired omni.PropertyId) ([]metaDExOrder, error) {
	prefix := pairKey(forSale, desired)
	cur, err := ictx.DB.Accessor().Cursor(prefix)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer cur.Close()

	var orders []metaDExOrder
	for ok := cur.First(); ok; ok = cur.Next() {
		val, err := cur.Value()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		o, err := decodeOrder(val)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := cur.Error(); err != nil {
		return nil, errors.WithStack(err)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		pi := float64(orders[i].amountDesired) / float64(orders[i].amountForSale)
		pj := float64(orders[j].amountDesired) / float64(orders[j].amountForSale)
		if pi != pj {
			return pi < pj
		}
		return orders[i].block < orders[j].block
	})
	return orders, nil
}

func putOrder(ictx *Context, forSale, desired omni.PropertyId, o metaDExOrder) error {
	key := restingOrderKey(forSale, desired, o.block, o.position, o.seller)
	return errors.WithStack(ictx.DB.Accessor().Put(key, encodeOrder(o)))
}

func deleteOrder(ictx *Context, forSale, desired omni.PropertyId, o metaDExOrder) error {
	key := restingOrderKey(forSale, desired, o.block, o.position, o.seller)
	return errors.WithStack(ictx.DB.Accessor().Delete(key))
}

// handleMetaDExTrade implements type 25 (spec §4.7): submits a new order,
// matching it against the opposite side of the book before any remainder
// rests.
func handleMetaDExTrade(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	forSale, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated MetaDExTrade property-for-sale")
	}
	amountForSale, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated MetaDExTrade amount-for-sale")
	}
	desired, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated MetaDExTrade property-desired")
	}
	amountDesired, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated MetaDExTrade amount-desired")
	}
	if forSale == desired {
		return errs.New(errs.FamilyMetaDEx, errs.CodeMetaDExSameProperty, "cannot trade a property against itself")
	}
	ecoSale, okSale := omni.EcosystemOf(forSale)
	ecoDesired, okDesired := omni.EcosystemOf(desired)
	if !okSale || !okDesired || ecoSale != ecoDesired {
		return errs.New(errs.FamilyMetaDEx, errs.CodeMetaDExCrossEcosystem, "orders must trade within one ecosystem")
	}
	if amountForSale <= 0 || amountDesired <= 0 {
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "amounts must be positive")
	}
	if _, err := requireProperty(ictx, uint32(forSale)); err != nil {
		return err
	}
	if _, err := requireProperty(ictx, uint32(desired)); err != nil {
		return err
	}
	if err := checkNotFrozen(ictx, forSale, mtx.Sender); err != nil {
		return err
	}
	if ictx.Tally.Bucket(mtx.Sender, forSale, omni.Available) < amountForSale {
		return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "insufficient available balance")
	}

	if err := ictx.Tally.Move(mtx.Sender, forSale, amountForSale, omni.Available, omni.MetaDExReserve); err != nil {
		return err
	}

	remainingForSale := amountForSale
	remainingDesired := amountDesired

	opposite, err := listRestingOrders(ictx, desired, forSale)
	if err != nil {
		return err
	}
	var seq int
	for _, resting := range opposite {
		if remainingForSale <= 0 {
			break
		}
		// resting sells `desired` for `forSale`; it crosses our order
		// when its unit price (forSale per desired) is <= what we are
		// offering (forSale per desired implied by our own order).
		restingPrice := float64(resting.amountDesired) / float64(resting.amountForSale) // forSale units per desired unit
		ourPrice := float64(remainingForSale) / float64(remainingDesired)               // forSale units per desired unit we'd accept
		if restingPrice > ourPrice {
			break
		}

		tradeDesired := minAmount(remainingDesired, resting.amountForSale)
		tradeForSale := omni.Amount(float64(tradeDesired) * restingPrice)
		if tradeForSale <= 0 || tradeForSale > remainingForSale {
			tradeForSale = remainingForSale
		}

		if err := ictx.Tally.Debit(mtx.Sender, forSale, omni.MetaDExReserve, tradeForSale); err != nil {
			return err
		}
		if err := creditChecked(ictx, resting.seller, forSale, omni.Available, tradeForSale); err != nil {
			return err
		}
		if err := ictx.Tally.Debit(resting.seller, desired, omni.MetaDExReserve, tradeDesired); err != nil {
			return err
		}
		if err := creditChecked(ictx, mtx.Sender, desired, omni.Available, tradeDesired); err != nil {
			return err
		}

		if totalSupply, err := property.Get(ictx.DB, desired); err == nil {
			if _, err := feecache.AddFee(ictx.DB, ictx.Tally, desired, maxAmount1(tradeDesired/1000), mtx.Block, totalSupply.NumTokens); err != nil {
				return err
			}
		}

		if err := recordTrade(ictx, mtx.Block, mtx.Position, seq, forSale, desired, mtx.Sender, resting.seller, tradeForSale, tradeDesired); err != nil {
			return err
		}
		seq++

		resting.amountForSale -= tradeDesired
		resting.amountDesired -= tradeForSale
		remainingForSale -= tradeForSale
		remainingDesired -= tradeDesired

		if resting.amountForSale <= 0 {
			if err := deleteOrder(ictx, desired, forSale, resting); err != nil {
				return err
			}
		} else {
			if err := putOrder(ictx, desired, forSale, resting); err != nil {
				return err
			}
		}
	}

	if remainingForSale > 0 {
		o := metaDExOrder{seller: mtx.Sender, amountForSale: remainingForSale, amountDesired: remainingDesired, block: mtx.Block, position: mtx.Position}
		if err := putOrder(ictx, forSale, desired, o); err != nil {
			return err
		}
	}
	return nil
}

func tradeKey(block uint64, position, seq int) []byte {
	return dbaccess.TradeList.Key(database.DescendingUint64(block), database.Varint(uint64(position)), database.Varint(uint64(seq)))
}

// recordTrade appends one row per matched fill to the trade-list store
// (spec §4.9 step 2 lists trade-list among the logs a reorg rolls back;
// spec §3.1 "every MetaDEx match" is an append-only record of who traded
// what with whom).
func recordTrade(ictx *Context, block uint64, position, seq int, forSale, desired omni.PropertyId, taker, maker omni.Address, amountForSale, amountDesired omni.Amount) error {
	w := payload.NewWriter()
	w.PropertyId(forSale).Amount(amountForSale).PropertyId(desired).Amount(amountDesired).
		String(string(taker)).String(string(maker))
	return errors.WithStack(ictx.DB.Accessor().Put(tradeKey(block, position, seq), w.Bytes()))
}

func minAmount(a, b omni.Amount) omni.Amount {
	if a < b {
		return a
	}
	return b
}

func maxAmount1(a omni.Amount) omni.Amount {
	if a < 1 {
		return 1
	}
	return a
}

// cancelOrdersWhere deletes every resting order across the whole book that
// matches pred, refunding MetaDExReserve to each owner (spec §4.7's three
// MetaDEx cancel variants).
func cancelOrdersWhere(ictx *Context, sender omni.Address, pred func(forSale, desired omni.PropertyId, o metaDExOrder) bool) error {
	cur, err := ictx.DB.Accessor().Cursor(dbaccess.MetaDExOrders.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()

	type match struct {
		forSale, desired omni.PropertyId
		o                metaDExOrder
	}
	var matches []match
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		if len(key) < 8 {
			continue
		}
		forSale := omni.PropertyId(database.DecodeBigEndianUint32(key[0:4]))
		desired := omni.PropertyId(database.DecodeBigEndianUint32(key[4:8]))
		val, err := cur.Value()
		if err != nil {
			return errors.WithStack(err)
		}
		o, err := decodeOrder(val)
		if err != nil {
			return err
		}
		if o.seller != sender {
			continue
		}
		if pred(forSale, desired, o) {
			matches = append(matches, match{forSale: forSale, desired: desired, o: o})
		}
	}
	if err := cur.Error(); err != nil {
		return errors.WithStack(err)
	}

	for _, m := range matches {
		if err := ictx.Tally.Move(sender, m.forSale, m.o.amountForSale, omni.MetaDExReserve, omni.Available); err != nil {
			return err
		}
		if err := deleteOrder(ictx, m.forSale, m.desired, m.o); err != nil {
			return err
		}
	}
	return nil
}

// handleMetaDExCancelAtPrice implements type 26: cancel the sender's
// resting order on a specific (forSale, desired) pair with a given price.
func handleMetaDExCancelAtPrice(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	forSale, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated cancel payload")
	}
	amountForSale, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated cancel amount-for-sale")
	}
	desired, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated cancel property-desired")
	}
	amountDesired, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated cancel amount-desired")
	}
	found := false
	err = cancelOrdersWhere(ictx, mtx.Sender, func(fs, ds omni.PropertyId, o metaDExOrder) bool {
		if fs == forSale && ds == desired && o.amountForSale == amountForSale && o.amountDesired == amountDesired {
			found = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if !found {
		return errs.New(errs.FamilyMetaDEx, errs.CodeMetaDExOrderNotFound, "no matching order at that price")
	}
	return nil
}

// handleMetaDExCancelForPair implements type 27: cancel every resting
// order the sender has on one (forSale, desired) pair.
func handleMetaDExCancelForPair(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	forSale, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated cancel payload")
	}
	desired, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated cancel property-desired")
	}
	return cancelOrdersWhere(ictx, mtx.Sender, func(fs, ds omni.PropertyId, o metaDExOrder) bool {
		return fs == forSale && ds == desired
	})
}

// handleMetaDExCancelEverything implements type 28: cancel every resting
// order the sender has in one ecosystem.
func handleMetaDExCancelEverything(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	ecoByte, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated cancel payload")
	}
	eco := omni.Ecosystem(ecoByte)
	return cancelOrdersWhere(ictx, mtx.Sender, func(fs, ds omni.PropertyId, o metaDExOrder) bool {
		orderEco, ok := omni.EcosystemOf(fs)
		return ok && orderEco == eco
	})
}
