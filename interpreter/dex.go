package interpreter

import (
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
	"github.com/pkg/errors"
)

// DEx-1 (spec §3.1, §4.7) is the classic offer/accept/pay exchange between
// a meta-token and the host chain's native coin: a sell offer reserves the
// seller's tokens into the SellOffer bucket; an accept reserves them
// further into AcceptReserve and commits the buyer to a host-coin payment;
// a host-coin payment matching the accept releases the tokens. Grounded
// directly on the bucket-kind vocabulary fixed in package omni
// (`SellOffer`, `AcceptReserve`) which names exactly this mechanism.

const (
	dexActionNew    = 1
	dexActionUpdate = 2
	dexActionCancel = 3
)

func dexOfferKey(property omni.PropertyId, seller omni.Address) []byte {
	return dbaccess.DExOffers.Key(propKey(property), []byte(seller))
}

type dexOffer struct {
	amountDesired uint64 // host-coin units for the entire (remaining) offer
	timeLimit     uint8  // blocks an accept has to pay
	minFee        uint64
	remaining     omni.Amount
	blockCreated  uint64
}

func encodeDExOffer(o dexOffer) []byte {
	w := payload.NewWriter()
	w.Uint64(o.amountDesired).Uint8(o.timeLimit).Uint64(o.minFee).Amount(o.remaining).Uint64(o.blockCreated)
	return w.Bytes()
}

func decodeDExOffer(b []byte) (dexOffer, error) {
	r := payload.NewReader(b)
	var o dexOffer
	var err error
	if o.amountDesired, err = r.Uint64(); err != nil {
		return o, err
	}
	if o.timeLimit, err = r.Uint8(); err != nil {
		return o, err
	}
	if o.minFee, err = r.Uint64(); err != nil {
		return o, err
	}
	if o.remaining, err = r.Amount(); err != nil {
		return o, err
	}
	if o.blockCreated, err = r.Uint64(); err != nil {
		return o, err
	}
	return o, nil
}

func getDExOffer(ictx *Context, property omni.PropertyId, seller omni.Address) (dexOffer, bool, error) {
	val, err := ictx.DB.Accessor().Get(dexOfferKey(property, seller))
	if isNotFound(err) {
		return dexOffer{}, false, nil
	}
	if err != nil {
		return dexOffer{}, false, errors.WithStack(err)
	}
	o, err := decodeDExOffer(val)
	return o, true, err
}

// handleDExSell implements type 20 (spec §4.7): create, update, or cancel
// a standing sell offer of property for host coin.
func handleDExSell(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	action, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExSell payload")
	}
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExSell property")
	}

	existing, found, err := getDExOffer(ictx, propID, mtx.Sender)
	if err != nil {
		return err
	}

	if action == dexActionCancel {
		if !found {
			return errs.New(errs.FamilyDEx, errs.CodeDExOfferNotFound, "no offer to cancel")
		}
		if existing.remaining > 0 {
			if err := ictx.Tally.Move(mtx.Sender, propID, existing.remaining, omni.SellOffer, omni.Available); err != nil {
				return err
			}
		}
		return errors.WithStack(ictx.DB.Accessor().Delete(dexOfferKey(propID, mtx.Sender)))
	}

	amountForSale, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExSell amount")
	}
	amountDesired, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExSell amount desired")
	}
	timeLimit, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExSell time limit")
	}
	minFee, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExSell min fee")
	}
	if amountForSale <= 0 || amountDesired == 0 {
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "amounts must be positive")
	}
	if err := checkNotFrozen(ictx, propID, mtx.Sender); err != nil {
		return err
	}

	switch action {
	case dexActionNew:
		if found {
			return errs.New(errs.FamilyDEx, errs.CodeDExOfferNotFound, "an offer for this property already exists")
		}
		if ictx.Tally.Bucket(mtx.Sender, propID, omni.Available) < amountForSale {
			return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "insufficient available balance")
		}
		if err := ictx.Tally.Move(mtx.Sender, propID, amountForSale, omni.Available, omni.SellOffer); err != nil {
			return err
		}
		o := dexOffer{amountDesired: amountDesired, timeLimit: timeLimit, minFee: minFee, remaining: amountForSale, blockCreated: mtx.Block}
		return errors.WithStack(ictx.DB.Accessor().Put(dexOfferKey(propID, mtx.Sender), encodeDExOffer(o)))
	case dexActionUpdate:
		if !found {
			return errs.New(errs.FamilyDEx, errs.CodeDExOfferNotFound, "no offer to update")
		}
		delta := amountForSale - existing.remaining
		if delta > 0 {
			if ictx.Tally.Bucket(mtx.Sender, propID, omni.Available) < delta {
				return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "insufficient available balance")
			}
			if err := ictx.Tally.Move(mtx.Sender, propID, delta, omni.Available, omni.SellOffer); err != nil {
				return err
			}
		} else if delta < 0 {
			if err := ictx.Tally.Move(mtx.Sender, propID, -delta, omni.SellOffer, omni.Available); err != nil {
				return err
			}
		}
		o := dexOffer{amountDesired: amountDesired, timeLimit: timeLimit, minFee: minFee, remaining: amountForSale, blockCreated: existing.blockCreated}
		return errors.WithStack(ictx.DB.Accessor().Put(dexOfferKey(propID, mtx.Sender), encodeDExOffer(o)))
	default:
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "unknown DExSell action")
	}
}

// dexAcceptKey prefixes seller with its length: accepts are looked up by
// exact (property, seller, buyer) everywhere in this file, but the block
// pipeline's accept-expiry sweep (spec §4.8 end(B)) must recover seller and
// buyer back out of a bare key during a full-bucket scan, which a plain
// concatenation of two variable-length strings can't support unambiguously.
func dexAcceptKey(property omni.PropertyId, seller, buyer omni.Address) []byte {
	return dbaccess.DExAccepts.Key(propKey(property), database.Varint(uint64(len(seller))), []byte(seller), []byte(buyer))
}

// decodeDExAcceptKey splits a raw DExAccepts key (with the bucket prefix
// already stripped by the cursor) back into its property/seller/buyer
// components.
func decodeDExAcceptKey(key []byte) (property omni.PropertyId, seller, buyer omni.Address, ok bool) {
	if len(key) < 4 {
		return 0, "", "", false
	}
	property = omni.PropertyId(database.DecodeBigEndianUint32(key[:4]))
	rest := key[4:]
	sellerLen, n := database.DecodeVarint(rest)
	if n <= 0 || uint64(len(rest)-n) < sellerLen {
		return 0, "", "", false
	}
	rest = rest[n:]
	seller = omni.Address(rest[:sellerLen])
	buyer = omni.Address(rest[sellerLen:])
	return property, seller, buyer, true
}

type dexAccept struct {
	amount          omni.Amount
	requiredPayment uint64
	blockExpire     uint64
}

func encodeDExAccept(a dexAccept) []byte {
	w := payload.NewWriter()
	w.Amount(a.amount).Uint64(a.requiredPayment).Uint64(a.blockExpire)
	return w.Bytes()
}

func decodeDExAccept(b []byte) (dexAccept, error) {
	r := payload.NewReader(b)
	var a dexAccept
	var err error
	if a.amount, err = r.Amount(); err != nil {
		return a, err
	}
	if a.requiredPayment, err = r.Uint64(); err != nil {
		return a, err
	}
	if a.blockExpire, err = r.Uint64(); err != nil {
		return a, err
	}
	return a, nil
}

// handleDExAccept implements type 22 (spec §4.7): the buyer commits to
// paying for amountToAccept of the seller's (the reference recipient's)
// standing offer, reserving it out of the seller's SellOffer bucket.
func handleDExAccept(ictx *Context, mtx *parser.MetaTx) error {
	if !mtx.HasRecipient {
		return errs.New(errs.FamilyDEx, errs.CodeDExOfferNotFound, "DExAccept requires the offer's seller as reference recipient")
	}
	seller := mtx.Recipient
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExAccept payload")
	}
	amountToAccept, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExAccept amount")
	}

	offer, found, err := getDExOffer(ictx, propID, seller)
	if err != nil {
		return err
	}
	if !found || offer.remaining < amountToAccept || amountToAccept <= 0 {
		return errs.New(errs.FamilyDEx, errs.CodeDExOfferNotFound, "no sufficient offer to accept")
	}
	if _, exists, err := getDExAccept(ictx, propID, seller, mtx.Sender); err != nil {
		return err
	} else if exists {
		return errs.New(errs.FamilyDEx, errs.CodeDExAcceptExpired, "an accept already exists for this seller")
	}

	required := uint64(amountToAccept) * offer.amountDesired / uint64(offer.remaining)
	if err := ictx.Tally.Move(seller, propID, amountToAccept, omni.SellOffer, omni.AcceptReserve); err != nil {
		return err
	}
	offer.remaining -= amountToAccept
	if err := ictx.DB.Accessor().Put(dexOfferKey(propID, seller), encodeDExOffer(offer)); err != nil {
		return errors.WithStack(err)
	}

	a := dexAccept{amount: amountToAccept, requiredPayment: required, blockExpire: mtx.Block + uint64(offer.timeLimit)}
	return errors.WithStack(ictx.DB.Accessor().Put(dexAcceptKey(propID, seller, mtx.Sender), encodeDExAccept(a)))
}

func getDExAccept(ictx *Context, property omni.PropertyId, seller, buyer omni.Address) (dexAccept, bool, error) {
	val, err := ictx.DB.Accessor().Get(dexAcceptKey(property, seller, buyer))
	if isNotFound(err) {
		return dexAccept{}, false, nil
	}
	if err != nil {
		return dexAccept{}, false, errors.WithStack(err)
	}
	a, err := decodeDExAccept(val)
	return a, true, err
}

// handleDExPay implements type 23 (spec §4.7): a host-coin payment to the
// seller (the reference recipient) satisfying a buyer's accept releases
// the reserved tokens to the buyer.
func handleDExPay(ictx *Context, mtx *parser.MetaTx) error {
	if !mtx.HasRecipient {
		return errs.New(errs.FamilyDEx, errs.CodeDExAcceptNotFound, "DExPay requires the seller as reference recipient")
	}
	seller := mtx.Recipient
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExPay payload")
	}

	accept, found, err := getDExAccept(ictx, propID, seller, mtx.Sender)
	if err != nil {
		return err
	}
	if !found {
		return errs.New(errs.FamilyDEx, errs.CodeDExAcceptNotFound, "no matching accept")
	}
	if mtx.Block > accept.blockExpire {
		return errs.New(errs.FamilyDEx, errs.CodeDExAcceptExpired, "accept has expired")
	}

	var paid uint64
	for _, out := range mtx.Outputs {
		if out.Script.Address == seller && out.Value > 0 {
			paid += uint64(out.Value)
		}
	}
	if paid < accept.requiredPayment {
		return errs.New(errs.FamilyDEx, errs.CodeDExInsufficientFee, "payment does not cover the accepted price")
	}

	if err := ictx.Tally.Debit(seller, propID, omni.AcceptReserve, accept.amount); err != nil {
		return err
	}
	if err := creditChecked(ictx, mtx.Sender, propID, omni.Available, accept.amount); err != nil {
		return err
	}
	return errors.WithStack(ictx.DB.Accessor().Delete(dexAcceptKey(propID, seller, mtx.Sender)))
}

// ExpireDExAccepts implements spec §4.8 end(B)'s "expire DEx-1 accepts
// whose expiry < h": every accept whose blockExpire has passed is refunded
// back to the seller's SellOffer bucket exactly as a buyer-initiated
// DExCancel action 2 would, since a lapsed accept is indistinguishable in
// effect from one the buyer cancelled.
func ExpireDExAccepts(ictx *Context, height uint64) error {
	cur, err := ictx.DB.Accessor().Cursor(dbaccess.DExAccepts.Path())
	if err != nil {
		return errors.WithStack(err)
	}
	defer cur.Close()

	type expired struct {
		property       omni.PropertyId
		seller, buyer  omni.Address
		accept         dexAccept
	}
	var toExpire []expired
	for ok := cur.First(); ok; ok = cur.Next() {
		key, err := cur.Key()
		if err != nil {
			return errors.WithStack(err)
		}
		val, err := cur.Value()
		if err != nil {
			return errors.WithStack(err)
		}
		property, seller, buyer, ok := decodeDExAcceptKey(key)
		if !ok {
			continue
		}
		accept, err := decodeDExAccept(val)
		if err != nil {
			continue
		}
		if accept.blockExpire < height {
			toExpire = append(toExpire, expired{property: property, seller: seller, buyer: buyer, accept: accept})
		}
	}
	if err := cur.Error(); err != nil {
		return errors.WithStack(err)
	}

	for _, e := range toExpire {
		if err := ictx.Tally.Move(e.seller, e.property, e.accept.amount, omni.AcceptReserve, omni.SellOffer); err != nil {
			return err
		}
		offer, found, err := getDExOffer(ictx, e.property, e.seller)
		if err != nil {
			return err
		}
		if found {
			offer.remaining += e.accept.amount
			if err := ictx.DB.Accessor().Put(dexOfferKey(e.property, e.seller), encodeDExOffer(offer)); err != nil {
				return errors.WithStack(err)
			}
		}
		if err := ictx.DB.Accessor().Delete(dexAcceptKey(e.property, e.seller, e.buyer)); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// handleDExCancel implements type 24 (spec §4.7): cancel either the
// sender's own standing sell offer or (action 2) its accept against a
// given seller, refunding the reserved bucket.
func handleDExCancel(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	action, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExCancel payload")
	}
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated DExCancel property")
	}

	switch action {
	case 1:
		offer, found, err := getDExOffer(ictx, propID, mtx.Sender)
		if err != nil {
			return err
		}
		if !found {
			return errs.New(errs.FamilyDEx, errs.CodeDExOfferNotFound, "no offer to cancel")
		}
		if offer.remaining > 0 {
			if err := ictx.Tally.Move(mtx.Sender, propID, offer.remaining, omni.SellOffer, omni.Available); err != nil {
				return err
			}
		}
		return errors.WithStack(ictx.DB.Accessor().Delete(dexOfferKey(propID, mtx.Sender)))
	case 2:
		if !mtx.HasRecipient {
			return errs.New(errs.FamilyDEx, errs.CodeDExAcceptNotFound, "DExCancel of an accept requires the seller as recipient")
		}
		seller := mtx.Recipient
		accept, found, err := getDExAccept(ictx, propID, seller, mtx.Sender)
		if err != nil {
			return err
		}
		if !found {
			return errs.New(errs.FamilyDEx, errs.CodeDExAcceptNotFound, "no accept to cancel")
		}
		if err := ictx.Tally.Move(seller, propID, accept.amount, omni.AcceptReserve, omni.SellOffer); err != nil {
			return err
		}
		offer, found, err := getDExOffer(ictx, propID, seller)
		if err != nil {
			return err
		}
		if found {
			offer.remaining += accept.amount
			if err := ictx.DB.Accessor().Put(dexOfferKey(propID, seller), encodeDExOffer(offer)); err != nil {
				return errors.WithStack(err)
			}
		}
		return errors.WithStack(ictx.DB.Accessor().Delete(dexAcceptKey(propID, seller, mtx.Sender)))
	default:
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "unknown DExCancel action")
	}
}
