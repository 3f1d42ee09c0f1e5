package interpreter

import (
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/nft"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
	"github.com/pkg/errors"
)

// handleSimpleSend implements type 0 (spec §4.7, scenario S1): move amount
// of property from sender's Available bucket to the recipient's. A
// crowdsale participation is triggered as a side effect if the recipient
// is the issuer of an open crowdsale denominated in property.
func handleSimpleSend(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SimpleSend payload")
	}
	amount, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SimpleSend amount")
	}

	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if entry.Kind.IsNFT() {
		return errs.New(errs.FamilySend, errs.CodeSendPropertyIsNFT, "SimpleSend does not carry NFT properties")
	}
	if !mtx.HasRecipient {
		return errs.New(errs.FamilySend, errs.CodeSendInvalidRecipient, "SimpleSend requires a reference recipient")
	}
	if amount <= 0 {
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "amount must be positive")
	}
	if err := checkNotFrozen(ictx, propID, mtx.Sender); err != nil {
		return err
	}
	if ictx.Tally.Bucket(mtx.Sender, propID, omni.Available) < amount {
		return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "insufficient available balance")
	}

	if err := ictx.Tally.Debit(mtx.Sender, propID, omni.Available, amount); err != nil {
		return err
	}
	if err := creditChecked(ictx, mtx.Recipient, propID, omni.Available, amount); err != nil {
		return err
	}

	return maybeParticipateCrowdsale(ictx, mtx, propID, amount)
}

// handleSendToOwners implements type 3 (spec §4.7): sender's amount of
// property is distributed to every other current holder of property,
// proportional to their existing holdings, using the same floor-division +
// residual-stays-with-sender rule as feecache's threshold distribution.
func handleSendToOwners(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SendToOwners payload")
	}
	amount, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SendToOwners amount")
	}

	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if entry.Kind.IsNFT() {
		return errs.New(errs.FamilySend, errs.CodeSendPropertyIsNFT, "SendToOwners does not carry NFT properties")
	}
	if amount <= 0 {
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "amount must be positive")
	}
	if err := checkNotFrozen(ictx, propID, mtx.Sender); err != nil {
		return err
	}
	if ictx.Tally.Bucket(mtx.Sender, propID, omni.Available) < amount {
		return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "insufficient available balance")
	}

	holders := ictx.Tally.Holders(propID)
	var eligible []tallyHolder
	var totalEligible omni.Amount
	for _, h := range holders {
		if h.Address == mtx.Sender {
			continue
		}
		eligible = append(eligible, tallyHolder{addr: h.Address, amount: h.Amount})
		totalEligible += h.Amount
	}
	if len(eligible) == 0 {
		return errs.New(errs.FamilySTO, errs.CodeSTONoHolders, "no other holders to distribute to")
	}

	if err := ictx.Tally.Debit(mtx.Sender, propID, omni.Available, amount); err != nil {
		return err
	}
	var distributed omni.Amount
	var seq int
	for _, h := range eligible {
		share := omni.Amount(int64(amount) * int64(h.amount) / int64(totalEligible))
		if share <= 0 {
			continue
		}
		if err := creditChecked(ictx, h.addr, propID, omni.Available, share); err != nil {
			return err
		}
		if err := recordSTORecipient(ictx, mtx.Block, mtx.Position, seq, h.addr, share); err != nil {
			return err
		}
		seq++
		distributed += share
	}
	residual := amount - distributed
	if residual > 0 {
		if err := creditChecked(ictx, mtx.Sender, propID, omni.Available, residual); err != nil {
			return err
		}
	}
	return nil
}

func stoKey(block uint64, position, seq int) []byte {
	return dbaccess.STOList.Key(database.DescendingUint64(block), database.Varint(uint64(position)), database.Varint(uint64(seq)))
}

// recordSTORecipient implements spec §4.7's "records recipients in the STO
// store": one append-only row per holder credited by a SendToOwners
// distribution, for later per-tx enumeration (spec §4.9 reorg rollback and
// RPC lookups both key off this log).
func recordSTORecipient(ictx *Context, block uint64, position, seq int, recipient omni.Address, share omni.Amount) error {
	w := payload.NewWriter()
	w.String(string(recipient)).Amount(share)
	return errors.WithStack(ictx.DB.Accessor().Put(stoKey(block, position, seq), w.Bytes()))
}

type tallyHolder struct {
	addr   omni.Address
	amount omni.Amount
}

// handleSendAll implements type 4 (spec §4.7): every Available balance the
// sender holds within one ecosystem moves to the recipient in full, except
// balances of properties the sender is frozen on, which stay in place.
func handleSendAll(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	ecosystemByte, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SendAll payload")
	}
	ecosystem := omni.Ecosystem(ecosystemByte)
	if !mtx.HasRecipient {
		return errs.New(errs.FamilySend, errs.CodeSendInvalidRecipient, "SendAll requires a reference recipient")
	}

	type move struct {
		property omni.PropertyId
		amount   omni.Amount
	}
	var moves []move
	for _, e := range ictx.Tally.Entries() {
		if e.Address != mtx.Sender || e.Bucket != omni.Available || e.Amount <= 0 {
			continue
		}
		eco, ok := omni.EcosystemOf(e.Property)
		if !ok || eco != ecosystem {
			continue
		}
		if frozen, err := isFrozen(ictx, e.Property, mtx.Sender); err != nil {
			return err
		} else if frozen {
			continue
		}
		moves = append(moves, move{property: e.Property, amount: e.Amount})
	}
	if len(moves) == 0 {
		return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "nothing to send in this ecosystem")
	}
	for _, m := range moves {
		if err := ictx.Tally.Debit(mtx.Sender, m.property, omni.Available, m.amount); err != nil {
			return err
		}
		if err := creditChecked(ictx, mtx.Recipient, m.property, omni.Available, m.amount); err != nil {
			return err
		}
	}
	return nil
}

// handleSendToMany implements type 7 (spec §4.7, scenario S2): each
// payload entry names an output index and an amount; the output's
// resolved address receives that amount of property.
func handleSendToMany(ictx *Context, mtx *parser.MetaTx) error {
	stm, err := payload.DecodeSendToMany(append(payload.NewWriter().Uint16(mtx.Version).Uint16(mtx.Type).Bytes(), mtx.Body...))
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SendToMany payload")
	}

	entry, err := requireProperty(ictx, uint32(stm.Property))
	if err != nil {
		return err
	}
	if entry.Kind.IsNFT() {
		return errs.New(errs.FamilySend, errs.CodeSendPropertyIsNFT, "SendToMany does not carry NFT properties")
	}
	if len(stm.Entries) == 0 {
		return errs.New(errs.FamilySend, errs.CodeSendInvalidRecipient, "SendToMany requires at least one entry")
	}
	if err := checkNotFrozen(ictx, stm.Property, mtx.Sender); err != nil {
		return err
	}

	type dest struct {
		addr   omni.Address
		amount omni.Amount
	}
	dests := make([]dest, 0, len(stm.Entries))
	var total omni.Amount
	for _, e := range stm.Entries {
		if int(e.OutputIndex) >= len(mtx.Outputs) {
			return errs.New(errs.FamilySend, errs.CodeSendInvalidRecipient, "SendToMany output index out of range")
		}
		addr := mtx.Outputs[e.OutputIndex].Script.Address
		if addr == "" || addr == mtx.Sender {
			return errs.New(errs.FamilySend, errs.CodeSendInvalidRecipient, "SendToMany output does not resolve to a valid recipient")
		}
		if e.Amount <= 0 {
			return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "amount must be positive")
		}
		total, err = omni.AddAmount(total, e.Amount)
		if err != nil {
			return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "SendToMany total overflows")
		}
		dests = append(dests, dest{addr: addr, amount: e.Amount})
	}
	if ictx.Tally.Bucket(mtx.Sender, stm.Property, omni.Available) < total {
		return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "insufficient available balance")
	}

	if err := ictx.Tally.Debit(mtx.Sender, stm.Property, omni.Available, total); err != nil {
		return err
	}
	for _, d := range dests {
		if err := creditChecked(ictx, d.addr, stm.Property, omni.Available, d.amount); err != nil {
			return err
		}
	}
	return nil
}

// handleSendNonFungible implements the SendNonFungible type (spec §4.4,
// §4.7, scenario S5): transfers ownership of a token-id range via the NFT
// range store instead of the tally.
func handleSendNonFungible(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SendNonFungible payload")
	}
	start, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SendNonFungible start")
	}
	end, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated SendNonFungible end")
	}
	if start > end {
		return errs.New(errs.FamilyToken, errs.CodeTokenRangeMismatch, "range start is after end")
	}

	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if !entry.Kind.IsNFT() {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "SendNonFungible requires an NFT property")
	}
	if !mtx.HasRecipient {
		return errs.New(errs.FamilySend, errs.CodeSendInvalidRecipient, "SendNonFungible requires a reference recipient")
	}
	if err := checkNotFrozen(ictx, propID, mtx.Sender); err != nil {
		return err
	}

	err = nft.Move(ictx.DB, propID, start, end, mtx.Sender, mtx.Recipient, mtx.Block)
	switch errors.Cause(err) {
	case nil:
		return nil
	case nft.ErrNoCoveringRange:
		return errs.New(errs.FamilyToken, errs.CodeTokenRangeMismatch, "no owned range covers the requested interval")
	case nft.ErrWrongOwner:
		return errs.New(errs.FamilyToken, errs.CodeTokenRangeNotOwned, "sender does not own the requested range")
	default:
		return err
	}
}
