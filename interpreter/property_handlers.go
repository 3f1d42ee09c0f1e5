package interpreter

import (
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/nft"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
	"github.com/omnilayer/omnicore/property"
)

const maxPropertyStringLen = 255

// readPropertyMetadata parses the category/subcategory/name/url/data
// string quintet common to every property-creation payload (spec §3.1).
func readPropertyMetadata(r *payload.Reader) (category, subcategory, name, url, data string, err error) {
	if category, err = r.String(maxPropertyStringLen); err != nil {
		return
	}
	if subcategory, err = r.String(maxPropertyStringLen); err != nil {
		return
	}
	if name, err = r.String(maxPropertyStringLen); err != nil {
		return
	}
	if url, err = r.String(maxPropertyStringLen); err != nil {
		return
	}
	data, err = r.String(maxPropertyStringLen)
	return
}

func readEcosystemAndKind(r *payload.Reader) (omni.Ecosystem, omni.PropertyKind, error) {
	ecoByte, err := r.Uint8()
	if err != nil {
		return 0, 0, err
	}
	if _, err := r.Uint32(); err != nil { // previous_property_id, reserved for cloning; unused
		return 0, 0, err
	}
	kindByte, err := r.Uint8()
	if err != nil {
		return 0, 0, err
	}
	return omni.Ecosystem(ecoByte), omni.PropertyKind(kindByte), nil
}

func validEcosystem(eco omni.Ecosystem) bool {
	return eco == omni.EcosystemMain || eco == omni.EcosystemTest
}

func validKind(k omni.PropertyKind) bool {
	switch k {
	case omni.Indivisible, omni.Divisible, omni.NonFungible,
		omni.IndivisibleReplacing, omni.DivisibleReplacing,
		omni.IndivisibleAppending, omni.DivisibleAppending:
		return true
	default:
		return false
	}
}

// handleCreatePropertyFixed implements type 50 (spec §4.3, §4.7): creates
// a property whose entire fixed supply is minted to the issuer at
// creation.
func handleCreatePropertyFixed(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	eco, kind, err := readEcosystemAndKind(r)
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CreatePropertyFixed header")
	}
	category, subcategory, name, url, data, err := readPropertyMetadata(r)
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CreatePropertyFixed metadata")
	}
	amount, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CreatePropertyFixed amount")
	}
	if !validEcosystem(eco) {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "unknown ecosystem")
	}
	if !validKind(kind) {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "unknown property kind")
	}
	if amount <= 0 {
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "fixed supply must be positive")
	}

	entry := &property.Entry{
		Issuer: mtx.Sender,
		Kind:   kind,
		Name:   name, Category: category, Subcategory: subcategory, URL: url, Data: data,
		Flags:     property.Flags{Fixed: true},
		NumTokens: amount,
	}
	id, err := property.Create(ictx.DB, eco, entry, mtx.TxID, mtx.Block)
	if err != nil {
		return err
	}

	if kind.IsNFT() {
		if _, err := nft.Create(ictx.DB, id, uint64(amount), mtx.Sender, nil, mtx.Block); err != nil {
			return err
		}
		return nil
	}
	return creditChecked(ictx, mtx.Sender, id, omni.Available, amount)
}

// handleCreatePropertyManual implements type 54 (spec §4.3, §4.7): an
// issuer-controlled property with zero initial supply; tokens are granted
// over time with GrantPropertyTokens.
func handleCreatePropertyManual(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	eco, kind, err := readEcosystemAndKind(r)
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CreatePropertyManual header")
	}
	category, subcategory, name, url, data, err := readPropertyMetadata(r)
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CreatePropertyManual metadata")
	}
	if !validEcosystem(eco) {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "unknown ecosystem")
	}
	if !validKind(kind) {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "unknown property kind")
	}

	entry := &property.Entry{
		Issuer: mtx.Sender,
		Kind:   kind,
		Name:   name, Category: category, Subcategory: subcategory, URL: url, Data: data,
		Flags: property.Flags{Manual: true},
	}
	_, err = property.Create(ictx.DB, eco, entry, mtx.TxID, mtx.Block)
	return err
}

// handleCreatePropertyVariable implements type 51 (spec §4.3, §4.7): opens
// a crowdsale. No tokens are minted here; SimpleSend triggers participation
// (see maybeParticipateCrowdsale).
func handleCreatePropertyVariable(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	eco, kind, err := readEcosystemAndKind(r)
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CreatePropertyVariable header")
	}
	category, subcategory, name, url, data, err := readPropertyMetadata(r)
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CreatePropertyVariable metadata")
	}
	baseCurrency, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated crowdsale base currency")
	}
	tokensPerUnit, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated crowdsale tokens-per-unit")
	}
	deadline, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated crowdsale deadline")
	}
	earlyBirdBonus, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated crowdsale early-bird bonus")
	}
	issuerPercentage, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated crowdsale issuer percentage")
	}
	if !validEcosystem(eco) {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "unknown ecosystem")
	}
	if !validKind(kind) || kind.IsNFT() {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "crowdsale properties cannot be NFTs")
	}
	if tokensPerUnit == 0 {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "tokens-per-unit must be positive")
	}
	if issuerPercentage > 100 {
		return errs.New(errs.FamilyProperty, errs.CodePropertyInvalidKind, "issuer percentage out of range")
	}

	entry := &property.Entry{
		Issuer: mtx.Sender,
		Kind:   kind,
		Name:   name, Category: category, Subcategory: subcategory, URL: url, Data: data,
		Crowdsale: property.CrowdsaleParams{
			BaseCurrency:     baseCurrency,
			TokensPerUnit:    tokensPerUnit,
			Deadline:         int64(deadline),
			EarlyBirdBonus:   earlyBirdBonus,
			IssuerPercentage: issuerPercentage,
		},
	}
	_, err = property.Create(ictx.DB, eco, entry, mtx.TxID, mtx.Block)
	return err
}

// maybeParticipateCrowdsale checks whether recipient is the issuer of an
// open crowdsale denominated in property; if so, amount is treated as a
// crowdsale contribution and newly minted tokens are granted to the
// sender (spec §3.1 "numeric parameters for crowdsales", §4.7).
func maybeParticipateCrowdsale(ictx *Context, mtx *parser.MetaTx, property_ omni.PropertyId, amount omni.Amount) error {
	id, found, err := findOpenCrowdsaleFor(ictx, mtx.Recipient, property_, mtx.Block)
	if err != nil || !found {
		return err
	}
	entry, err := property.Get(ictx.DB, id)
	if err != nil {
		return err
	}
	cs := entry.Crowdsale
	granted := omni.Amount(uint64(amount) * cs.TokensPerUnit / omni.DivisibleUnit)
	if granted <= 0 {
		return nil
	}
	issuerCut := omni.Amount(int64(granted) * int64(cs.IssuerPercentage) / 100)
	investorCut := granted - issuerCut

	if investorCut > 0 {
		if err := creditChecked(ictx, mtx.Sender, id, omni.Available, investorCut); err != nil {
			return err
		}
	}
	if issuerCut > 0 {
		if err := creditChecked(ictx, mtx.Recipient, id, omni.Available, issuerCut); err != nil {
			return err
		}
	}
	entry.NumTokens += granted
	return property.Update(ictx.DB, id, entry, mtx.Block)
}

// findOpenCrowdsaleFor scans current properties owned by issuer whose
// crowdsale base currency matches property and deadline has not passed.
// Scoped to the common case of a handful of live crowdsales per issuer;
// a dedicated per-issuer crowdsale index would replace this scan if that
// assumption stopped holding.
func findOpenCrowdsaleFor(ictx *Context, issuer omni.Address, baseCurrency omni.PropertyId, block uint64) (omni.PropertyId, bool, error) {
	ids, err := property.ListByIssuer(ictx.DB, issuer)
	if err != nil {
		return 0, false, err
	}
	for _, id := range ids {
		entry, err := property.Get(ictx.DB, id)
		if err != nil {
			continue
		}
		if entry.Flags.Fixed || entry.Flags.Manual {
			continue
		}
		if entry.Crowdsale.BaseCurrency != baseCurrency {
			continue
		}
		if entry.Crowdsale.Deadline != 0 && int64(block) > entry.Crowdsale.Deadline {
			continue
		}
		return id, true, nil
	}
	return 0, false, nil
}

// handleGrantPropertyTokens implements type 55 (spec §4.7): the issuer (or
// delegate) of a Manual property mints amount to a recipient (itself, if
// none resolved).
func handleGrantPropertyTokens(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated GrantPropertyTokens payload")
	}
	amount, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated GrantPropertyTokens amount")
	}

	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if !entry.Flags.Manual {
		return errs.New(errs.FamilyProperty, errs.CodePropertyNotManual, "property is not manually issued")
	}
	if err := requireIssuerOrDelegate(ictx, propID, entry, mtx); err != nil {
		return err
	}
	if amount <= 0 {
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "amount must be positive")
	}

	recipient := mtx.Sender
	if mtx.HasRecipient {
		recipient = mtx.Recipient
	}
	if entry.Kind.IsNFT() {
		if _, err := nft.Create(ictx.DB, propID, uint64(amount), recipient, nil, mtx.Block); err != nil {
			return err
		}
	} else {
		if err := creditChecked(ictx, recipient, propID, omni.Available, amount); err != nil {
			return err
		}
	}
	entry.NumTokens += amount
	return property.Update(ictx.DB, propID, entry, mtx.Block)
}

// handleRevokePropertyTokens implements type 56 (spec §4.7): the issuer
// burns amount out of its own balance.
func handleRevokePropertyTokens(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated RevokePropertyTokens payload")
	}
	amount, err := r.Amount()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated RevokePropertyTokens amount")
	}

	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if !entry.Flags.Manual {
		return errs.New(errs.FamilyProperty, errs.CodePropertyNotManual, "property is not manually issued")
	}
	if err := requireIssuerOrDelegate(ictx, propID, entry, mtx); err != nil {
		return err
	}
	if amount <= 0 {
		return errs.New(errs.FamilyGeneral, errs.CodeAmountOutOfRange, "amount must be positive")
	}
	if ictx.Tally.Bucket(mtx.Sender, propID, omni.Available) < amount {
		return errs.New(errs.FamilySend, errs.CodeSendInsufficientBalance, "insufficient available balance to revoke")
	}

	if err := ictx.Tally.Debit(mtx.Sender, propID, omni.Available, amount); err != nil {
		return err
	}
	if amount > entry.NumTokens {
		entry.MissedTokens += amount - entry.NumTokens
		entry.NumTokens = 0
	} else {
		entry.NumTokens -= amount
	}
	return property.Update(ictx.DB, propID, entry, mtx.Block)
}

// handleCloseCrowdsale implements type 53 (spec §4.7): the issuer closes
// an open crowdsale early by forcing its deadline into the past.
func handleCloseCrowdsale(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated CloseCrowdsale payload")
	}
	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if entry.Flags.Fixed || entry.Flags.Manual {
		return errs.New(errs.FamilyProperty, errs.CodeCrowdsaleNotOpen, "property has no crowdsale")
	}
	if entry.Issuer != mtx.Sender {
		return errs.New(errs.FamilyProperty, errs.CodePropertyUnauthorized, "only the issuer may close its crowdsale")
	}
	if entry.Crowdsale.Deadline != 0 && int64(mtx.Block) > entry.Crowdsale.Deadline {
		return errs.New(errs.FamilyProperty, errs.CodeCrowdsaleNotOpen, "crowdsale already closed")
	}
	entry.Crowdsale.Deadline = int64(mtx.Block) - 1
	return property.Update(ictx.DB, propID, entry, mtx.Block)
}

// handleChangeIssuer implements type 70 (spec §4.3, §4.7).
func handleChangeIssuer(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated ChangeIssuer payload")
	}
	if !mtx.HasRecipient {
		return errs.New(errs.FamilyProperty, errs.CodePropertyUnauthorized, "ChangeIssuer requires a reference recipient")
	}
	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if entry.Issuer != mtx.Sender {
		return errs.New(errs.FamilyProperty, errs.CodePropertyUnauthorized, "only the current issuer may transfer issuance")
	}
	entry.Issuer = mtx.Recipient
	return property.Update(ictx.DB, propID, entry, mtx.Block)
}

// handleChangePropertyDelegate implements type 73 (spec §4.3, §4.7): the
// issuer appoints (or, with no recipient, revokes) a delegate who may also
// act as issuer for Grant/Revoke/Freeze operations.
func handleChangePropertyDelegate(ictx *Context, mtx *parser.MetaTx) error {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated ChangePropertyDelegate payload")
	}
	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return err
	}
	if entry.Issuer != mtx.Sender {
		return errs.New(errs.FamilyProperty, errs.CodePropertyUnauthorized, "only the issuer may change the delegate")
	}
	if mtx.HasRecipient {
		entry.Delegate = mtx.Recipient
	} else {
		entry.Delegate = ""
	}
	return property.Update(ictx.DB, propID, entry, mtx.Block)
}

// requireIssuerOrDelegate enforces spec §4.3's "issuer or delegate" rule
// for Grant/Revoke/Freeze operations, checking the historical issuer and
// delegate as of mtx.Block so a reorg-stable rule applies mid-chain.
func requireIssuerOrDelegate(ictx *Context, propID omni.PropertyId, entry *property.Entry, mtx *parser.MetaTx) error {
	issuer, err := property.GetIssuerAt(ictx.DB, propID, mtx.Block)
	if err != nil {
		return err
	}
	if mtx.Sender == issuer {
		return nil
	}
	delegate, err := property.GetDelegateAt(ictx.DB, propID, mtx.Block)
	if err != nil {
		return err
	}
	if delegate != "" && mtx.Sender == delegate {
		return nil
	}
	return errs.New(errs.FamilyProperty, errs.CodePropertyUnauthorized, "sender is neither issuer nor delegate")
}
