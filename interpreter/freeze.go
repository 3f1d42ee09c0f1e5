package interpreter

import (
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
	"github.com/omnilayer/omnicore/property"
	"github.com/pkg/errors"
)

// freezeTargetProperty reads the property id off the payload and checks
// the sender is its issuer or delegate, shared by all four freeze types
// (spec §4.3's "issuer or delegate" authorization rule).
func freezeTargetProperty(ictx *Context, mtx *parser.MetaTx) (omni.PropertyId, *property.Entry, error) {
	r := payload.NewReader(mtx.Body)
	propID, err := r.PropertyId()
	if err != nil {
		return 0, nil, errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated freeze payload")
	}
	entry, err := requireProperty(ictx, uint32(propID))
	if err != nil {
		return 0, nil, err
	}
	if err := requireIssuerOrDelegate(ictx, propID, entry, mtx); err != nil {
		return 0, nil, err
	}
	return propID, entry, nil
}

// handleEnableFreezing implements type 71 (spec §4.7): the issuer of a
// Manual property turns on its freezing capability.
func handleEnableFreezing(ictx *Context, mtx *parser.MetaTx) error {
	propID, entry, err := freezeTargetProperty(ictx, mtx)
	if err != nil {
		return err
	}
	if !entry.Flags.Manual {
		return errs.New(errs.FamilyFreeze, errs.CodeFreezeNotManual, "freezing requires a manually-issued property")
	}
	return errors.WithStack(ictx.DB.Accessor().Put(dbaccess.FreezeEnabled.Key(propKey(propID)), []byte{1}))
}

// handleDisableFreezing implements type 186.
func handleDisableFreezing(ictx *Context, mtx *parser.MetaTx) error {
	propID, _, err := freezeTargetProperty(ictx, mtx)
	if err != nil {
		return err
	}
	return errors.WithStack(ictx.DB.Accessor().Put(dbaccess.FreezeEnabled.Key(propKey(propID)), []byte{0}))
}

// handleFreezeTokens implements type 72 (spec §4.7): the issuer freezes a
// single address out of sending this property, provided freezing was
// previously enabled.
func handleFreezeTokens(ictx *Context, mtx *parser.MetaTx) error {
	propID, _, err := freezeTargetProperty(ictx, mtx)
	if err != nil {
		return err
	}
	enabled, err := freezingEnabled(ictx, propID)
	if err != nil {
		return err
	}
	if !enabled {
		return errs.New(errs.FamilyFreeze, errs.CodeFreezeNotEnabled, "freezing is not enabled for this property")
	}
	if !mtx.HasRecipient {
		return errs.New(errs.FamilyFreeze, errs.CodeFreezeNotEnabled, "FreezePropertyTokens requires a target address")
	}
	key := dbaccess.FreezeFlags.Key(propKey(propID), []byte(mtx.Recipient))
	return errors.WithStack(ictx.DB.Accessor().Put(key, []byte{1}))
}

// handleUnfreezeTokens implements type 185.
func handleUnfreezeTokens(ictx *Context, mtx *parser.MetaTx) error {
	propID, _, err := freezeTargetProperty(ictx, mtx)
	if err != nil {
		return err
	}
	if !mtx.HasRecipient {
		return errs.New(errs.FamilyFreeze, errs.CodeFreezeNotEnabled, "UnfreezePropertyTokens requires a target address")
	}
	key := dbaccess.FreezeFlags.Key(propKey(propID), []byte(mtx.Recipient))
	return errors.WithStack(ictx.DB.Accessor().Put(key, []byte{0}))
}
