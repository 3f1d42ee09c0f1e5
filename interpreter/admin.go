package interpreter

import (
	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/payload"
	"github.com/pkg/errors"
)

// Activation/Deactivation/Alert (spec §4.7) are authorized-sender gated:
// only the network's Exodus address may schedule a feature or post an
// alert. Activations are read back by the block pipeline's begin() step
// (spec §4.8 step 1, "apply any features whose live_block == h"); this
// package only validates and records them.

// exodusForNetwork picks the network's reserved address the same way
// feecache.exodusFor picks it for fee distribution, using
// RelaxedScriptGating as the established mainnet/non-mainnet signal.
func exodusForNetwork(ictx *Context) omni.Address {
	if ictx.Params != nil && ictx.Params.RelaxedScriptGating {
		return dagparams.Exodus.Test
	}
	return dagparams.Exodus.Main
}

// ExodusAddress exposes exodusForNetwork to other packages (the block
// pipeline's devmsc accrual credits this address, spec §4.8 end(B)).
func ExodusAddress(ictx *Context) omni.Address {
	return exodusForNetwork(ictx)
}

func requireAuthorizedAdmin(ictx *Context, mtx *parser.MetaTx) error {
	if ictx.AdminIgnoreSender {
		return nil
	}
	if mtx.Sender == exodusForNetwork(ictx) {
		return nil
	}
	if ictx.AdminAllowSender != "" && mtx.Sender == ictx.AdminAllowSender {
		return nil
	}
	return errs.New(errs.FamilyGeneral, errs.CodeUnauthorizedSender, "admin transactions must come from the network's reserved address")
}

// overrideAlertType is reserved for the permanent alert cmd/omnicored posts
// at startup when -omniactivationallowsender or -omniactivationignoresender
// relaxes admin authorization (spec §6.4); block 0 keys it so it never
// collides with a height-keyed operator alert and is found by any scan from
// genesis forward.
const overrideAlertType uint8 = 255

// PostAdminOverrideAlert records a permanent (never-expiring) alert marking
// that admin-sender authorization has been relaxed on this node. expiryBlock
// is written as ^uint64(0) so pipeline.End's checkAlertExpirations never
// treats it as expired.
func PostAdminOverrideAlert(ictx *Context, message string) error {
	w := payload.NewWriter()
	w.Uint64(^uint64(0)).String(message)
	return errors.WithStack(ictx.DB.Accessor().Put(alertKey(0, overrideAlertType), w.Bytes()))
}

type activationRecord struct {
	featureID uint16
	version   uint16
	liveBlock uint64
}

func activationKey(liveBlock uint64, featureID uint16) []byte {
	return dbaccess.Activations.Key(database.BigEndianUint64(liveBlock), database.BigEndianUint32(uint32(featureID)))
}

func encodeActivation(a activationRecord) []byte {
	w := payload.NewWriter()
	w.Uint16(a.featureID).Uint16(a.version).Uint64(a.liveBlock)
	return w.Bytes()
}

// handleActivation implements both type 65534 (Activation) and type 65533
// (Deactivation, a live_block of zero meaning "take effect now" is not
// distinguished here, the pipeline's begin() step treats any stored
// record whose live_block == h as due, and a Deactivation simply schedules
// the feature's supporting version back down).
func handleActivation(ictx *Context, mtx *parser.MetaTx) error {
	if err := requireAuthorizedAdmin(ictx, mtx); err != nil {
		return err
	}
	r := payload.NewReader(mtx.Body)
	featureID, err := r.Uint16()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated activation payload")
	}
	version, err := r.Uint16()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated activation payload")
	}
	liveBlock, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated activation payload")
	}
	rec := activationRecord{featureID: featureID, version: version, liveBlock: liveBlock}
	return errors.WithStack(ictx.DB.Accessor().Put(activationKey(liveBlock, featureID), encodeActivation(rec)))
}

func alertKey(block uint64, alertType uint8) []byte {
	return dbaccess.Alerts.Key(database.BigEndianUint64(block), []byte{alertType})
}

// handleAlert implements type 65535: stores a message with an expiry
// block, replacing any prior alert of the same type posted at this block.
func handleAlert(ictx *Context, mtx *parser.MetaTx) error {
	if err := requireAuthorizedAdmin(ictx, mtx); err != nil {
		return err
	}
	r := payload.NewReader(mtx.Body)
	alertType, err := r.Uint8()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated alert payload")
	}
	expiryBlock, err := r.Uint64()
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated alert payload")
	}
	message, err := r.String(256)
	if err != nil {
		return errs.New(errs.FamilyGeneral, errs.CodeTruncatedPayload, "truncated alert payload")
	}
	w := payload.NewWriter()
	w.Uint64(expiryBlock).String(message)
	return errors.WithStack(ictx.DB.Accessor().Put(alertKey(mtx.Block, alertType), w.Bytes()))
}
