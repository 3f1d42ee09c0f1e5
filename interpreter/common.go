package interpreter

import (
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/omni"
	"github.com/pkg/errors"
)

func propertyID(id uint32) omni.PropertyId {
	return omni.PropertyId(id)
}

func propKey(property omni.PropertyId) []byte {
	return database.BigEndianUint32(uint32(property))
}

func isNotFound(err error) bool {
	return database.IsNotFoundError(err)
}

// checkNotFrozen rejects a send if addr is frozen for property (spec
// §4.7's freeze-family rule: freezing blocks outgoing sends only).
func checkNotFrozen(ictx *Context, property omni.PropertyId, addr omni.Address) error {
	frozen, err := isFrozen(ictx, property, addr)
	if err != nil {
		return err
	}
	if frozen {
		return errs.New(errs.FamilyFreeze, errs.CodeAddressFrozen, "sender address is frozen for this property")
	}
	return nil
}

func isFrozen(ictx *Context, property omni.PropertyId, addr omni.Address) (bool, error) {
	key := dbaccess.FreezeFlags.Key(propKey(property), []byte(addr))
	val, err := ictx.DB.Accessor().Get(key)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	return len(val) > 0 && val[0] == 1, nil
}

func freezingEnabled(ictx *Context, property omni.PropertyId) (bool, error) {
	val, err := ictx.DB.Accessor().Get(dbaccess.FreezeEnabled.Key(propKey(property)))
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	return len(val) > 0 && val[0] == 1, nil
}

// creditChecked wraps Ledger.Credit, turning an omni.ErrAmountOverflow into
// a recorded invalid transaction instead of letting it escape as a fatal
// error: a bucket crossing the 63-bit bound is a semantic violation (spec
// §7), not a consistency failure.
func creditChecked(ictx *Context, addr omni.Address, property omni.PropertyId, kind omni.BucketKind, amount omni.Amount) error {
	if err := ictx.Tally.Credit(addr, property, kind, amount); err != nil {
		if errors.Cause(err) == omni.ErrAmountOverflow {
			return errs.New(errs.FamilyToken, errs.CodeTokenSupplyOverflow, "credit would overflow the maximum token amount")
		}
		return err
	}
	return nil
}
