// Package interpreter implements the per-type transaction handlers (spec
// §4.7): one handler per (payload type, version), dispatched from the
// parsed meta-transaction header. Every handler validates its preconditions
// completely before touching the tally, property registry, or NFT store,
// so a rejected transaction never leaves a partial mutation behind, then
// applies its effect in one pass. Grounded on `blockdag`'s
// `checkTransactionSanity`/`applyTransaction` split (validate fully, then
// mutate), generalized from UTXO-spend validation to meta-protocol
// business rules.
package interpreter

import (
	"encoding/binary"

	"github.com/omnilayer/omnicore/dagparams"
	"github.com/omnilayer/omnicore/dbaccess"
	"github.com/omnilayer/omnicore/database"
	"github.com/omnilayer/omnicore/errs"
	"github.com/omnilayer/omnicore/feecache"
	"github.com/omnilayer/omnicore/omni"
	"github.com/omnilayer/omnicore/parser"
	"github.com/omnilayer/omnicore/property"
	"github.com/omnilayer/omnicore/tally"
	"github.com/pkg/errors"
)

// Context wires every component a handler may need. One Context is built
// per node and reused across blocks; the database handle it wraps stays
// the same, while a reorg may replace Tally (see reorg.Controller).
type Context struct {
	DB     *dbaccess.Context
	Tally  *tally.Ledger
	Params *dagparams.Params

	// AdminAllowSender, if non-empty, is accepted as an authorized admin
	// sender in addition to the network's Exodus address
	// (-omniactivationallowsender, spec §6.4). AdminIgnoreSender disables
	// the sender check entirely (-omniactivationignoresender). Both are
	// operator escape hatches for test networks; cmd/omnicored is
	// responsible for also posting a permanent alert when either is set,
	// so the override is visible to anything reading the alert store.
	AdminAllowSender  omni.Address
	AdminIgnoreSender bool
}

// Handler implements one payload type/version's business rules. A non-nil
// *errs.TxError return means "reject, no state changed"; any other
// non-nil error is fatal (a *errs.ConsistencyError or a database failure)
// and must abort the node.
type Handler func(ictx *Context, mtx *parser.MetaTx) error

type dispatchKey struct {
	Type    uint16
	Version uint16
}

var dispatch = map[dispatchKey]Handler{}

func register(typ, version uint16, h Handler) {
	dispatch[dispatchKey{Type: typ, Version: version}] = h
}

// The payload type numbers spec §4.7 and SPEC_FULL.md §4.7 assign.
const (
	TypeSimpleSend       = 0
	TypeSendToOwners     = 3
	TypeSendAll          = 4
	TypeSendNonFungible  = 5 // SPEC_FULL.md §4.7 resolves the 25/5 clash, see DESIGN.md.
	TypeSendToMany       = 7
	TypeDExSell          = 20
	TypeDExAccept        = 22
	TypeDExPay           = 23
	TypeDExCancel        = 24
	TypeMetaDExTrade     = 25
	TypeMetaDExCancelPrice   = 26
	TypeMetaDExCancelPair    = 27
	TypeMetaDExCancelEco     = 28
	TypeCreatePropertyFixed    = 50
	TypeCreatePropertyVariable = 51
	TypeCloseCrowdsale         = 53
	TypeCreatePropertyManual   = 54
	TypeGrantPropertyTokens    = 55
	TypeRevokePropertyTokens   = 56
	TypeChangeIssuer           = 70
	TypeEnableFreezing         = 71
	TypeDisableFreezing        = 186
	TypeChangePropertyDelegate = 73
	TypeFreezePropertyTokens   = 72
	TypeUnfreezePropertyTokens = 185
	TypeActivation   = 65534
	TypeDeactivation = 65533
	TypeAlert        = 65535
)

func init() {
	register(TypeSimpleSend, 0, handleSimpleSend)
	register(TypeSendToOwners, 0, handleSendToOwners)
	register(TypeSendAll, 0, handleSendAll)
	register(TypeSendToMany, 0, handleSendToMany)
	register(TypeSendNonFungible, 0, handleSendNonFungible)

	register(TypeCreatePropertyFixed, 0, handleCreatePropertyFixed)
	register(TypeCreatePropertyVariable, 0, handleCreatePropertyVariable)
	register(TypeCreatePropertyManual, 0, handleCreatePropertyManual)
	register(TypeGrantPropertyTokens, 0, handleGrantPropertyTokens)
	register(TypeRevokePropertyTokens, 0, handleRevokePropertyTokens)
	register(TypeCloseCrowdsale, 0, handleCloseCrowdsale)
	register(TypeChangeIssuer, 0, handleChangeIssuer)
	register(TypeChangePropertyDelegate, 0, handleChangePropertyDelegate)

	register(TypeEnableFreezing, 0, handleEnableFreezing)
	register(TypeDisableFreezing, 0, handleDisableFreezing)
	register(TypeFreezePropertyTokens, 0, handleFreezeTokens)
	register(TypeUnfreezePropertyTokens, 0, handleUnfreezeTokens)

	register(TypeDExSell, 0, handleDExSell)
	register(TypeDExAccept, 0, handleDExAccept)
	register(TypeDExPay, 0, handleDExPay)
	register(TypeDExCancel, 0, handleDExCancel)

	register(TypeMetaDExTrade, 0, handleMetaDExTrade)
	register(TypeMetaDExCancelPrice, 0, handleMetaDExCancelAtPrice)
	register(TypeMetaDExCancelPair, 0, handleMetaDExCancelForPair)
	register(TypeMetaDExCancelEco, 0, handleMetaDExCancelEverything)

	register(TypeActivation, 0, handleActivation)
	register(TypeDeactivation, 0, handleActivation)
	register(TypeAlert, 0, handleAlert)
}

// Apply dispatches mtx to its handler and records the outcome in the
// tx-list store (spec §4.7, §4.9 "every meta-transaction's outcome is
// recorded, valid or not"). Only a fatal error (ConsistencyError or a
// database failure) is returned to the caller; ordinary invalidity is
// recorded and swallowed, exactly as spec §7 requires.
func Apply(ictx *Context, mtx *parser.MetaTx) error {
	h, ok := dispatch[dispatchKey{Type: mtx.Type, Version: mtx.Version}]
	if !ok {
		return recordOutcome(ictx, mtx, errs.New(errs.FamilyGeneral, errs.CodeUnknownType, "unknown payload type/version"))
	}

	err := h(ictx, mtx)
	if err == nil {
		return recordOutcome(ictx, mtx, nil)
	}
	if txErr, ok := err.(*errs.TxError); ok {
		return recordOutcome(ictx, mtx, txErr)
	}
	return err
}

// RecordParseFailure records a malformed-payload parse error in the
// tx-list store the same way Apply records an invalid interpretation
// (spec §4.6/§4.7: a truncated or otherwise malformed payload is a
// recorded invalid transaction, not a silently-ignored one). The block
// pipeline calls this directly for parser errors it decides are "genuinely
// malformed" rather than "not a meta-transaction at all".
func RecordParseFailure(ictx *Context, block uint64, position int, txErr *errs.TxError) error {
	mtx := &parser.MetaTx{Block: block, Position: position}
	return recordOutcome(ictx, mtx, txErr)
}

func recordOutcome(ictx *Context, mtx *parser.MetaTx, txErr *errs.TxError) error {
	key := dbaccess.TxList.Key(database.DescendingUint64(mtx.Block), database.Varint(uint64(mtx.Position)))
	var buf []byte
	if txErr == nil {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
		buf = append(buf, []byte(txErr.Family)...)
		buf = append(buf, 0)
		var codeBuf [8]byte
		binary.BigEndian.PutUint64(codeBuf[:], uint64(int64(txErr.Code)))
		buf = append(buf, codeBuf[:]...)
		buf = append(buf, []byte(txErr.Reason)...)
	}
	return errors.WithStack(ictx.DB.Accessor().Put(key, buf))
}

// requireProperty fetches a property entry or returns a TxError the
// caller can propagate directly (spec §4.7 "unknown property id is always
// invalid").
func requireProperty(ictx *Context, id uint32) (*property.Entry, error) {
	entry, err := property.Get(ictx.DB, propertyID(id))
	if errors.Cause(err) == property.ErrNotFound {
		return nil, errs.New(errs.FamilySend, errs.CodeSendUnknownProperty, "unknown property id")
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}
