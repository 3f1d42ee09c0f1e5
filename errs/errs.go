// Package errs defines omnicore's error taxonomy (spec §7): parse errors
// and semantic errors are recorded as an invalid transaction with no state
// change; consistency errors and checkpoint failures are fatal and abort
// the node. Grounded on blockdag's RuleError{ErrorCode, Description}
// pattern (blockdag/dag.go:575, blockdag/dagio.go:232),
// generalized from a single flat error-code space to the families spec §7
// asks for (general, DEx, STO, send, property, token, freeze).
package errs

import "fmt"

// Family groups related error codes so log lines and metrics can bucket by
// family without parsing the numeric code.
type Family string

// The families spec §7 names.
const (
	FamilyGeneral  Family = "general"
	FamilyDEx      Family = "dex"
	FamilyMetaDEx  Family = "metadex"
	FamilySTO      Family = "sto"
	FamilySend     Family = "send"
	FamilyProperty Family = "property"
	FamilyToken    Family = "token"
	FamilyFreeze   Family = "freeze"
)

// Code is a negative-integer reason code, per spec §7 ("Reasons are
// enumerated (negative integer codes by family...)").
type Code int

// General-family codes.
const (
	CodeInvalidPayload      Code = -1
	CodeUnknownType         Code = -2
	CodeUnsupportedVersion  Code = -3
	CodeTruncatedPayload    Code = -4
	CodeNoSender            Code = -5
	CodeNoRecipient         Code = -6
	CodeDisallowedScriptType Code = -7
	CodeAmountOutOfRange    Code = -8
	CodeUnauthorizedSender  Code = -9
)

// Send-family codes.
const (
	CodeSendUnknownProperty      Code = -101
	CodeSendPropertyIsNFT        Code = -102
	CodeSendFrozen               Code = -103
	CodeSendInsufficientBalance  Code = -104
	CodeSendInvalidRecipient     Code = -105
	CodeSendAmountExceedsBalance Code = -106
)

// Property-family codes.
const (
	CodePropertyAlreadyExists  Code = -201
	CodePropertyUnauthorized   Code = -202
	CodePropertyNotManual      Code = -203
	CodePropertyEcosystemFull  Code = -204
	CodePropertyInvalidKind    Code = -205
	CodeCrowdsaleAlreadyOpen   Code = -206
	CodeCrowdsaleNotOpen       Code = -207
)

// Token-family codes (grants/revokes/NFT ranges).
const (
	CodeTokenSupplyOverflow Code = -301
	CodeTokenRangeMismatch  Code = -302
	CodeTokenRangeNotOwned  Code = -303
)

// Freeze-family codes.
const (
	CodeFreezeNotEnabled Code = -401
	CodeFreezeNotManual  Code = -402
	CodeAddressFrozen    Code = -403
)

// DEx (DEx-1) family codes.
const (
	CodeDExOfferNotFound   Code = -501
	CodeDExAcceptNotFound  Code = -502
	CodeDExAcceptExpired   Code = -503
	CodeDExInsufficientFee Code = -504
)

// MetaDEx family codes.
const (
	CodeMetaDExSameProperty   Code = -601
	CodeMetaDExCrossEcosystem Code = -602
	CodeMetaDExOrderNotFound  Code = -603
)

// STO family codes.
const (
	CodeSTONoHolders Code = -701
)

// TxError is recorded in the tx-list store for a transaction that failed
// parsing or interpretation; no state mutation happened. It is never fatal.
type TxError struct {
	Family Family
	Code   Code
	Reason string
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s[%d]: %s", e.Family, e.Code, e.Reason)
}

// New builds a TxError.
func New(family Family, code Code, reason string) *TxError {
	return &TxError{Family: family, Code: code, Reason: reason}
}

// ConsistencyError represents spec §7's "Consistency errors" family:
// an NFT total mismatch, fee-cache overflow, property total mismatch, or a
// checkpoint hash disagreement. The block pipeline turns every
// ConsistencyError into a host.AbortHook call; it must never be treated as
// an ordinary invalid-transaction outcome.
type ConsistencyError struct {
	Reason string
}

func (e *ConsistencyError) Error() string {
	return "fatal consistency error: " + e.Reason
}

// NewConsistency builds a ConsistencyError.
func NewConsistency(reason string) *ConsistencyError {
	return &ConsistencyError{Reason: reason}
}
