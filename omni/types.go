// Package omni holds the core entity types shared by every component of
// the meta-token layer: addresses, property identifiers, amounts and
// balance buckets (spec §3.1). It deliberately does not implement any
// address encoding/decoding: the host chain's address-encoding library is
// out of scope (spec §1). Address is kept as the plain string the spec
// defines.
package omni

import "github.com/pkg/errors"

// Address is a host-chain-native encoded address. omnicore never parses or
// validates its encoding; it is an opaque, comparable identifier.
type Address string

// PropertyId identifies a property (token). 0 is the host chain's native
// coin. 1 and 2 are the two protocol-reserved ecosystem tokens ("main" and
// "test"); they are never stored, only fabricated on read.
type PropertyId uint32

// Reserved and boundary property ids (spec §3.1).
const (
	PropertyIdHostCoin PropertyId = 0
	PropertyIdMain     PropertyId = 1
	PropertyIdTest     PropertyId = 2

	mainEcosystemFirstID = 3
	mainEcosystemLastID  = 0x7FFFFFFF
	testEcosystemFirstID = 0x80000003
)

// Ecosystem selects which of the two disjoint property-id ranges (and
// allocation counters) a newly created property is drawn from.
type Ecosystem byte

// The two ecosystems; main-ecosystem and test-ecosystem tokens never trade
// against each other.
const (
	EcosystemMain Ecosystem = 0x01
	EcosystemTest Ecosystem = 0x02
)

// EcosystemOf reports which ecosystem a property id belongs to.
func EcosystemOf(id PropertyId) (Ecosystem, bool) {
	switch {
	case id == PropertyIdMain:
		return EcosystemMain, true
	case id == PropertyIdTest:
		return EcosystemTest, true
	case id >= mainEcosystemFirstID && id <= mainEcosystemLastID:
		return EcosystemMain, true
	case id >= testEcosystemFirstID:
		return EcosystemTest, true
	default:
		return 0, false
	}
}

// PropertyKind selects a property's unit semantics.
type PropertyKind byte

// The seven kinds spec §3.1 enumerates.
const (
	Indivisible PropertyKind = iota
	Divisible
	NonFungible
	IndivisibleReplacing
	DivisibleReplacing
	IndivisibleAppending
	DivisibleAppending
)

// IsDivisible reports whether amounts of this kind carry 8 fractional
// digits (true) or are whole-unit integers (false).
func (k PropertyKind) IsDivisible() bool {
	switch k {
	case Divisible, DivisibleReplacing, DivisibleAppending:
		return true
	default:
		return false
	}
}

// IsNFT reports whether the property is range-addressable.
func (k PropertyKind) IsNFT() bool {
	return k == NonFungible
}

// DivisibleUnit is the number of indivisible base units per whole coin for
// a divisible property (10^8, spec §6.1).
const DivisibleUnit = 100000000

// Amount is a signed 64-bit quantity; valid balances occupy [0, 2^63-1].
// Arithmetic helpers saturate/reject on overflow per spec §3.1 rather than
// wrapping, since a wrapped balance is a silent consensus divergence.
type Amount int64

// MaxAmount is the largest value a balance bucket may hold.
const MaxAmount Amount = 1<<63 - 1

// ErrAmountOverflow is returned when an addition would exceed MaxAmount.
var ErrAmountOverflow = errors.New("amount overflow")

// ErrAmountRange is returned when a value is outside [0, MaxAmount] where a
// non-negative quantity is required.
var ErrAmountRange = errors.New("amount out of range")

// AddAmount returns a+b, or ErrAmountOverflow if the sum would exceed
// MaxAmount. Both operands must already be non-negative.
func AddAmount(a, b Amount) (Amount, error) {
	if a < 0 || b < 0 {
		return 0, errors.WithStack(ErrAmountRange)
	}
	sum := a + b
	if sum < a || sum > MaxAmount {
		return 0, errors.WithStack(ErrAmountOverflow)
	}
	return sum, nil
}

// BucketKind selects one of the four per-(address,property) balance
// buckets (spec §3.1). The ordinal values are part of the consensus-hash
// tuple ordering (spec §4.8.1) and of NFT/tally key layouts, so they must
// never be renumbered.
type BucketKind byte

// The four buckets, in their fixed consensus-hash / key-encoding order.
const (
	Available BucketKind = iota
	SellOffer
	AcceptReserve
	MetaDExReserve
)

// bucketKindNames is used only for diagnostics (log lines, test failure
// messages); it is not part of any on-disk or wire encoding.
var bucketKindNames = [...]string{"Available", "SellOffer", "AcceptReserve", "MetaDExReserve"}

func (b BucketKind) String() string {
	if int(b) < len(bucketKindNames) {
		return bucketKindNames[b]
	}
	return "Unknown"
}
