// Package property implements the smart-property registry (spec §4.3):
// create/update of property entries, historical versioning by block, and
// tx-id → property-id lookup. Tables map 1:1 onto the spec's logical
// tables (current, history, tx-lookup, unique-flag, delegate), each its
// own database.Bucket under dbaccess.
package property

import (
	"encoding/binary"

	"github.com/omnilayer/omnicore/omni"
	"github.com/pkg/errors"
)

// CrowdsaleParams holds the numeric parameters of a crowdsale-creating
// property (spec §3.1 "numeric parameters for crowdsales").
type CrowdsaleParams struct {
	BaseCurrency     omni.PropertyId
	TokensPerUnit    uint64
	Deadline         int64
	EarlyBirdBonus   uint8
	IssuerPercentage uint8
}

// Flags are the mutually-informative-not-mutually-exclusive storage flags
// spec §3.1 names.
type Flags struct {
	Fixed  bool
	Manual bool
	Unique bool
}

// Entry is the stored property record (spec §3.1 "Property entry").
type Entry struct {
	Issuer   omni.Address
	Delegate omni.Address // empty if none set
	Kind     omni.PropertyKind

	Name        string
	Category    string
	Subcategory string
	URL         string
	Data        string

	Crowdsale CrowdsaleParams
	Flags     Flags

	NumTokens    omni.Amount
	MissedTokens omni.Amount

	CreationTxID  string
	CreationBlock uint64
	UpdateBlock   uint64
}

// putString writes a varint-length-prefixed field; property
// records are small control data, not the wire payload, so a varint length
// prefix (rather than the payload codec's zero-terminator convention) keeps
// arbitrary-byte category/URL/data fields safe without an escaping scheme.
func putString(buf []byte, s string) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(s)))
	buf = append(buf, tmp[:n]...)
	return append(buf, s...)
}

func getString(b []byte) (string, []byte, error) {
	l, n := binary.Uvarint(b)
	if n <= 0 {
		return "", nil, errors.New("property: truncated string length")
	}
	b = b[n:]
	if uint64(len(b)) < l {
		return "", nil, errors.New("property: truncated string body")
	}
	return string(b[:l]), b[l:], nil
}

// Encode serializes e for storage.
func (e *Entry) Encode() []byte {
	buf := make([]byte, 0, 128)
	buf = putString(buf, string(e.Issuer))
	buf = putString(buf, string(e.Delegate))
	buf = append(buf, byte(e.Kind))
	buf = putString(buf, e.Name)
	buf = putString(buf, e.Category)
	buf = putString(buf, e.Subcategory)
	buf = putString(buf, e.URL)
	buf = putString(buf, e.Data)

	var tmp [8]byte
	binary.BigEndian.PutUint32(tmp[:4], uint32(e.Crowdsale.BaseCurrency))
	buf = append(buf, tmp[:4]...)
	binary.BigEndian.PutUint64(tmp[:8], e.Crowdsale.TokensPerUnit)
	buf = append(buf, tmp[:8]...)
	binary.BigEndian.PutUint64(tmp[:8], uint64(e.Crowdsale.Deadline))
	buf = append(buf, tmp[:8]...)
	buf = append(buf, e.Crowdsale.EarlyBirdBonus, e.Crowdsale.IssuerPercentage)

	var flagByte byte
	if e.Flags.Fixed {
		flagByte |= 1
	}
	if e.Flags.Manual {
		flagByte |= 2
	}
	if e.Flags.Unique {
		flagByte |= 4
	}
	buf = append(buf, flagByte)

	binary.BigEndian.PutUint64(tmp[:8], uint64(e.NumTokens))
	buf = append(buf, tmp[:8]...)
	binary.BigEndian.PutUint64(tmp[:8], uint64(e.MissedTokens))
	buf = append(buf, tmp[:8]...)

	buf = putString(buf, e.CreationTxID)
	binary.BigEndian.PutUint64(tmp[:8], e.CreationBlock)
	buf = append(buf, tmp[:8]...)
	binary.BigEndian.PutUint64(tmp[:8], e.UpdateBlock)
	buf = append(buf, tmp[:8]...)
	return buf
}

// DecodeEntry reverses Encode.
func DecodeEntry(b []byte) (*Entry, error) {
	e := &Entry{}
	var s string
	var err error

	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.Issuer = omni.Address(s)
	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.Delegate = omni.Address(s)

	if len(b) < 1 {
		return nil, errors.New("property: truncated kind")
	}
	e.Kind = omni.PropertyKind(b[0])
	b = b[1:]

	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.Name = s
	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.Category = s
	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.Subcategory = s
	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.URL = s
	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.Data = s

	if len(b) < 4+8+8+1+1+1+8+8 {
		return nil, errors.New("property: truncated fixed fields")
	}
	e.Crowdsale.BaseCurrency = omni.PropertyId(binary.BigEndian.Uint32(b[:4]))
	b = b[4:]
	e.Crowdsale.TokensPerUnit = binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	e.Crowdsale.Deadline = int64(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]
	e.Crowdsale.EarlyBirdBonus = b[0]
	e.Crowdsale.IssuerPercentage = b[1]
	b = b[2:]

	flagByte := b[0]
	e.Flags.Fixed = flagByte&1 != 0
	e.Flags.Manual = flagByte&2 != 0
	e.Flags.Unique = flagByte&4 != 0
	b = b[1:]

	e.NumTokens = omni.Amount(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]
	e.MissedTokens = omni.Amount(binary.BigEndian.Uint64(b[:8]))
	b = b[8:]

	if s, b, err = getString(b); err != nil {
		return nil, err
	}
	e.CreationTxID = s

	if len(b) < 16 {
		return nil, errors.New("property: truncated block fields")
	}
	e.CreationBlock = binary.BigEndian.Uint64(b[:8])
	b = b[8:]
	e.UpdateBlock = binary.BigEndian.Uint64(b[:8])
	return e, nil
}

// Clone returns a deep-enough copy for safe mutation (no shared pointers;
// every field is a value type).
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}
