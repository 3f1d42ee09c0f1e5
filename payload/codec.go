package payload

import (
	"encoding/binary"

	"github.com/omnilayer/omnicore/omni"
	"github.com/pkg/errors"
)

// ErrTruncated is returned by every Read* helper when fewer bytes remain
// than the field requires (spec §7 "truncated fields" parse error).
var ErrTruncated = errors.New("payload: truncated field")

// Reader consumes big-endian fixed-width fields and zero-terminated ASCII
// strings from a payload buffer (spec §6.1), grounded on `wire`'s
// fixed-width binary reader idiom.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for sequential field reads.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return errors.WithStack(ErrTruncated)
	}
	return nil
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// Uint16 reads a big-endian 16-bit field.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// Uint32 reads a big-endian 32-bit field.
func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// Uint64 reads a big-endian 64-bit field.
func (r *Reader) Uint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// Amount reads a signed 64-bit amount and rejects negative/overflowing
// values per spec §4.6 ("must fit 63-bit").
func (r *Reader) Amount() (omni.Amount, error) {
	v, err := r.Uint64()
	if err != nil {
		return 0, err
	}
	if v > uint64(omni.MaxAmount) {
		return 0, errors.WithStack(omni.ErrAmountRange)
	}
	return omni.Amount(v), nil
}

// PropertyId reads a 32-bit property id field.
func (r *Reader) PropertyId() (omni.PropertyId, error) {
	v, err := r.Uint32()
	return omni.PropertyId(v), err
}

// String reads a zero-terminated ASCII string of at most maxLen bytes
// (spec §6.1: "Strings are zero-terminated ASCII, ≤ 256 bytes each").
func (r *Reader) String(maxLen int) (string, error) {
	limit := r.off + maxLen
	if limit > len(r.buf) {
		limit = len(r.buf)
	}
	for i := r.off; i < limit; i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.off:i])
			r.off = i + 1
			return s, nil
		}
	}
	return "", errors.WithStack(ErrTruncated)
}

// Writer appends big-endian fixed-width fields and zero-terminated ASCII
// strings, mirroring Reader.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Uint8 appends a single byte.
func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// Uint16 appends a big-endian 16-bit field.
func (w *Writer) Uint16(v uint16) *Writer {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// Uint32 appends a big-endian 32-bit field.
func (w *Writer) Uint32(v uint32) *Writer {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// Uint64 appends a big-endian 64-bit field.
func (w *Writer) Uint64(v uint64) *Writer {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// Amount appends a 63-bit amount field.
func (w *Writer) Amount(v omni.Amount) *Writer {
	return w.Uint64(uint64(v))
}

// PropertyId appends a 32-bit property id field.
func (w *Writer) PropertyId(id omni.PropertyId) *Writer {
	return w.Uint32(uint32(id))
}

// String appends s followed by a zero terminator; s must be < 256 bytes.
func (w *Writer) String(s string) *Writer {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
	return w
}

// Header is every payload's common prefix (spec §6.1): a 16-bit version
// followed by a 16-bit type.
type Header struct {
	Version uint16
	Type    uint16
}

// ReadHeader reads the version/type prefix common to every payload.
func ReadHeader(r *Reader) (Header, error) {
	version, err := r.Uint16()
	if err != nil {
		return Header{}, err
	}
	typ, err := r.Uint16()
	if err != nil {
		return Header{}, err
	}
	return Header{Version: version, Type: typ}, nil
}

// WriteHeader writes h's version/type prefix.
func WriteHeader(w *Writer, h Header) {
	w.Uint16(h.Version)
	w.Uint16(h.Type)
}

// SendToManyEntry is one (output_index, amount) pair of a SendToMany
// payload (spec §6.1).
type SendToManyEntry struct {
	OutputIndex uint8
	Amount      omni.Amount
}

// SendToMany is the decoded body of a type-7 payload (spec §6.1):
// `[version u16][type=7 u16][property u32][count u8]{[output_index u8][amount u64]}×count`.
type SendToMany struct {
	Header   Header
	Property omni.PropertyId
	Entries  []SendToManyEntry
}

// DecodeSendToMany parses a full SendToMany payload, header included.
func DecodeSendToMany(buf []byte) (*SendToMany, error) {
	r := NewReader(buf)
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	property, err := r.PropertyId()
	if err != nil {
		return nil, err
	}
	count, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	entries := make([]SendToManyEntry, 0, count)
	for i := 0; i < int(count); i++ {
		idx, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		amount, err := r.Amount()
		if err != nil {
			return nil, err
		}
		entries = append(entries, SendToManyEntry{OutputIndex: idx, Amount: amount})
	}
	return &SendToMany{Header: h, Property: property, Entries: entries}, nil
}

// Encode serializes s back to wire bytes (round-trip tested, spec §8
// testable property #8).
func (s *SendToMany) Encode() []byte {
	w := NewWriter()
	WriteHeader(w, s.Header)
	w.PropertyId(s.Property)
	w.Uint8(uint8(len(s.Entries)))
	for _, e := range s.Entries {
		w.Uint8(e.OutputIndex)
		w.Amount(e.Amount)
	}
	return w.Bytes()
}
