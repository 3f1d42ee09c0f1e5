package database

import "encoding/binary"

// Field encoders for the sort-order rules a table's key layout must satisfy
// (spec §4.1): integers that should sort ascending use big-endian fixed
// width; integers that should sort descending (e.g. "most recent block
// first") use big-endian of the bitwise complement; sizes that should stay
// compact use varint; hashes and addresses are passed through raw.

// BigEndianUint32 encodes v so that raw byte comparison sorts ascending.
func BigEndianUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// BigEndianUint64 encodes v so that raw byte comparison sorts ascending.
func BigEndianUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// DescendingUint32 encodes v so that raw byte comparison sorts descending
// (bitwise complement before big-endian encoding): the largest v produces
// the smallest key, so a forward cursor visits v in decreasing order.
func DescendingUint32(v uint32) []byte {
	return BigEndianUint32(^v)
}

// DescendingUint64 encodes v so that raw byte comparison sorts descending.
func DescendingUint64(v uint64) []byte {
	return BigEndianUint64(^v)
}

// DecodeBigEndianUint32 reverses BigEndianUint32.
func DecodeBigEndianUint32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// DecodeBigEndianUint64 reverses BigEndianUint64.
func DecodeBigEndianUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// DecodeDescendingUint32 reverses DescendingUint32.
func DecodeDescendingUint32(b []byte) uint32 {
	return ^binary.BigEndian.Uint32(b)
}

// DecodeDescendingUint64 reverses DescendingUint64.
func DecodeDescendingUint64(b []byte) uint64 {
	return ^binary.BigEndian.Uint64(b)
}

// Varint encodes v in the standard LEB128-style variable-length form used
// for fields where compactness, not sort order, is the priority (e.g. the
// byte count of a free-form data blob embedded in a key).
func Varint(v uint64) []byte {
	b := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(b, v)
	return b[:n]
}

// DecodeVarint decodes a Varint-encoded value and returns the number of
// bytes consumed.
func DecodeVarint(b []byte) (uint64, int) {
	return binary.Uvarint(b)
}
