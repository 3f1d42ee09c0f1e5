package database

import "bytes"

// Bucket is a 1-byte table prefix plus zero or more fixed path segments
// shared by every key stored under it. Prefixes are assigned once and never
// reused for a different logical table: changing one forces DB_VERSION to
// be bumped (see dagparams.DBVersion) since old data would otherwise be
// misread under the new meaning.
type Bucket struct {
	path []byte
}

// MakeBucket builds a Bucket out of a 1-byte table prefix followed by any
// number of additional fixed path segments (used when one logical table is
// further split, e.g. NFT ranges keyed by (property, kind)).
func MakeBucket(path ...[]byte) Bucket {
	var buf bytes.Buffer
	for _, p := range path {
		buf.Write(p)
	}
	return Bucket{path: buf.Bytes()}
}

// Key concatenates the bucket's path with the given field encodings,
// yielding the full on-disk key. Callers are responsible for choosing field
// encodings (see keys.go) that produce the desired lexicographic order.
func (b Bucket) Key(fields ...[]byte) []byte {
	size := len(b.path)
	for _, f := range fields {
		size += len(f)
	}
	key := make([]byte, 0, size)
	key = append(key, b.path...)
	for _, f := range fields {
		key = append(key, f...)
	}
	return key
}

// Path returns the bucket's raw prefix bytes, suitable for passing to
// DataAccessor.Cursor to enumerate every key stored under it.
func (b Bucket) Path() []byte {
	return b.path
}

// Child derives a sub-bucket by appending a fixed segment to this bucket's
// path, e.g. a per-(property,kind) NFT range bucket nested under the NFT
// table's 1-byte prefix.
func (b Bucket) Child(segment []byte) Bucket {
	return Bucket{path: append(append([]byte{}, b.path...), segment...)}
}
