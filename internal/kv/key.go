// Package kv is the ordered byte-key/byte-value store abstraction (spec.md
// §4.1, component 1): prefix scans and atomic batches over an LSM engine.
package kv

import (
	"bytes"
	"encoding/binary"
)

// Index tags distinguish the five index families a Tree maintains, per
// the Indices table in spec.md §3.
type Index byte

const (
	IndexVersion Index = 'v'
	IndexByID    Index = 'd' // avoid colliding with 'i' (IndexByI)
	IndexByI     Index = 'i'
	IndexHeads   Index = 'h'
	IndexMeta    Index = 'm'
)

// segment appends a length-prefixed byte segment to buf so lexicographic
// ordering of the encoded key matches the ordering of (tree, tag,
// segments...) tuples regardless of segment content, including segments
// that are themselves variable-length byte strings (ids, versions).
func segment(buf []byte, s []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s...)
	return buf
}

// VersionKey builds the `(tree, 'v', v)` primary-lookup key.
func VersionKey(tree string, v []byte) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexVersion))
	buf = segment(buf, v)
	return buf
}

// ByIDKey builds the `(tree, 'id', id, i)` secondary-index key. i is
// encoded big-endian fixed-width so keys with the same id sort in
// insertion order.
func ByIDKey(tree string, id []byte, i uint64) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexByID))
	buf = segment(buf, id)
	var iBuf [8]byte
	binary.BigEndian.PutUint64(iBuf[:], i)
	buf = append(buf, iBuf[:]...)
	return buf
}

// ByIDPrefix builds the prefix that scans every version of id in
// insertion order.
func ByIDPrefix(tree string, id []byte) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexByID))
	buf = segment(buf, id)
	return buf
}

// ByIKey builds the `(tree, 'i', i)` insertion-order key.
func ByIKey(tree string, i uint64) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexByI))
	var iBuf [8]byte
	binary.BigEndian.PutUint64(iBuf[:], i)
	buf = append(buf, iBuf[:]...)
	return buf
}

// ByIPrefix builds the prefix that scans an entire tree in insertion
// order.
func ByIPrefix(tree string) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexByI))
	return buf
}

// HeadKey builds the `(tree, 'h', id, v)` current-heads key.
func HeadKey(tree string, id, v []byte) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexHeads))
	buf = segment(buf, id)
	buf = segment(buf, v)
	return buf
}

// HeadsPrefix builds the prefix that scans heads of a given id (or, if id
// is nil, every head in the tree).
func HeadsPrefix(tree string, id []byte) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexHeads))
	if id != nil {
		buf = segment(buf, id)
	}
	return buf
}

// MetaKey builds the `(tree, 'meta', k)` key for last-seen markers and
// counters.
func MetaKey(tree string, k string) []byte {
	buf := []byte(tree)
	buf = append(buf, byte(IndexMeta))
	buf = append(buf, []byte(k)...)
	return buf
}

// SplitHeadKey recovers (id, v) from a key produced by HeadKey, given the
// key was read via a HeadsPrefix(tree, nil) scan.
func SplitHeadKey(tree string, key []byte) (id, v []byte, ok bool) {
	prefix := []byte(tree)
	prefix = append(prefix, byte(IndexHeads))
	if !bytes.HasPrefix(key, prefix) {
		return nil, nil, false
	}
	rest := key[len(prefix):]
	if len(rest) < 4 {
		return nil, nil, false
	}
	idLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < idLen {
		return nil, nil, false
	}
	id = rest[:idLen]
	rest = rest[idLen:]
	if len(rest) < 4 {
		return nil, nil, false
	}
	vLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < vLen {
		return nil, nil, false
	}
	v = rest[:vLen]
	return id, v, true
}
