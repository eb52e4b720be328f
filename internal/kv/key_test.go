package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitHeadKeyRoundTrip(t *testing.T) {
	key := HeadKey("pe/alice", []byte("doc-1"), []byte("v1"))
	id, v, ok := SplitHeadKey("pe/alice", key)
	assert.True(t, ok)
	assert.Equal(t, []byte("doc-1"), id)
	assert.Equal(t, []byte("v1"), v)
}

func TestSplitHeadKeyRejectsForeignTree(t *testing.T) {
	key := HeadKey("pe/alice", []byte("doc-1"), []byte("v1"))
	_, _, ok := SplitHeadKey("pe/bob", key)
	assert.False(t, ok)
}

func TestByIDKeyOrdersByInsertionSequence(t *testing.T) {
	k1 := ByIDKey("l", []byte("doc"), 1)
	k2 := ByIDKey("l", []byte("doc"), 2)
	k10 := ByIDKey("l", []byte("doc"), 10)
	assert.True(t, string(k1) < string(k2))
	assert.True(t, string(k2) < string(k10), "big-endian fixed width i must sort numerically")
}

func TestByIDPrefixMatchesOnlyItsOwnID(t *testing.T) {
	prefixA := ByIDPrefix("l", []byte("a"))
	keyB := ByIDKey("l", []byte("b"), 1)
	assert.False(t, len(keyB) >= len(prefixA) && string(keyB[:len(prefixA)]) == string(prefixA))
}

func TestHeadsPrefixNilScansWholeTree(t *testing.T) {
	p := HeadsPrefix("l", nil)
	k := HeadKey("l", []byte("any-id"), []byte("v"))
	assert.True(t, len(k) >= len(p))
	assert.Equal(t, p, k[:len(p)])
}
