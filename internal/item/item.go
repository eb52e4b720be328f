// Package item defines the canonical record carried through every tree,
// stream, and index: the Item described in spec.md §3.
package item

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Netsend/persdb/internal/perr"
)

// MaxParents is the maximum number of entries a Header.Pa may carry.
const MaxParents = 2

// Header is the `h` field of an Item: identity, lineage, and bookkeeping.
// Field tags match the one-letter wire names from spec.md §3 exactly.
type Header struct {
	ID []byte   `bson:"id"`
	V  []byte   `bson:"v"`
	Pa [][]byte `bson:"pa,omitempty"`
	Pe string   `bson:"pe,omitempty"`
	I  uint64   `bson:"i,omitempty"`
	D  bool     `bson:"d,omitempty"`
	C  bool     `bson:"c,omitempty"`
}

// Item is the canonical record: header, opaque body, adapter-private meta.
type Item struct {
	H Header                 `bson:"h"`
	B bson.Raw               `bson:"b,omitempty"`
	M map[string]interface{} `bson:"m,omitempty"`
}

// Body is a decoded document view used by the merge algorithm, which
// operates on named fields rather than raw bytes.
type Body map[string]interface{}

// IsTombstone reports whether this item marks id as deleted.
func (it *Item) IsTombstone() bool { return it.H.D }

// IsConflictMarker reports whether this item is a conflict marker (§3:
// `c` true marks a conflict).
func (it *Item) IsConflictMarker() bool { return it.H.C }

// DecodeBody unmarshals the item's body into a Body map. Tombstones carry
// no body and decode to an empty, non-nil Body.
func (it *Item) DecodeBody() (Body, error) {
	if it.H.D || len(it.B) == 0 {
		return Body{}, nil
	}
	var b Body
	if err := bson.Unmarshal(it.B, &b); err != nil {
		return nil, perr.ErrMalformedItem
	}
	return b, nil
}

// EncodeBody marshals a Body map into the item's raw BSON body.
func EncodeBody(b Body) (bson.Raw, error) {
	if b == nil {
		return nil, nil
	}
	buf, err := bson.Marshal(b)
	if err != nil {
		return nil, err
	}
	return bson.Raw(buf), nil
}

// Encode serializes the item to BSON bytes for storage or the wire.
func Encode(it *Item) ([]byte, error) {
	return bson.Marshal(it)
}

// Decode deserializes BSON bytes into an Item.
func Decode(buf []byte) (*Item, error) {
	var it Item
	if err := bson.Unmarshal(buf, &it); err != nil {
		return nil, perr.ErrMalformedItem
	}
	return &it, nil
}

// Validate checks the header invariants from spec.md §3: non-empty id,
// non-empty version, at most two parents, and tombstones carrying no
// body.
func (it *Item) Validate() error {
	if len(it.H.ID) == 0 {
		return perr.ErrMalformedItem
	}
	if len(it.H.V) == 0 {
		return perr.ErrMalformedItem
	}
	if len(it.H.Pa) > MaxParents {
		return perr.ErrMalformedItem
	}
	if it.H.D && len(it.B) != 0 {
		return perr.ErrMalformedItem
	}
	return nil
}
