// Package oplog implements the Oplog Transform external adapter of
// spec.md §4.5: it observes a foreign (MongoDB-style) change log and
// emits canonical items, materializing update-modifier records via a
// request/response head-lookup channel. Grounded on the append-log/
// Logstore shape of other_examples' qri-io-qri logbook/oplog package,
// adapted from qri's op-log authorship model to a four-verb change feed.
package oplog

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/perr"
	"github.com/Netsend/persdb/internal/version"
)

// nowhere discards logrus output when Transform is called without a
// logger, the same role zap.NewNop plays for the core's loggers.
type nowhere struct{}

func (nowhere) Write(p []byte) (int, error) { return len(p), nil }

// Op names the four change-feed verbs spec.md §4.5 lists.
type Op string

const (
	OpInsert         Op = "insert"
	OpUpdateFullDoc  Op = "update-full-doc"
	OpUpdateModifier Op = "update-modifier"
	OpDelete         Op = "delete"
)

// ChangeRecord is one entry from the foreign change log. Doc carries the
// full document for insert/update-full-doc; Modifier carries a partial
// update for update-modifier; neither is set for delete.
type ChangeRecord struct {
	Op        Op
	ID        []byte
	Doc       bson.Raw
	Modifier  bson.Raw
	Meta      map[string]interface{}
	Timestamp int64 // source oplog timestamp, carried into Item.M
}

// HeadLookupFunc models the request/response channel pair of spec.md
// §4.5: the adapter writes an LDJSON {id} request and awaits a BSON item
// in response. Here that round trip is a plain function call — the
// framing itself belongs to the out-of-scope networking layer.
type HeadLookupFunc func(ctx context.Context, id []byte) (*item.Item, bool, error)

// Transform converts one ChangeRecord into a canonical Item. It performs
// no mutation of rec (side-effect-free on input records, per spec.md
// §4.5). log is a subsystem-local logger, separate from the core's
// zap-based logging, matching the teacher's use of a lighter logrus
// logger for its own external-adapter-style CLI tools.
func Transform(ctx context.Context, rec ChangeRecord, lookup HeadLookupFunc, alloc *version.Allocator, log *logrus.Logger) (*item.Item, error) {
	if log == nil {
		log = logrus.New()
		log.SetOutput(nowhere{})
	}

	v, err := alloc.New()
	if err != nil {
		return nil, err
	}

	opID := uuid.New()
	log.WithFields(logrus.Fields{"op": rec.Op, "opId": opID, "id": string(rec.ID)}).Debug("transforming oplog record")

	meta := map[string]interface{}{}
	for k, val := range rec.Meta {
		meta[k] = val
	}
	if rec.Timestamp != 0 {
		meta["oplogTs"] = rec.Timestamp
	}
	meta["opId"] = opID.String()

	switch rec.Op {
	case OpInsert:
		return &item.Item{
			H: item.Header{ID: rec.ID, V: v},
			B: rec.Doc,
			M: meta,
		}, nil

	case OpUpdateFullDoc:
		prev, found, err := lookup(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		var pa [][]byte
		if found {
			pa = [][]byte{prev.H.V}
		}
		return &item.Item{
			H: item.Header{ID: rec.ID, V: v, Pa: pa},
			B: rec.Doc,
			M: meta,
		}, nil

	case OpUpdateModifier:
		prev, found, err := lookup(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, perr.ErrPreviousVersionNotFound
		}
		merged, err := applyModifier(prev, rec.Modifier)
		if err != nil {
			return nil, err
		}
		return &item.Item{
			H: item.Header{ID: rec.ID, V: v, Pa: [][]byte{prev.H.V}},
			B: merged,
			M: meta,
		}, nil

	case OpDelete:
		prev, found, err := lookup(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		var pa [][]byte
		if found {
			pa = [][]byte{prev.H.V}
		}
		return &item.Item{
			H: item.Header{ID: rec.ID, V: v, Pa: pa, D: true},
			M: meta,
		}, nil

	default:
		return nil, perr.ErrMalformedItem
	}
}

// applyModifier materializes the pre-state (prev) updated by a partial
// modifier document, producing a full body, per spec.md §4.5: "For
// update-modifier it must materialize the pre-state". The modifier's
// top-level fields overwrite prev's; this mirrors the shallow
// per-top-level-field resolution the three-way merge uses elsewhere
// (DESIGN.md Open Question).
func applyModifier(prev *item.Item, modifier bson.Raw) (bson.Raw, error) {
	prevBody, err := prev.DecodeBody()
	if err != nil {
		return nil, err
	}
	var patch item.Body
	if len(modifier) > 0 {
		if err := bson.Unmarshal(modifier, &patch); err != nil {
			return nil, perr.ErrMalformedItem
		}
	}
	merged := item.Body{}
	for k, v := range prevBody {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return item.EncodeBody(merged)
}
