// Package conflict implements the Conflict Store of spec.md §4.4: a
// durable append-only queue of unresolved merges keyed by an
// auto-increment integer.
package conflict

import (
	"context"
	"encoding/binary"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/merge"
	"github.com/Netsend/persdb/internal/perr"
)

// treeName namespaces the conflict store's keys within the shared kv
// store, the same way each Tree namespaces its own index keys.
const treeName = "conflict"

const seqMetaKey = "seq"

// Record is one row of the Conflict Store, exactly the fields in spec.md
// §4.4: "{n: newItem, l: localHead|null, c: mergeAttempt|null, lcas:
// [v...], pe: remoteName, err: reason}".
type Record struct {
	Key          uint64     `bson:"key"`
	NewItem      *item.Item `bson:"n"`
	LocalHead    *item.Item `bson:"l,omitempty"`
	MergeAttempt *item.Item `bson:"c,omitempty"`
	LCAs         [][]byte   `bson:"lcas,omitempty"`
	Perspective  string     `bson:"pe"`
	Err          string     `bson:"err"`
}

// FromFieldConflicts renders merge.FieldConflict details into the human
// readable Err string scenario 4 in spec.md §8 expects ("one conflict row
// with err describing field a").
func FromFieldConflicts(cs []merge.FieldConflict) string {
	if len(cs) == 0 {
		return "conflict"
	}
	s := "conflicting fields:"
	for _, c := range cs {
		s += " " + c.Field
	}
	return s
}

// Store is the durable conflict queue.
type Store struct {
	kv kv.Store
}

// Open constructs a Store over kv.
func Open(kvStore kv.Store) *Store {
	return &Store{kv: kvStore}
}

// Put appends a new conflict row and returns its key, the next
// auto-increment integer.
func (s *Store) Put(ctx context.Context, rec Record) (uint64, error) {
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return 0, err
	}
	rec.Key = seq

	buf, err := bson.Marshal(rec)
	if err != nil {
		return 0, perr.ErrMalformedItem
	}

	batch := s.kv.NewBatch()
	batch.Put(recordKey(seq), buf)
	batch.Put(kv.MetaKey(treeName, seqMetaKey), encodeSeq(seq))
	if err := batch.Commit(); err != nil {
		return 0, perr.ErrStoreIOError
	}
	return seq, nil
}

// Get fetches a single conflict row by key.
func (s *Store) Get(ctx context.Context, key uint64) (Record, error) {
	buf, err := s.kv.Get(ctx, recordKey(key))
	if err != nil {
		if err == kv.ErrKeyNotFound {
			return Record{}, perr.ErrNotFound
		}
		return Record{}, perr.ErrStoreIOError
	}
	var rec Record
	if err := bson.Unmarshal(buf, &rec); err != nil {
		return Record{}, perr.ErrMalformedItem
	}
	return rec, nil
}

// ConflictVisitor is called once per conflict row during Iterate.
type ConflictVisitor func(Record) bool

// Iterate yields every conflict row, in key order, to visit.
func (s *Store) Iterate(ctx context.Context, visit ConflictVisitor, done func(error)) {
	it, err := s.kv.NewIterator(ctx, recordPrefix(), false)
	if err != nil {
		done(perr.ErrStoreIOError)
		return
	}
	defer it.Close()
	for it.Next() {
		var rec Record
		if err := bson.Unmarshal(it.Item().Value, &rec); err != nil {
			continue
		}
		if !visit(rec) {
			break
		}
	}
	done(it.Err())
}

// Resolve deletes the conflict row key. It does not write any outcome
// itself: MergeTree.ResolveConflict writes the chosen item into l before
// calling it (spec.md §4.4).
func (s *Store) Resolve(ctx context.Context, key uint64) error {
	batch := s.kv.NewBatch()
	batch.Delete(recordKey(key))
	if err := batch.Commit(); err != nil {
		return perr.ErrStoreIOError
	}
	return nil
}

func (s *Store) nextSeq(ctx context.Context) (uint64, error) {
	buf, err := s.kv.Get(ctx, kv.MetaKey(treeName, seqMetaKey))
	if err != nil {
		if err == kv.ErrKeyNotFound {
			return 1, nil
		}
		return 0, perr.ErrStoreIOError
	}
	return decodeSeq(buf) + 1, nil
}

func recordKey(key uint64) []byte {
	buf := []byte(treeName + "c")
	var kb [8]byte
	binary.BigEndian.PutUint64(kb[:], key)
	return append(buf, kb[:]...)
}

func recordPrefix() []byte {
	return []byte(treeName + "c")
}

func encodeSeq(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeSeq(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
