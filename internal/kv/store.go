package kv

import (
	"context"

	"github.com/pkg/errors"
)

// KV is a single key/value pair returned from an iteration.
type KV struct {
	Key   []byte
	Value []byte
}

// Batch accumulates a set of writes that commit atomically (spec.md §4.1:
// "all index rows for a single item are written in one batch").
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	// Commit flushes the batch. A crash or error before Commit returns
	// leaves no partial effect visible to subsequent reads.
	Commit() error
}

// Iterator walks keys in a store in ascending lexicographic order,
// optionally restricted to a prefix.
type Iterator interface {
	// Next advances the iterator and reports whether a value is
	// available. It blocks on I/O but never on application logic.
	Next() bool
	Item() KV
	Err() error
	Close() error
}

// Store is the ordered byte-key/byte-value abstraction every Tree is
// built on (spec.md §4.1, component 1). The production implementation
// wraps Badger, an embedded LSM engine.
type Store interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Has(ctx context.Context, key []byte) (bool, error)
	NewBatch() Batch
	// NewIterator returns an Iterator over keys sharing prefix, in
	// ascending order. reverse scans ascending keys in descending order
	// instead, used by the merge algorithm's reverse-i ancestor walk.
	NewIterator(ctx context.Context, prefix []byte, reverse bool) (Iterator, error)
	Close() error
}

// ErrKeyNotFound is returned by Get when key is absent.
var ErrKeyNotFound = errors.New("persdb/kv: key not found")
