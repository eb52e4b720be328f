package tree

import (
	"bytes"
	"context"

	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/perr"
)

// HeadsOptions configures GetHeads per spec.md §4.1. Ordering when ID is
// given is unspecified — callers that expect a single steady-state head
// assert that at most one is returned.
type HeadsOptions struct {
	ID            []byte // exact id to scan heads of
	Prefix        []byte // return the first head whose id has this prefix
	SkipConflicts bool
	SkipDeletes   bool
	Limit         int // 0 means unlimited
}

// HeadVisitor is called once per matching head. Returning false aborts
// the scan early.
type HeadVisitor func(it *item.Item) bool

// GetHeads yields heads one at a time to visit per spec.md §4.1
// "getHeads({id?, prefix?, skipConflicts, skipDeletes, limit?}, visit,
// done)". done is always called exactly once, after the scan completes or
// aborts, with any error encountered.
func (t *Tree) GetHeads(ctx context.Context, opts HeadsOptions, visit HeadVisitor, done func(error)) {
	err := t.getHeads(ctx, opts, visit)
	done(err)
}

func (t *Tree) getHeads(ctx context.Context, opts HeadsOptions, visit HeadVisitor) error {
	var prefix []byte
	switch {
	case opts.ID != nil:
		prefix = kv.HeadsPrefix(t.name, opts.ID)
	default:
		prefix = kv.HeadsPrefix(t.name, nil)
	}

	it, err := t.store.NewIterator(ctx, prefix, false)
	if err != nil {
		return perr.ErrStoreIOError
	}
	defer it.Close()

	count := 0
	for it.Next() {
		kvp := it.Item()
		id, v, ok := kv.SplitHeadKey(t.name, kvp.Key)
		if !ok {
			continue
		}
		if opts.Prefix != nil && !bytes.HasPrefix(id, opts.Prefix) {
			continue
		}

		head, err := t.GetByVersion(ctx, v)
		if err != nil {
			if err == perr.ErrNotFound {
				continue
			}
			return err
		}
		if opts.SkipConflicts && head.IsConflictMarker() {
			continue
		}
		if opts.SkipDeletes && head.IsTombstone() {
			continue
		}

		if opts.Prefix != nil {
			// "returns the first head whose id has that prefix"
			visit(head)
			return it.Err()
		}

		if !visit(head) {
			return it.Err()
		}
		count++
		if opts.Limit > 0 && count >= opts.Limit {
			return it.Err()
		}
	}
	return it.Err()
}

// CurrentHead returns the single non-conflict head of id (deleted or not),
// nil if none exists, or perr.ErrHeadAmbiguous if more than one exists.
// Unlike SingleHead, it does not filter out tombstones: the merge engine
// needs the true current state of id, including a pending delete.
func (t *Tree) CurrentHead(ctx context.Context, id []byte) (*item.Item, error) {
	var found *item.Item
	var ambiguous error
	err := t.getHeads(ctx, HeadsOptions{ID: id, SkipConflicts: true}, func(it *item.Item) bool {
		if found != nil {
			ambiguous = perr.ErrHeadAmbiguous
			return false
		}
		found = it
		return true
	})
	if ambiguous != nil {
		return nil, ambiguous
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}

// SingleHead returns the single non-conflict, non-deleted head of id, nil
// if none exists, or perr.ErrHeadAmbiguous if more than one exists
// (spec.md §3 "at most one non-conflict, non-deleted head per id in
// steady state"; §9 Open Question resolved: treat a second non-conflict
// head as HeadAmbiguous).
func (t *Tree) SingleHead(ctx context.Context, id []byte) (*item.Item, error) {
	var found *item.Item
	var ambiguous error
	err := t.getHeads(ctx, HeadsOptions{ID: id, SkipConflicts: true, SkipDeletes: true}, func(it *item.Item) bool {
		if found != nil {
			ambiguous = perr.ErrHeadAmbiguous
			return false
		}
		found = it
		return true
	})
	if ambiguous != nil {
		return nil, ambiguous
	}
	if err != nil {
		return nil, err
	}
	return found, nil
}
