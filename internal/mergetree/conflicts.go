package mergetree

import (
	"context"

	"github.com/Netsend/persdb/internal/conflict"
	"github.com/Netsend/persdb/internal/item"
)

// GetConflicts iterates every conflict row (spec.md §4.2
// "getConflicts(visitor, done)").
func (mt *MergeTree) GetConflicts(ctx context.Context, visit func(conflict.Record) bool, done func(error)) {
	mt.conflicts.Iterate(ctx, visit, done)
}

// GetConflict fetches a single conflict row by key (spec.md §4.2
// "getConflict(key)").
func (mt *MergeTree) GetConflict(ctx context.Context, key uint64) (conflict.Record, error) {
	return mt.conflicts.Get(ctx, key)
}

// ResolveConflict writes resolution into the local tree and clears the
// conflict row (spec.md §4.2 "resolveConflict(key, resolution)", §4.4).
func (mt *MergeTree) ResolveConflict(ctx context.Context, key uint64, resolution *item.Item) error {
	if resolution != nil {
		if err := mt.local.Write(ctx, resolution); err != nil {
			return err
		}
	}
	return mt.conflicts.Resolve(ctx, key)
}
