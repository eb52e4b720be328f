package mergetree

import (
	"context"

	"github.com/Netsend/persdb/internal/conflict"
	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/tree"
)

// ComputeStats scans each tree's indices to report the counters of
// spec.md §4.2 stats(): items and heads per tree, plus the total number
// of conflict rows. Intended
// for the SIGUSR2 dump-stats path (spec.md §6), not a request-path
// operation.
func (mt *MergeTree) ComputeStats(ctx context.Context) (Stats, error) {
	s := Stats{Perspectives: make(map[string]TreeStats, len(mt.pe))}

	var err error
	if s.Local, err = treeStats(ctx, mt.local); err != nil {
		return Stats{}, err
	}
	if s.Staging, err = treeStats(ctx, mt.stage); err != nil {
		return Stats{}, err
	}
	for name, t := range mt.pe {
		ts, err := treeStats(ctx, t)
		if err != nil {
			return Stats{}, err
		}
		s.Perspectives[name] = ts
	}

	n := 0
	var iterErr error
	mt.conflicts.Iterate(ctx, func(_ conflict.Record) bool { n++; return true }, func(e error) { iterErr = e })
	if iterErr != nil {
		return Stats{}, iterErr
	}
	s.Conflicts = n
	return s, nil
}

func treeStats(ctx context.Context, t *tree.Tree) (TreeStats, error) {
	items := 0
	rs := t.CreateReadStream(tree.ReadStreamOptions{})
	for {
		_, ok, err := rs.Next(ctx)
		if err != nil {
			return TreeStats{}, err
		}
		if !ok {
			break
		}
		items++
	}

	heads := 0
	var visitErr error
	t.GetHeads(ctx, tree.HeadsOptions{}, func(_ *item.Item) bool { heads++; return true }, func(e error) { visitErr = e })
	if visitErr != nil {
		return TreeStats{}, visitErr
	}

	return TreeStats{Items: items, Heads: heads}, nil
}
