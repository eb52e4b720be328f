// Package merge implements the Merge Algorithm of spec.md §4.3: LCA
// discovery across an append-only log and the three-way body merge.
package merge

import (
	"container/heap"
	"context"

	"github.com/Netsend/persdb/internal/item"
)

// AncestorSource looks up items by version, the minimal capability the
// LCA walk needs from a Tree.
type AncestorSource interface {
	GetByVersion(ctx context.Context, v []byte) (*item.Item, error)
}

// Equivalence answers whether a remote version is known to correspond to
// a local version, i.e. the remoteToLocal side-table from spec.md §4.3
// step 1 ("a remote v equals a local v iff they represent the same
// content... recorded in a side-table meta.remoteToLocal").
type Equivalence interface {
	LocalFor(remoteV []byte) (localV []byte, ok bool)
}

type frontierEntry struct {
	local bool
	v     []byte
	i     uint64
}

// frontierHeap is a max-heap on i: the LCA walk always expands the
// highest-i (most recent) unvisited node next, mirroring a reverse
// topological walk of the DAG.
type frontierHeap []frontierEntry

func (h frontierHeap) Len() int            { return len(h) }
func (h frontierHeap) Less(i, j int) bool  { return h[i].i > h[j].i }
func (h frontierHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *frontierHeap) Push(x interface{}) { *h = append(*h, x.(frontierEntry)) }
func (h *frontierHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// FindLCA walks ancestors of remoteHead in remote and of localHead in
// local in reverse-i order, collecting versions into two frontiers, per
// spec.md §4.3 step 1. The first version observed in both frontiers
// (under eq's remote/local equivalence) is the LCA. found is false when
// remoteHead introduces a new root for the id: a missing LCA.
func FindLCA(ctx context.Context, local, remote AncestorSource, localHead, remoteHead []byte, eq Equivalence) (lca []byte, found bool, err error) {
	if localHead == nil {
		return nil, false, nil
	}

	localVisited := make(map[string]uint64)  // local v -> i
	remoteVisited := make(map[string]uint64) // remote v -> i

	h := &frontierHeap{}
	heap.Init(h)

	li, err := headI(ctx, local, localHead)
	if err != nil {
		return nil, false, err
	}
	heap.Push(h, frontierEntry{local: true, v: localHead, i: li})
	localVisited[string(localHead)] = li

	ri, err := headI(ctx, remote, remoteHead)
	if err != nil {
		return nil, false, err
	}
	heap.Push(h, frontierEntry{local: false, v: remoteHead, i: ri})
	remoteVisited[string(remoteHead)] = ri

	// The head itself may already be the LCA (remote re-ingesting an
	// already-adopted version, spec.md §8 P7).
	if lv, ok := eq.LocalFor(remoteHead); ok && string(lv) == string(localHead) {
		return localHead, true, nil
	}

	for h.Len() > 0 {
		e := heap.Pop(h).(frontierEntry)

		var src AncestorSource
		if e.local {
			src = local
		} else {
			src = remote
		}
		cur, err := src.GetByVersion(ctx, e.v)
		if err != nil {
			return nil, false, err
		}

		for _, pa := range cur.H.Pa {
			pi, err := headI(ctx, src, pa)
			if err != nil {
				return nil, false, err
			}

			if e.local {
				if _, seen := localVisited[string(pa)]; seen {
					continue
				}
				localVisited[string(pa)] = pi
				if lv, ok := remoteEquivSeen(remoteVisited, eq, pa); ok {
					return lv, true, nil
				}
			} else {
				if _, seen := remoteVisited[string(pa)]; seen {
					continue
				}
				remoteVisited[string(pa)] = pi
				if lv, ok := eq.LocalFor(pa); ok {
					if _, seen := localVisited[string(lv)]; seen {
						return lv, true, nil
					}
				}
			}
			heap.Push(h, frontierEntry{local: e.local, v: pa, i: pi})
		}
	}

	return nil, false, nil
}

// remoteEquivSeen checks, for a newly visited local version lv, whether
// any already-visited remote version maps (via eq) onto lv.
func remoteEquivSeen(remoteVisited map[string]uint64, eq Equivalence, lv []byte) ([]byte, bool) {
	for rvStr := range remoteVisited {
		if mapped, ok := eq.LocalFor([]byte(rvStr)); ok && string(mapped) == string(lv) {
			return lv, true
		}
	}
	return nil, false
}

func headI(ctx context.Context, src AncestorSource, v []byte) (uint64, error) {
	it, err := src.GetByVersion(ctx, v)
	if err != nil {
		return 0, err
	}
	return it.H.I, nil
}
