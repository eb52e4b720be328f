// Package mergetree implements the MergeTree of spec.md §4.2: owns the
// local tree, staging tree, and one tree per configured perspective, and
// exposes the local-write stream, remote-write streams, merge stream,
// conflict store, and head lookup that lift remote histories into the
// local history.
package mergetree

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/Netsend/persdb/internal/conflict"
	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/perr"
	"github.com/Netsend/persdb/internal/plog"
	"github.com/Netsend/persdb/internal/tree"
	"github.com/Netsend/persdb/internal/version"
)

const (
	localTreeName = "l"
	stageTreeName = "stage"
)

func perspectiveTreeName(pe string) string { return "pe/" + pe }

// Config configures a MergeTree: the set of perspective names it owns a
// tree for, and the version identifier size (spec.md §6 mergeTree.vSize).
type Config struct {
	Perspectives []string
	VSize        int
}

// MergeTree owns the local tree l, the staging tree stage, and one tree
// per configured perspective (spec.md §4.2).
type MergeTree struct {
	store kv.Store
	alloc *version.Allocator
	log   *zap.Logger

	local *tree.Tree
	stage *tree.Tree
	pe    map[string]*tree.Tree
	xrefs map[string]*xref

	conflicts *conflict.Store

	mu              sync.Mutex
	localWriterOpen bool
	autoMerging     bool
	autoMergeCancel context.CancelFunc

	closed atomic.Bool
}

// Open constructs a MergeTree over store with one tree per entry in
// cfg.Perspectives, plus the local and staging trees.
func Open(ctx context.Context, store kv.Store, cfg Config, log *zap.Logger) (*MergeTree, error) {
	log = plog.NopIfNil(log)
	alloc := version.New(cfg.VSize, log)

	local, err := tree.Open(ctx, localTreeName, store, alloc, log)
	if err != nil {
		return nil, err
	}
	stage, err := tree.Open(ctx, stageTreeName, store, alloc, log)
	if err != nil {
		return nil, err
	}

	mt := &MergeTree{
		store:     store,
		alloc:     alloc,
		log:       log,
		local:     local,
		stage:     stage,
		pe:        make(map[string]*tree.Tree),
		xrefs:     make(map[string]*xref),
		conflicts: conflict.Open(store),
	}

	for _, name := range cfg.Perspectives {
		t, err := tree.Open(ctx, perspectiveTreeName(name), store, alloc, log)
		if err != nil {
			mt.Close()
			return nil, err
		}
		mt.pe[name] = t
		mt.xrefs[name] = newXref(store, name)
	}

	return mt, nil
}

// perspectiveTree returns the tree for pe, or perr.ErrUnknownPerspective.
func (mt *MergeTree) perspectiveTree(pe string) (*tree.Tree, *xref, error) {
	t, ok := mt.pe[pe]
	if !ok {
		return nil, nil, perr.ErrUnknownPerspective
	}
	return t, mt.xrefs[pe], nil
}

// HeadLookupOptions mirrors the external head-lookup request shape
// (spec.md §6): exactly one of ID or PrefixExists is set.
type HeadLookupOptions struct {
	ID           []byte
	PrefixExists []byte
}

// HeadLookup performs a single-item lookup over l only, used by external
// adapters to fetch the last known local state (spec.md §4.2
// "headLookup"). It waits out the local tree's write buffer before
// concluding an id is absent, implementing P5/scenario 6 from spec.md §8.
func (mt *MergeTree) HeadLookup(ctx context.Context, opts HeadLookupOptions) (*item.Item, error) {
	if mt.closed.Load() {
		return nil, perr.ErrClosed
	}

	if opts.ID != nil {
		if mt.local.InBuffer(opts.ID) {
			mt.local.WaitForFlush(ctx, opts.ID, 150*time.Millisecond) // comfortably above the ~100ms spec.md target
		}
		return mt.local.SingleHead(ctx, opts.ID)
	}

	var found *item.Item
	mt.local.GetHeads(ctx, tree.HeadsOptions{Prefix: opts.PrefixExists, SkipConflicts: true, SkipDeletes: true}, func(it *item.Item) bool {
		found = it
		return false
	}, func(error) {})
	return found, nil
}

// Stats reports item and head counts per tree and the total number of
// conflict rows (spec.md §4.2 "stats()").
type Stats struct {
	Local        TreeStats
	Staging      TreeStats
	Perspectives map[string]TreeStats
	Conflicts    int
}

// TreeStats reports the basic counters for one tree.
type TreeStats struct {
	Items int
	Heads int
}

// String renders a TreeStats with humanized counters, for the SIGUSR2
// dump-stats log line (spec.md §6).
func (ts TreeStats) String() string {
	return fmt.Sprintf("%s items, %s heads", humanize.Comma(int64(ts.Items)), humanize.Comma(int64(ts.Heads)))
}

// Close drains writers, then closes the underlying store (spec.md §4.2
// "close()"). Idempotent.
func (mt *MergeTree) Close() error {
	if !mt.closed.CompareAndSwap(false, true) {
		return nil
	}

	mt.mu.Lock()
	if mt.autoMergeCancel != nil {
		mt.autoMergeCancel()
	}
	mt.mu.Unlock()

	mt.local.Close()
	mt.stage.Close()
	for _, t := range mt.pe {
		t.Close()
	}
	return mt.store.Close()
}
