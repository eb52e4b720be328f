package mergetree

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Netsend/persdb/internal/conflict"
	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/merge"
	"github.com/Netsend/persdb/internal/perr"
	"github.com/Netsend/persdb/internal/tree"
)

// CandidateKind distinguishes the three outcomes of evaluating one remote
// head against the local tree, per spec.md §4.2.
type CandidateKind int

const (
	FastForward CandidateKind = iota
	Merge
	Conflict
)

// MergeCandidate is one outcome of StartMerge (spec.md §4.2). For
// FastForward and Merge, Item is a fully-formed, not-yet-written local
// item; ApplyCandidate writes it into l and records the xref mapping. For
// Conflict, the engine has already written a row to the Conflict Store
// and Item is nil.
type MergeCandidate struct {
	Kind          CandidateKind
	ID            []byte
	Perspective   string
	RemoteVersion []byte
	Item          *item.Item
	ConflictKey   uint64
}

// rawHead is one new remote head read off a perspective tree's tail
// stream, not yet evaluated against the local tree. Evaluation is
// deferred to Next so that candidates for the same id — whether they
// arrive from one perspective's chain or from several — are always
// evaluated against whatever local state the previous candidate's
// ApplyCandidate left behind, rather than racing ahead of it.
type rawHead struct {
	pe string
	it *item.Item
}

// MergeStream is the lazy sequence of MergeCandidate values from spec.md
// §4.2 "startMerge()". Merges for distinct ids may arrive in any order;
// merges for the same id arrive in i order of the remote heads that
// produced them (spec.md §4.3 "Ordering guarantee"). That ordering
// guarantee is what Next's evaluate-at-consume design preserves: see
// Next.
type MergeStream struct {
	mt     *MergeTree
	cancel context.CancelFunc
	out    chan *rawHead
	errCh  chan error
}

// StartMerge returns a MergeStream over every configured perspective: for
// every new head that appears in any pe_k, it is paired with the current
// local head of the same id and evaluated per spec.md §4.3. One goroutine
// per perspective is coordinated with errgroup.Group, the same fan-out
// primitive the teacher's store packages use for concurrent chunk fetches.
// The perspective goroutines only read and buffer raw heads; evaluation
// happens in Next, on the single consumer goroutine, so it always sees
// the local state produced by the previously returned candidate's apply.
func (mt *MergeTree) StartMerge(ctx context.Context) *MergeStream {
	cctx, cancel := context.WithCancel(ctx)
	ms := &MergeStream{mt: mt, cancel: cancel, out: make(chan *rawHead, 32), errCh: make(chan error, 1)}

	g, gctx := errgroup.WithContext(cctx)
	for name, t := range mt.pe {
		name, t := name, t
		g.Go(func() error { return ms.watch(gctx, name, t) })
	}
	go func() {
		if err := g.Wait(); err != nil {
			select {
			case ms.errCh <- err:
			default:
			}
		}
		close(ms.out)
	}()
	return ms
}

func (ms *MergeStream) watch(ctx context.Context, pe string, t *tree.Tree) error {
	rs := t.CreateReadStream(tree.ReadStreamOptions{Tail: true})
	defer rs.Close()
	for {
		it, ok, err := rs.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		select {
		case ms.out <- &rawHead{pe: pe, it: it}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Next pulls the next raw remote head and evaluates it against the
// current local state, or returns ok=false at end of stream (only
// reachable once Close is called, since perspective read streams run in
// tail mode). Evaluation happens here, in the caller's goroutine, rather
// than in the per-perspective producer goroutines: a chained import from
// one perspective (e.g. a root item followed immediately by a child
// naming it as parent, both written before the stream is even started)
// would otherwise let the producer evaluate the child before the
// consumer has applied the root, adopting the child as a spurious second
// root. Evaluating at consume time means the previous candidate this
// same caller returned has already had its chance to be applied before
// the next one is evaluated.
func (ms *MergeStream) Next(ctx context.Context) (*MergeCandidate, bool, error) {
	select {
	case raw, ok := <-ms.out:
		if !ok {
			return nil, false, nil
		}
		cand, err := ms.mt.evaluateCandidate(ctx, raw.pe, raw.it)
		if err != nil {
			ms.cancel()
			return nil, false, err
		}
		return cand, true, nil
	case err := <-ms.errCh:
		return nil, false, err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Close aborts pending work at the next suspension point.
func (ms *MergeStream) Close() error {
	ms.cancel()
	return nil
}

// evaluateCandidate implements the per-head decision of spec.md §4.2/§4.3:
// fast-forward, merge, or conflict. Conflict outcomes are written to the
// Conflict Store here, synchronously, per §4.2 ("do not emit a merged
// item").
func (mt *MergeTree) evaluateCandidate(ctx context.Context, pe string, remoteHead *item.Item) (*MergeCandidate, error) {
	peTree, xr, err := mt.perspectiveTree(pe)
	if err != nil {
		return nil, err
	}

	localHead, err := mt.local.CurrentHead(ctx, remoteHead.H.ID)
	if err != nil {
		return nil, err
	}

	if localHead == nil {
		newV, err := mt.alloc.New()
		if err != nil {
			return nil, err
		}
		newItem := &item.Item{
			H: item.Header{ID: remoteHead.H.ID, V: newV, D: remoteHead.H.D},
			B: remoteHead.B,
			M: remoteHead.M,
		}
		return &MergeCandidate{
			Kind: FastForward, ID: remoteHead.H.ID, Perspective: pe,
			RemoteVersion: remoteHead.H.V, Item: newItem,
		}, nil
	}

	lca, found, err := merge.FindLCA(ctx, mt.local, peTree, localHead.H.V, remoteHead.H.V, xr)
	if err != nil {
		return nil, err
	}

	if !found {
		rec := conflict.Record{
			NewItem: remoteHead, LocalHead: localHead, Perspective: pe,
			Err: "root-vs-root: no common ancestor",
		}
		key, err := mt.conflicts.Put(ctx, rec)
		if err != nil {
			return nil, err
		}
		return &MergeCandidate{Kind: Conflict, ID: remoteHead.H.ID, Perspective: pe, ConflictKey: key}, nil
	}

	if string(lca) == string(localHead.H.V) {
		newV, err := mt.alloc.New()
		if err != nil {
			return nil, err
		}
		newItem := &item.Item{
			H: item.Header{ID: remoteHead.H.ID, V: newV, Pa: [][]byte{localHead.H.V}, D: remoteHead.H.D},
			B: remoteHead.B,
			M: remoteHead.M,
		}
		return &MergeCandidate{
			Kind: FastForward, ID: remoteHead.H.ID, Perspective: pe,
			RemoteVersion: remoteHead.H.V, Item: newItem,
		}, nil
	}

	lcaItem, err := mt.local.GetByVersion(ctx, lca)
	if err != nil {
		return nil, err
	}
	lcaBody, err := lcaItem.DecodeBody()
	if err != nil {
		return nil, err
	}
	localBody, err := localHead.DecodeBody()
	if err != nil {
		return nil, err
	}
	remoteBody, err := remoteHead.DecodeBody()
	if err != nil {
		return nil, err
	}

	outcome := merge.ThreeWay(lcaBody, localBody, remoteBody, localHead.IsTombstone(), remoteHead.IsTombstone())
	if len(outcome.Conflicts) > 0 {
		rec := conflict.Record{
			NewItem: remoteHead, LocalHead: localHead, Perspective: pe,
			LCAs: [][]byte{lca}, Err: conflict.FromFieldConflicts(outcome.Conflicts),
		}
		key, err := mt.conflicts.Put(ctx, rec)
		if err != nil {
			return nil, err
		}
		return &MergeCandidate{Kind: Conflict, ID: remoteHead.H.ID, Perspective: pe, ConflictKey: key}, nil
	}

	bodyRaw, err := item.EncodeBody(outcome.Body)
	if err != nil {
		return nil, err
	}
	newV, err := mt.alloc.New()
	if err != nil {
		return nil, err
	}
	newItem := &item.Item{
		H: item.Header{ID: remoteHead.H.ID, V: newV, Pa: [][]byte{localHead.H.V, remoteHead.H.V}, D: outcome.Tombstone},
		B: bodyRaw,
	}
	if outcome.Tombstone {
		newItem.B = nil
	}
	return &MergeCandidate{
		Kind: Merge, ID: remoteHead.H.ID, Perspective: pe,
		RemoteVersion: remoteHead.H.V, Item: newItem,
	}, nil
}

// ApplyCandidate writes a FastForward/Merge candidate into the local
// tree and records the cross-tree equivalence that makes re-ingesting the
// same remote head a no-op (spec.md §8 P7). It is a no-op for Conflict
// candidates, which are already durable in the Conflict Store.
func (mt *MergeTree) ApplyCandidate(ctx context.Context, c *MergeCandidate) error {
	if c.Kind == Conflict {
		return nil
	}
	if err := mt.local.Write(ctx, c.Item); err != nil {
		return err
	}
	xr, ok := mt.xrefs[c.Perspective]
	if !ok {
		return perr.ErrUnknownPerspective
	}
	return xr.Record(ctx, c.RemoteVersion, c.Item.H.V)
}
