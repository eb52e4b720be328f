// Package tree implements the Tree component of spec.md §4.1: one
// append-only versioned log per perspective (plus the local and staging
// trees), backed by the four indices described in spec.md §3.
//
// Atomicity and ordering follow spec.md §5: writes into a single Tree are
// serialized by an internal single-writer goroutine (the "task executor"),
// and every index row for one item commits in a single kv.Batch, so a
// crash between batches never leaves a partial item visible.
package tree

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Netsend/persdb/internal/invariant"
	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/perr"
	"github.com/Netsend/persdb/internal/plog"
	"github.com/Netsend/persdb/internal/version"
)

// bufferedWrite is an item submitted to the writer but not yet committed,
// tracked so inBuffer/waitForFlush can answer head-lookup races correctly
// (spec.md §4.1, end-to-end scenario 6).
type bufferedWrite struct {
	it   *item.Item
	done chan error
}

// Tree is one append-only versioned log, per spec.md §4.1.
type Tree struct {
	name  string // the (tree) component of every index key
	store kv.Store
	alloc *version.Allocator
	log   *zap.Logger

	writeCh chan *bufferedWrite
	closeCh chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	buffer   map[string]*item.Item // keyed by id, in-flight writes
	lastI    uint64
	lastV    []byte
	haveLast bool
	closed   bool

	tailMu   sync.Mutex
	tailCond *sync.Cond
}

// Open opens or creates the tree named name (e.g. "l", "stage", or
// "pe/<perspective>") over store, restoring lastI from the byI index's
// tail so a restart resumes the insertion sequence without gaps (spec.md
// §8 P2: "i is strictly increasing per tree and dense... across the
// lifetime of the tree").
func Open(ctx context.Context, name string, store kv.Store, alloc *version.Allocator, log *zap.Logger) (*Tree, error) {
	log = plog.NopIfNil(log)
	t := &Tree{
		name:    name,
		store:   store,
		alloc:   alloc,
		log:     log.With(zap.String("tree", name)),
		writeCh: make(chan *bufferedWrite, 64),
		closeCh: make(chan struct{}),
		buffer:  make(map[string]*item.Item),
	}
	t.tailCond = sync.NewCond(&t.tailMu)

	lastI, lastV, found, err := t.scanLastVersion(ctx)
	if err != nil {
		return nil, err
	}
	t.lastI, t.lastV, t.haveLast = lastI, lastV, found

	t.wg.Add(1)
	go t.writerLoop()
	return t, nil
}

func (t *Tree) scanLastVersion(ctx context.Context) (uint64, []byte, bool, error) {
	it, err := t.store.NewIterator(ctx, kv.ByIPrefix(t.name), true)
	if err != nil {
		return 0, nil, false, err
	}
	defer it.Close()
	if it.Next() {
		kvp := it.Item()
		return decodeI(t.name, kvp.Key), append([]byte(nil), kvp.Value...), true, nil
	}
	return 0, nil, false, it.Err()
}

// Name returns the tree's identifier.
func (t *Tree) Name() string { return t.name }

// Write validates item, assigns i, and writes the version, id and i index
// rows plus the heads update in a single atomic batch (spec.md §4.1
// "write(item)").
func (t *Tree) Write(ctx context.Context, it *item.Item) error {
	if err := it.Validate(); err != nil {
		return err
	}

	bw := &bufferedWrite{it: it, done: make(chan error, 1)}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return perr.ErrClosed
	}
	t.buffer[string(it.H.ID)] = it
	t.mu.Unlock()

	select {
	case t.writeCh <- bw:
	case <-ctx.Done():
		t.removeFromBuffer(it.H.ID, it)
		return ctx.Err()
	case <-t.closeCh:
		t.removeFromBuffer(it.H.ID, it)
		return perr.ErrClosed
	}

	select {
	case err := <-bw.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tree) removeFromBuffer(id []byte, it *item.Item) {
	t.mu.Lock()
	if cur, ok := t.buffer[string(id)]; ok && cur == it {
		delete(t.buffer, string(id))
	}
	t.mu.Unlock()
}

// writerLoop is the single-writer task executor for this tree: every
// commit happens here, serialized, so i assignment and head maintenance
// never race (spec.md §5).
func (t *Tree) writerLoop() {
	defer t.wg.Done()
	for {
		select {
		case bw := <-t.writeCh:
			err := t.commit(bw.it)
			t.removeFromBuffer(bw.it.H.ID, bw.it)
			bw.done <- err
			if err == nil {
				t.tailCond.L.Lock()
				t.tailCond.Broadcast()
				t.tailCond.L.Unlock()
			}
		case <-t.closeCh:
			// Commit whatever is already queued so no Write is left waiting.
			for {
				select {
				case bw := <-t.writeCh:
					err := t.commit(bw.it)
					t.removeFromBuffer(bw.it.H.ID, bw.it)
					bw.done <- err
				default:
					return
				}
			}
		}
	}
}

func (t *Tree) commit(it *item.Item) error {
	ctx := context.Background()

	ok, err := t.store.Has(ctx, kv.VersionKey(t.name, it.H.V))
	if err != nil {
		return perr.ErrStoreIOError
	}
	if ok {
		return perr.ErrDuplicateVersion
	}

	for _, pa := range it.H.Pa {
		present, err := t.store.Has(ctx, kv.VersionKey(t.name, pa))
		if err != nil {
			return perr.ErrStoreIOError
		}
		if !present {
			return perr.ErrMissingParent
		}
	}

	t.mu.Lock()
	i := t.lastI + 1
	prevI := t.lastI
	t.mu.Unlock()

	invariant.PanicIfFalse(i > prevI, "i must strictly increase per tree (spec.md §8 P2)")

	it.H.I = i
	buf, err := item.Encode(it)
	if err != nil {
		return perr.ErrMalformedItem
	}

	batch := t.store.NewBatch()
	batch.Put(kv.VersionKey(t.name, it.H.V), buf)
	batch.Put(kv.ByIDKey(t.name, it.H.ID, i), it.H.V)
	batch.Put(kv.ByIKey(t.name, i), it.H.V)

	// Heads maintenance: every non-root parent is no longer a head; the
	// new version becomes a head of its id (spec.md §8 P3).
	for _, pa := range it.H.Pa {
		batch.Delete(kv.HeadKey(t.name, it.H.ID, pa))
	}
	batch.Put(kv.HeadKey(t.name, it.H.ID, it.H.V), nil)

	if err := batch.Commit(); err != nil {
		return perr.ErrStoreIOError
	}

	t.mu.Lock()
	t.lastI = i
	t.lastV = it.H.V
	t.haveLast = true
	t.mu.Unlock()

	t.log.Debug("wrote item",
		zap.ByteString("id", it.H.ID), zap.ByteString("v", it.H.V), zap.Uint64("i", i))
	return nil
}

// GetByVersion returns the item with the given version, or
// perr.ErrNotFound.
func (t *Tree) GetByVersion(ctx context.Context, v []byte) (*item.Item, error) {
	buf, err := t.store.Get(ctx, kv.VersionKey(t.name, v))
	if err != nil {
		if err == kv.ErrKeyNotFound {
			return nil, perr.ErrNotFound
		}
		return nil, perr.ErrStoreIOError
	}
	return item.Decode(buf)
}

// LastVersion returns the version with the largest i, or nil if the tree
// is empty.
func (t *Tree) LastVersion() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveLast {
		return nil
	}
	return append([]byte(nil), t.lastV...)
}

// InBuffer reports whether a write for id is in flight but not yet
// flushed (spec.md §4.1 "inBuffer(id)").
func (t *Tree) InBuffer(id []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.buffer[string(id)]
	return ok
}

// InBufferByID returns the buffered (not yet committed) item for id, if
// any.
func (t *Tree) InBufferByID(id []byte) (*item.Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.buffer[string(id)]
	return it, ok
}

// flushPollInterval is how often WaitForFlush re-checks the write buffer;
// the total wait is bounded by the timeout its caller passes.
const flushPollInterval = 20 * time.Millisecond

// WaitForFlush blocks until id is no longer present in the write buffer,
// or timeout elapses, cooperating with head lookup to avoid returning a
// stale "not found" answer (spec.md §4.1, §8 P5, scenario 6).
func (t *Tree) WaitForFlush(ctx context.Context, id []byte, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !t.InBuffer(id) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(flushPollInterval):
		}
	}
}

// Close idempotently stops the writer goroutine. Outstanding writes in
// flight are allowed to commit (batches are atomic and never left
// partial); no new writes are accepted afterward.
func (t *Tree) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	close(t.closeCh)
	t.wg.Wait()
	t.tailCond.L.Lock()
	t.tailCond.Broadcast()
	t.tailCond.L.Unlock()
	return nil
}

// Delete bulk-deletes every index entry belonging to this tree (spec.md
// §4.1: "delete(pe) — bulk-deletes a remote tree (used by the rmpe
// tool)").
func (t *Tree) Delete(ctx context.Context) error {
	for _, prefix := range [][]byte{
		[]byte(t.name + string(kv.IndexVersion)),
		[]byte(t.name + string(kv.IndexByID)),
		[]byte(t.name + string(kv.IndexByI)),
		[]byte(t.name + string(kv.IndexHeads)),
		[]byte(t.name + string(kv.IndexMeta)),
	} {
		if err := t.deletePrefix(ctx, prefix); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) deletePrefix(ctx context.Context, prefix []byte) error {
	it, err := t.store.NewIterator(ctx, prefix, false)
	if err != nil {
		return err
	}
	defer it.Close()
	batch := t.store.NewBatch()
	for it.Next() {
		batch.Delete(it.Item().Key)
	}
	if err := it.Err(); err != nil {
		return err
	}
	return batch.Commit()
}

func decodeI(tree string, key []byte) uint64 {
	prefix := []byte(tree + string(kv.IndexByI))
	if len(key) < len(prefix)+8 {
		return 0
	}
	rest := key[len(prefix):]
	var i uint64
	for _, b := range rest[:8] {
		i = i<<8 | uint64(b)
	}
	return i
}
