package tree

import (
	"context"

	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/kv"
	"github.com/Netsend/persdb/internal/perr"
)

// ReadStreamOptions configures CreateReadStream per spec.md §4.1.
type ReadStreamOptions struct {
	// Since restarts the stream after this insertion sequence number
	// (exclusive), or at it when IncludeOffset is set.
	Since         uint64
	IncludeOffset bool
	// Tail makes the stream infinite: after draining available items it
	// re-checks for new ones rather than terminating.
	Tail bool
}

// ReadStream is a lazy, restartable sequence of items in i order (spec.md
// §4.1 "createReadStream"). It is finite unless opened in tail mode.
type ReadStream struct {
	t      *Tree
	opts   ReadStreamOptions
	nextI  uint64
	closed chan struct{}
}

// CreateReadStream opens a ReadStream starting after opts.Since (or
// including it, per opts.IncludeOffset).
func (t *Tree) CreateReadStream(opts ReadStreamOptions) *ReadStream {
	start := opts.Since
	if !opts.IncludeOffset {
		start++
	}
	return &ReadStream{t: t, opts: opts, nextI: start, closed: make(chan struct{})}
}

// Next returns the next item in i order, blocking (in tail mode) until
// one becomes available or the stream is closed. ok is false at
// end-of-stream (non-tail mode) or after Close.
func (rs *ReadStream) Next(ctx context.Context) (it *item.Item, ok bool, err error) {
	for {
		v, err := rs.t.store.Get(ctx, kv.ByIKey(rs.t.name, rs.nextI))
		if err == nil {
			out, derr := rs.t.GetByVersion(ctx, v)
			if derr != nil {
				return nil, false, derr
			}
			rs.nextI++
			return out, true, nil
		}
		if err != kv.ErrKeyNotFound {
			return nil, false, perr.ErrStoreIOError
		}

		if !rs.opts.Tail {
			return nil, false, nil
		}

		if !rs.waitForMore(ctx) {
			return nil, false, nil
		}
	}
}

// waitForMore blocks until the tree commits another item, the stream is
// closed, or ctx is done.
func (rs *ReadStream) waitForMore(ctx context.Context) bool {
	t := rs.t
	t.tailCond.L.Lock()
	defer t.tailCond.L.Unlock()

	for {
		select {
		case <-rs.closed:
			return false
		case <-ctx.Done():
			return false
		default:
		}

		t.mu.Lock()
		haveMore := t.haveLast && t.lastI >= rs.nextI
		closedTree := t.closed
		t.mu.Unlock()
		if haveMore {
			return true
		}
		if closedTree {
			return false
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-rs.closed:
			case <-ctx.Done():
			case <-done:
			}
			t.tailCond.L.Lock()
			t.tailCond.Broadcast()
			t.tailCond.L.Unlock()
		}()
		t.tailCond.Wait()
		close(done)
	}
}

// Close aborts pending work at the next suspension point (spec.md §5
// Cancellation).
func (rs *ReadStream) Close() error {
	select {
	case <-rs.closed:
	default:
		close(rs.closed)
	}
	return nil
}
