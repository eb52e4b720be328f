package mergetree

import (
	"context"

	"github.com/Netsend/persdb/internal/item"
	"github.com/Netsend/persdb/internal/perr"
)

// RemoteWriteStream accepts BSON items for one perspective (spec.md §4.2
// "createRemoteWriteStream(pe)").
type RemoteWriteStream struct {
	mt *MergeTree
	pe string
}

// CreateRemoteWriteStream opens a stream for perspective pe. It decodes
// each submitted record, validates item.h.pe == pe, and writes into
// pe_k, back-pressuring on the underlying store (spec.md §4.2).
func (mt *MergeTree) CreateRemoteWriteStream(pe string) (*RemoteWriteStream, error) {
	if mt.closed.Load() {
		return nil, perr.ErrClosed
	}
	if _, _, err := mt.perspectiveTree(pe); err != nil {
		return nil, err
	}
	return &RemoteWriteStream{mt: mt, pe: pe}, nil
}

// Write decodes a single BSON-encoded item and writes it into this
// perspective's tree.
func (rs *RemoteWriteStream) Write(ctx context.Context, raw []byte) error {
	it, err := item.Decode(raw)
	if err != nil {
		return err
	}
	if it.H.Pe != rs.pe {
		return perr.ErrMalformedItem
	}
	t, _, err := rs.mt.perspectiveTree(rs.pe)
	if err != nil {
		return err
	}
	return t.Write(ctx, it)
}

// Close is a no-op: a RemoteWriteStream holds no exclusive resource
// beyond the perspective tree itself, which may accept concurrent remote
// write streams serialized by its own single-writer queue.
func (rs *RemoteWriteStream) Close() error { return nil }

// LocalWriteStream accepts merge-confirmations or locally-authored items
// and writes them into l (spec.md §4.2 "createLocalWriteStream()"). At
// most one may be open at a time.
type LocalWriteStream struct {
	mt *MergeTree
}

// CreateLocalWriteStream opens the single local-write stream. A second
// concurrent attempt, or an attempt while autoMerge is engaged, fails
// immediately (spec.md §4.2, §5, §8 P8).
func (mt *MergeTree) CreateLocalWriteStream() (*LocalWriteStream, error) {
	if mt.closed.Load() {
		return nil, perr.ErrClosed
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.autoMerging {
		return nil, perr.ErrAlreadyAutoMerging
	}
	if mt.localWriterOpen {
		return nil, perr.ErrLocalWriterBusy
	}
	mt.localWriterOpen = true
	return &LocalWriteStream{mt: mt}, nil
}

// Write writes it into the local tree.
func (ls *LocalWriteStream) Write(ctx context.Context, it *item.Item) error {
	return ls.mt.local.Write(ctx, it)
}

// Close releases the single-local-writer slot.
func (ls *LocalWriteStream) Close() error {
	ls.mt.mu.Lock()
	ls.mt.localWriterOpen = false
	ls.mt.mu.Unlock()
	return nil
}
