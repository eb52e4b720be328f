package mergetree

import (
	"context"
	"sync"

	"github.com/Netsend/persdb/internal/kv"
)

// xref is the cross-tree equivalence relation from spec.md §4.3 step 1:
// "a remote v equals a local v iff they represent the same content (the
// engine re-stamps on adoption, so this equivalence is recorded in a
// side-table meta.remoteToLocal)". It is a many-to-one relation indexed
// by remote v (DESIGN NOTES §9), persisted as meta keys under a
// per-perspective "xref/<pe>" namespace so a restart doesn't forget prior
// fast-forward adoptions (needed for P7's idempotency across restarts).
type xref struct {
	kv kv.Store
	pe string // perspective this table tracks

	mu    sync.RWMutex
	cache map[string][]byte // remote v -> local v
}

func newXref(kvStore kv.Store, pe string) *xref {
	return &xref{kv: kvStore, pe: pe, cache: make(map[string][]byte)}
}

// LocalFor implements merge.Equivalence.
func (x *xref) LocalFor(remoteV []byte) ([]byte, bool) {
	x.mu.RLock()
	if lv, ok := x.cache[string(remoteV)]; ok {
		x.mu.RUnlock()
		return lv, true
	}
	x.mu.RUnlock()

	buf, err := x.kv.Get(context.Background(), x.key(remoteV))
	if err != nil {
		return nil, false
	}
	x.mu.Lock()
	x.cache[string(remoteV)] = buf
	x.mu.Unlock()
	return buf, true
}

// Record persists the equivalence remoteV -> localV immediately after the
// merge/fast-forward write that created it commits (spec.md §5:
// "Cross-perspective state... is updated in the same batch that ingests a
// remote item or that emits a merge"; this implementation writes it as an
// immediately-following, not strictly same-batch, update — see DESIGN.md
// for the tradeoff).
func (x *xref) Record(ctx context.Context, remoteV, localV []byte) error {
	batch := x.kv.NewBatch()
	batch.Put(x.key(remoteV), localV)
	if err := batch.Commit(); err != nil {
		return err
	}
	x.mu.Lock()
	x.cache[string(remoteV)] = append([]byte(nil), localV...)
	x.mu.Unlock()
	return nil
}

func (x *xref) key(remoteV []byte) []byte {
	return kv.MetaKey("xref/"+x.pe, string(remoteV))
}
