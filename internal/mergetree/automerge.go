package mergetree

import (
	"context"

	"go.uber.org/zap"

	"github.com/Netsend/persdb/internal/perr"
)

// EngageAutoMerge pipes the merge stream's FastForward/Merge candidates
// directly into the local writer (spec.md §4.2, §5's ordering guarantee:
// "either autoMerge is engaged... or an external local writer is present
// — never both"). It fails with ErrLocalWriterBusy if an external local
// writer is currently attached.
func (mt *MergeTree) EngageAutoMerge(ctx context.Context) error {
	if mt.closed.Load() {
		return perr.ErrClosed
	}

	mt.mu.Lock()
	if mt.localWriterOpen {
		mt.mu.Unlock()
		return perr.ErrLocalWriterBusy
	}
	if mt.autoMerging {
		mt.mu.Unlock()
		return perr.ErrAlreadyAutoMerging
	}
	mt.autoMerging = true
	cctx, cancel := context.WithCancel(ctx)
	mt.autoMergeCancel = cancel
	mt.mu.Unlock()

	ms := mt.StartMerge(cctx)
	go func() {
		for {
			cand, ok, err := ms.Next(cctx)
			if err != nil || !ok {
				return
			}
			if cand.Kind == Conflict {
				continue
			}
			if err := mt.ApplyCandidate(cctx, cand); err != nil {
				mt.log.Warn("auto-merge apply failed", zap.Error(err))
			}
		}
	}()
	return nil
}

// DisengageAutoMerge stops the auto-merge goroutine started by
// EngageAutoMerge.
func (mt *MergeTree) DisengageAutoMerge() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if !mt.autoMerging {
		return
	}
	mt.autoMerging = false
	if mt.autoMergeCancel != nil {
		mt.autoMergeCancel()
		mt.autoMergeCancel = nil
	}
}
