package wal

import (
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/logger"
)

// PageWriter is the destination of a checkpoint, normally the main file.
type PageWriter interface {
	Write(id file.PageID, buf []byte) error
	Sync() error
}

// CheckpointResult describes what a checkpoint did.
type CheckpointResult struct {
	// Frames is the number of frames removed from the index.
	Frames int
	// Pages is the number of pages written into the main file.
	Pages []file.PageID
	// Reset is true when the log was emptied.
	Reset bool
	// BackfilledSeq is the seq up to which the main file is now current.
	BackfilledSeq uint64
}

type backfill struct {
	pageID file.PageID
	ref    frameRef
}

// Checkpoint copies, for every page, the newest frame no open snapshot could
// miss into dst, in page order, and syncs dst. Frames it copied are removed
// from the index. When nothing is left in the log it is truncated and
// restarted. Readers are never blocked except for the short index update.
func (w *WAL) Checkpoint(dst PageWriter) (CheckpointResult, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	upto := w.safeSeq()
	from := w.backfilled.Load()
	var work []backfill
	for pageID := range w.frames {
		if ref, ok := w.find(pageID, upto); ok && ref.seq > from {
			work = append(work, backfill{pageID: pageID, ref: ref})
		}
	}
	prevState := w.state
	w.state = Checkpointing
	w.mu.Unlock()

	sort.Slice(work, func(i, j int) bool {
		return work[i].pageID < work[j].pageID
	})

	result := CheckpointResult{BackfilledSeq: from}
	buf := make([]byte, w.pageSize)
	for _, b := range work {
		err := w.readFrame(b.pageID, b.ref, buf, true)
		if err == nil {
			err = dst.Write(b.pageID, buf)
		}
		if err != nil {
			w.restoreState(prevState)
			return result, err
		}
		result.Pages = append(result.Pages, b.pageID)
	}
	if len(work) > 0 {
		if err := dst.Sync(); err != nil {
			w.restoreState(prevState)
			return result, err
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for pageID, refs := range w.frames {
		keep := refs[:0]
		for _, ref := range refs {
			if ref.seq > upto {
				keep = append(keep, ref)
			}
		}
		result.Frames += len(refs) - len(keep)
		if len(keep) == 0 {
			delete(w.frames, pageID)
		} else {
			w.frames[pageID] = keep
		}
	}
	w.frameCount -= result.Frames
	if upto > from {
		w.backfilled.Store(upto)
	}
	result.BackfilledSeq = w.backfilled.Load()

	walSize := w.tail
	if w.frameCount == 0 && w.tail == w.size {
		if err := w.reset(w.lastCommitted); err != nil {
			w.setState()
			return result, err
		}
		result.Reset = true
	} else {
		w.setState()
	}
	w.metrics.Checkpointed(len(result.Pages))
	w.metrics.SetWALFrames(w.frameCount)

	w.log.InfoNs(logger.NsCheckpoint, "checkpoint finished", logger.KV{
		"frames":     result.Frames,
		"pages":      len(result.Pages),
		"backfilled": result.BackfilledSeq,
		"reset":      result.Reset,
		"walSize":    humanize.Bytes(uint64(walSize)),
	})
	return result, nil
}

func (w *WAL) restoreState(state State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}
