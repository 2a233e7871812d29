package wal

import (
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/logger"
)

// Spill appends an uncommitted frame for pageID. It is used when the page
// cache has to evict a page the writer modified. The frame becomes visible
// to readers only when the transaction commits, and is dropped by Discard.
func (w *WAL) Spill(pageID file.PageID, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	buf := make([]byte, w.frameSize)
	sum := encodeFrame(buf, w.tailChecksum, pageID, 0, w.nextSeq, data)
	if _, err := w.f.WriteAt(buf, w.tail); err != nil {
		return dberr.IO(err, "spill %v to log", pageID)
	}

	w.pending[pageID] = frameRef{seq: w.nextSeq, offset: w.tail}
	w.lastPending = pageID
	w.tail += int64(w.frameSize)
	w.tailChecksum = sum
	w.nextSeq++
	w.metrics.FrameSpilled()
	return nil
}

// ReadPending copies the newest spilled image of pageID into buf.
func (w *WAL) ReadPending(pageID file.PageID, buf []byte) (bool, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	ref, ok := w.pending[pageID]
	if !ok {
		return false, nil
	}
	if err := w.readFrame(pageID, ref, buf, false); err != nil {
		return false, err
	}
	return true, nil
}

// HasPending reports whether the in-flight transaction spilled any page.
func (w *WAL) HasPending() bool {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return len(w.pending) > 0
}

// Commit appends pages as one transaction whose last frame carries dbSize,
// syncs the log and only then makes the transaction visible to new snapshots.
// It returns the seq assigned to each page. On failure the log is cut back to
// the previous commit and the transaction, including its spilled frames, is
// gone.
func (w *WAL) Commit(pages []Page, dbSize uint32) ([]uint64, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	batch := pages
	if len(batch) == 0 {
		if len(w.pending) == 0 {
			return nil, nil
		}
		// every page was spilled, write the last one again as the commit frame
		data := make([]byte, w.pageSize)
		if err := w.readFrame(w.lastPending, w.pending[w.lastPending], data, false); err != nil {
			w.abort()
			return nil, err
		}
		batch = []Page{{ID: w.lastPending, Data: data}}
	}

	buf := make([]byte, len(batch)*w.frameSize)
	seqs := make([]uint64, len(batch))
	refs := make([]frameRef, len(batch))
	sum, seq, offset := w.tailChecksum, w.nextSeq, w.tail
	for i, p := range batch {
		commitSize := uint32(0)
		if i == len(batch)-1 {
			commitSize = dbSize
		}
		sum = encodeFrame(buf[i*w.frameSize:], sum, p.ID, commitSize, seq, p.Data)
		seqs[i] = seq
		refs[i] = frameRef{seq: seq, offset: offset}
		seq++
		offset += int64(w.frameSize)
	}

	if _, err := w.f.WriteAt(buf, w.tail); err != nil {
		w.abort()
		return nil, dberr.IO(err, "append %d frames to log", len(batch))
	}
	if err := w.f.Sync(); err != nil {
		w.abort()
		return nil, dberr.IO(err, "sync log")
	}

	w.mu.Lock()
	for pageID, ref := range w.pending {
		w.addFrame(pageID, ref)
	}
	for i, p := range batch {
		w.addFrame(p.ID, refs[i])
	}
	w.lastCommitted = seq - 1
	w.size = offset
	w.lastChecksum = sum
	w.resetWriter()
	w.state = Active
	frames := w.frameCount
	w.mu.Unlock()

	w.metrics.FramesCommitted(len(batch))
	w.metrics.SetWALFrames(frames)
	if len(pages) == 0 {
		return nil, nil
	}
	return seqs, nil
}

// Discard drops the frames spilled by the in-flight transaction.
func (w *WAL) Discard() error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if w.tail == w.size {
		return nil
	}
	return w.abort()
}

// abort cuts the log back to the last commit. Callers hold writeMu.
func (w *WAL) abort() error {
	w.mu.Lock()
	w.resetWriter()
	w.mu.Unlock()

	if err := w.f.Truncate(w.size); err != nil {
		// The next transaction overwrites the leftover frames; whatever is
		// left past its end no longer continues the checksum chain.
		w.log.WarnNs(logger.NsWAL, "failed to truncate log", logger.KV{"size": w.size, "error": err.Error()})
		return dberr.IO(err, "truncate log to %d", w.size)
	}
	return nil
}
