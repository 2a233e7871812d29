package wal

import (
	"sync/atomic"

	"github.com/AndreasBriese/bbloom"
	"github.com/dgraph-io/ristretto"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/metrics"
	"github.com/sasha-s/go-deadlock"
)

/*
The WAL records every committed page image as a frame appended to the log
file. The main database file is only updated by a checkpoint, which copies
the newest frame of each page back into it.

Readers see the database through a Snapshot: the seq of the last commit
frame when the snapshot was opened. For a page, the newest frame with
seq <= MaxSeq wins, and a page without such a frame is read from the main
file.

A log with 2 committed transactions and one in-flight writer that spilled
a page under cache pressure:

+--------+-----------+-----------+-----------+-----------+-----------+
| header | p3 seq=1  | p0 seq=2  | p3 seq=3  | p5 seq=4  | p7 seq=5  |
|        |           | commit    |           | commit    | (pending) |
+--------+-----------+-----------+-----------+-----------+-----------+
                      lastCommitted was 2     lastCommitted = 4

A snapshot opened at seq 2 reads p3 from frame 1, a snapshot at seq 4 from
frame 3. Frame 5 is only visible to the writer until it commits.
*/

// State of the log.
type State int

const (
	// Empty means every committed frame has been copied into the main file.
	Empty State = iota
	// Active means the log holds frames not yet copied into the main file.
	Active
	// Checkpointing means a checkpoint is copying frames into the main file.
	Checkpointing
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Active:
		return "active"
	case Checkpointing:
		return "checkpointing"
	}
	return "unknown"
}

const (
	DefaultFrameCacheSize = 4 << 20
	bloomEntries          = 1 << 16
	bloomFalsePositive    = 0.01
)

// Options for opening a WAL.
type Options struct {
	Logger  logger.Logger
	Metrics *metrics.Metrics
	// FrameCacheSize is the byte budget of the frame image cache.
	FrameCacheSize int64
}

// Page is a page image handed to the log by the writer.
type Page struct {
	ID   file.PageID
	Data []byte
}

type frameRef struct {
	seq    uint64
	offset int64
}

// WAL is the write-ahead log of one database.
type WAL struct {
	// mu guards the index, the snapshot registry and lastCommitted.
	mu deadlock.RWMutex
	// writeMu serializes the writer (spill, commit, discard) and checkpoints.
	writeMu deadlock.Mutex

	f         file.File
	pageSize  int
	frameSize int
	salt      uint64
	log       logger.Logger
	metrics   *metrics.Metrics
	state     State

	headerChecksum uint64
	lastCommitted  uint64
	// backfilled is the seq up to which every frame is in the main file.
	backfilled atomic.Uint64

	// size is the end of the last committed frame, lastChecksum its checksum.
	size         int64
	lastChecksum uint64

	// committed frames of each page, oldest first
	frames     map[file.PageID][]frameRef
	frameCount int
	filter     bbloom.Bloom
	cache      *ristretto.Cache

	// writer state: frames spilled by the in-flight transaction
	pending      map[file.PageID]frameRef
	lastPending  file.PageID
	tail         int64
	tailChecksum uint64
	nextSeq      uint64

	snapshots map[uint64]int
}

// Open runs recovery on the log file f and returns a WAL ready for use.
// A log with a bad header, a different page size or a salt other than salt
// is discarded and replaced by an empty log.
func Open(f file.File, pageSize int, salt uint64, opts Options) (*WAL, error) {
	if !opts.Logger.IsInitialized() {
		opts.Logger = logger.NewNop()
	}
	if opts.FrameCacheSize <= 0 {
		opts.FrameCacheSize = DefaultFrameCacheSize
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: max(10*opts.FrameCacheSize/int64(pageSize), 1000),
		MaxCost:     opts.FrameCacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	w := &WAL{
		f:         f,
		pageSize:  pageSize,
		frameSize: FrameHeaderSize + pageSize,
		salt:      salt,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		frames:    make(map[file.PageID][]frameRef),
		filter:    bbloom.New(float64(bloomEntries), bloomFalsePositive),
		cache:     cache,
		pending:   make(map[file.PageID]frameRef),
		snapshots: make(map[uint64]int),
	}
	if err := w.recover(); err != nil {
		cache.Close()
		return nil, err
	}
	return w, nil
}

func (w *WAL) recover() error {
	size, err := w.f.Size()
	if err != nil {
		return dberr.IO(err, "stat log")
	}
	if size < HeaderSize {
		return w.reset(0)
	}

	buf := make([]byte, HeaderSize)
	if _, err := w.f.ReadAt(buf, 0); err != nil {
		return dberr.IO(err, "read log header")
	}
	h, err := decodeHeader(buf)
	if err == nil && int(h.pageSize) != w.pageSize {
		err = dberr.Corruptf("log page size %d, database page size %d", h.pageSize, w.pageSize)
	}
	if err == nil && h.salt != w.salt {
		err = dberr.Corruptf("log salt %#x does not match database salt %#x", h.salt, w.salt)
	}
	if err != nil {
		w.log.WarnNs(logger.NsWAL, "discarding stale log", logger.KV{"reason": err.Error()})
		return w.reset(0)
	}

	w.headerChecksum = h.checksum
	w.lastCommitted = h.baseSeq
	w.backfilled.Store(h.baseSeq)
	w.size = HeaderSize
	w.lastChecksum = h.checksum

	var txFrames []Frame
	var txRefs []frameRef
	chain, seq := h.checksum, h.baseSeq
	kept, seen := 0, 0

	it := NewFrameIterator(w.f, w.pageSize)
	for it.HasNext() {
		offset := it.Offset()
		frame := decodeFrame(it.Next())
		if frame.Seq != seq+1 || !frame.verify(chain) {
			break
		}
		seen++
		chain, seq = frame.Checksum, frame.Seq
		txFrames = append(txFrames, Frame{PageID: frame.PageID, Seq: frame.Seq})
		txRefs = append(txRefs, frameRef{seq: frame.Seq, offset: offset})

		if frame.IsCommit() {
			for i, fr := range txFrames {
				w.addFrame(fr.PageID, txRefs[i])
			}
			kept += len(txFrames)
			txFrames, txRefs = txFrames[:0], txRefs[:0]
			w.lastCommitted = frame.Seq
			w.lastChecksum = frame.Checksum
			w.size = it.Offset()
		}
	}
	if err := it.Err(); err != nil {
		return err
	}

	if size > w.size {
		if err := w.f.Truncate(w.size); err != nil {
			return dberr.IO(err, "truncate log to %d", w.size)
		}
		if err := w.f.Sync(); err != nil {
			return dberr.IO(err, "sync log")
		}
	}
	w.resetWriter()
	w.setState()

	w.log.InfoNs(logger.NsWAL, "recovered log", logger.KV{
		"frames":         kept,
		"discarded":      seen - kept,
		"truncatedBytes": size - w.size,
		"lastCommitted":  w.lastCommitted,
	})
	w.metrics.SetWALFrames(w.frameCount)
	return nil
}

// reset truncates the log and writes a fresh header whose base is baseSeq.
// Callers hold mu or own the WAL exclusively.
func (w *WAL) reset(baseSeq uint64) error {
	if err := w.f.Truncate(0); err != nil {
		return dberr.IO(err, "truncate log")
	}
	h := newHeader(w.pageSize, w.salt, baseSeq)
	if _, err := w.f.WriteAt(h.encode(), 0); err != nil {
		return dberr.IO(err, "write log header")
	}
	if err := w.f.Sync(); err != nil {
		return dberr.IO(err, "sync log")
	}

	w.headerChecksum = h.checksum
	w.lastCommitted = baseSeq
	w.backfilled.Store(baseSeq)
	w.size = HeaderSize
	w.lastChecksum = h.checksum
	w.frames = make(map[file.PageID][]frameRef)
	w.frameCount = 0
	w.filter.Clear()
	w.cache.Clear()
	w.resetWriter()
	w.state = Empty
	w.metrics.SetWALFrames(0)
	return nil
}

func (w *WAL) resetWriter() {
	clear(w.pending)
	w.lastPending = file.NoPage
	w.tail = w.size
	w.tailChecksum = w.lastChecksum
	w.nextSeq = w.lastCommitted + 1
}

func (w *WAL) addFrame(pageID file.PageID, ref frameRef) {
	w.frames[pageID] = append(w.frames[pageID], ref)
	w.frameCount++
	w.filter.AddTS(pageKey(pageID))
}

func (w *WAL) setState() {
	if w.frameCount == 0 {
		w.state = Empty
	} else {
		w.state = Active
	}
}

func pageKey(pageID file.PageID) []byte {
	return []byte{byte(pageID >> 24), byte(pageID >> 16), byte(pageID >> 8), byte(pageID)}
}

// LastCommitted returns the seq of the newest commit frame.
func (w *WAL) LastCommitted() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastCommitted
}

// Backfilled returns the seq up to which the main file is current.
func (w *WAL) Backfilled() uint64 {
	return w.backfilled.Load()
}

// FrameCount returns the number of committed frames not yet checkpointed.
func (w *WAL) FrameCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.frameCount
}

func (w *WAL) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Size returns the size of the log file in bytes including pending frames.
func (w *WAL) Size() int64 {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.tail
}

// PageSize of the frames in this log.
func (w *WAL) PageSize() int {
	return w.pageSize
}

// Lookup returns the version of pageID visible to snap: the seq of the newest
// frame at or below snap.MaxSeq, or the backfilled seq when the page has to be
// read from the main file.
func (w *WAL) Lookup(pageID file.PageID, snap Snapshot) (version uint64, inLog bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.filter.HasTS(pageKey(pageID)) {
		return w.backfilled.Load(), false
	}
	if ref, ok := w.find(pageID, snap.MaxSeq); ok {
		return ref.seq, true
	}
	return w.backfilled.Load(), false
}

// ReadAt copies the image of pageID visible to snap into buf. It returns
// found == false when the page is not in the log and must be read from the
// main file; version is then the backfilled seq.
func (w *WAL) ReadAt(pageID file.PageID, snap Snapshot, buf []byte) (version uint64, found bool, err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	// reset clears the filter under mu
	if !w.filter.HasTS(pageKey(pageID)) {
		return w.backfilled.Load(), false, nil
	}

	ref, ok := w.find(pageID, snap.MaxSeq)
	if !ok {
		return w.backfilled.Load(), false, nil
	}
	if err := w.readFrame(pageID, ref, buf, true); err != nil {
		return 0, false, err
	}
	return ref.seq, true, nil
}

// find returns the newest committed frame of pageID with seq <= maxSeq.
func (w *WAL) find(pageID file.PageID, maxSeq uint64) (frameRef, bool) {
	refs := w.frames[pageID]
	for i := len(refs) - 1; i >= 0; i-- {
		if refs[i].seq <= maxSeq {
			return refs[i], true
		}
	}
	return frameRef{}, false
}

// readFrame reads the page image of a frame, serving committed frames from
// the frame cache when possible.
func (w *WAL) readFrame(pageID file.PageID, ref frameRef, buf []byte, cacheable bool) error {
	if cacheable {
		if v, ok := w.cache.Get(ref.seq); ok {
			copy(buf, v.([]byte))
			return nil
		}
	}

	if _, err := w.f.ReadAt(buf[:w.pageSize], ref.offset+FrameHeaderSize); err != nil {
		return dberr.IO(err, "read frame %d of %v", ref.seq, pageID)
	}
	if !file.VerifyChecksum(buf[:w.pageSize]) {
		return dberr.Corruptf("checksum mismatch in frame %d of %v", ref.seq, pageID)
	}

	if cacheable {
		image := make([]byte, w.pageSize)
		copy(image, buf)
		w.cache.Set(ref.seq, image, int64(w.pageSize))
	}
	return nil
}

// Close releases the frame cache. The log file is owned by the caller.
func (w *WAL) Close() {
	w.cache.Close()
}
