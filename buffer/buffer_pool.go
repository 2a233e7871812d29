package buffer

import (
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/metrics"
	"github.com/sasha-s/go-deadlock"
)

/*
BufferPool is an in-memory cache of page images.

Clean buffers hold a committed version of a page and are shared by every
reader whose snapshot resolves to that version. Dirty buffers hold the
uncommitted copy of a page modified by the single writer and are owned by
its transaction.

When a buffer is needed and the page version is not cached, the Least
Recently Used unpinned buffer is reused. unpinnedBuffers is kept in LRU
order: a buffer is appended to the tail when its pin count drops to 0 and
victims are taken from the head. A dirty victim is first handed to the
spill function so the writer's change is not lost.
*/

const (
	pinRetries = 3
	pinWait    = time.Millisecond
)

// ErrNoBuffer is returned when every buffer is pinned.
var ErrNoBuffer = dberr.Busyf("no unpinned buffer available")

// SpillFunc saves the uncommitted image of page when its buffer is evicted.
type SpillFunc func(page file.PageID, data []byte) error

// LoadFunc fills buf with the image of a page version on a cache miss.
type LoadFunc func(buf []byte) error

// DirtyPage is an uncommitted page image of a transaction.
type DirtyPage struct {
	ID   file.PageID
	Data []byte
}

// BufferPool Manages the pinning and unpinning of buffers to page versions.
type BufferPool struct {
	deadlock.Mutex
	pageSize        int
	unpinnedBuffers []*Buffer

	// allocatedBuffers maps a page version to its Buffer
	allocatedBuffers map[Key]*Buffer
	spill            SpillFunc
	metrics          *metrics.Metrics
}

func NewBufferPool(pageSize, bufCount int, spill SpillFunc, m *metrics.Metrics) *BufferPool {
	buffers := make([]*Buffer, bufCount)
	for i := 0; i < bufCount; i++ {
		buffers[i] = NewBuffer(uuid.NewString(), pageSize)
	}
	return &BufferPool{
		pageSize:         pageSize,
		unpinnedBuffers:  buffers,
		allocatedBuffers: make(map[Key]*Buffer),
		spill:            spill,
		metrics:          m,
	}
}

// Available Returns the number of available (i.e. unpinned) buffers.
func (bm *BufferPool) Available() int {
	bm.Lock()
	defer bm.Unlock()
	return len(bm.unpinnedBuffers)
}

// Len returns the number of buffers holding a page.
func (bm *BufferPool) Len() int {
	bm.Lock()
	defer bm.Unlock()
	return len(bm.allocatedBuffers)
}

// Cached reports whether a buffer holds key.
func (bm *BufferPool) Cached(key Key) bool {
	bm.Lock()
	defer bm.Unlock()
	_, ok := bm.allocatedBuffers[key]
	return ok
}

// UnpinBuffer Unpins the specified buffer.
// If its pin count goes to 0, then no client is accessing the buffer
// and it becomes the most recently used candidate for reuse.
func (bm *BufferPool) UnpinBuffer(buffer *Buffer) {
	bm.Lock()
	defer bm.Unlock()
	bm.unpin(buffer)
}

func (bm *BufferPool) unpin(buffer *Buffer) {
	buffer.unpin()
	if !buffer.IsPinned() {
		bm.unpinnedBuffers = append(bm.unpinnedBuffers, buffer)
	}
}

// PinBuffer Pins a buffer to the specified page version, calling load to fill it
// if the version is not cached. If every buffer is pinned it retries a few
// times before giving up with ErrNoBuffer.
func (bm *BufferPool) PinBuffer(key Key, load LoadFunc) (*Buffer, error) {
	wait := pinWait
	for i := 0; ; i++ {
		bm.Lock()
		buf, err := bm.tryToPin(key, load)
		bm.Unlock()
		if buf != nil || err != nil {
			return buf, err
		}
		if i == pinRetries {
			return nil, ErrNoBuffer
		}
		time.Sleep(wait)
		wait *= 2
	}
}

// Read returns a copy of the page version, loading it on a miss.
func (bm *BufferPool) Read(key Key, load LoadFunc) ([]byte, error) {
	buf, err := bm.PinBuffer(key, load)
	if err != nil {
		return nil, err
	}
	data := slices.Clone(buf.Contents.Buffer)
	bm.UnpinBuffer(buf)
	return data, nil
}

// tryToPin Tries to pin a buffer to the specified page version.
// If there is already a buffer allocated to that version then that buffer is used;
// otherwise, an unpinned buffer from the pool is chosen and filled by load.
// Returns nil if there are no available buffers.
func (bm *BufferPool) tryToPin(key Key, load LoadFunc) (*Buffer, error) {
	buf := bm.allocatedBuffers[key]
	if buf != nil {
		bm.metrics.CacheHit()
		if !buf.IsPinned() {
			bm.removeBufferFromUnpinned(buf)
		}
		buf.pin()
		return buf, nil
	}

	bm.metrics.CacheMiss()
	buf, err := bm.chooseUnpinnedBuffer()
	if buf == nil || err != nil {
		return nil, err
	}
	if err := load(buf.Contents.Buffer); err != nil {
		bm.unpinnedBuffers = append([]*Buffer{buf}, bm.unpinnedBuffers...)
		return nil, err
	}
	bm.assign(buf, key, -1)
	buf.pin()
	return buf, nil
}

func (bm *BufferPool) assign(buf *Buffer, key Key, txNum int64) {
	buf.Key = key
	buf.assigned = true
	buf.txNum = txNum
	bm.allocatedBuffers[key] = buf
}

func (bm *BufferPool) removeBufferFromUnpinned(buf *Buffer) {
	index := -1
	for i := 0; i < len(bm.unpinnedBuffers); i++ {
		if bm.unpinnedBuffers[i].ID == buf.ID {
			index = i
			break
		}
	}
	if index != -1 {
		bm.unpinnedBuffers = slices.Delete(bm.unpinnedBuffers, index, index+1)
	}
}

// chooseUnpinnedBuffer takes the least recently used unpinned buffer and
// detaches it from the page version it held. A dirty buffer is spilled first.
func (bm *BufferPool) chooseUnpinnedBuffer() (*Buffer, error) {
	if len(bm.unpinnedBuffers) == 0 {
		return nil, nil
	}
	buf := bm.unpinnedBuffers[0]
	if buf.IsDirty() {
		if err := bm.spill(buf.Key.Page, buf.Contents.Buffer); err != nil {
			return nil, err
		}
	}
	bm.unpinnedBuffers = slices.Delete(bm.unpinnedBuffers, 0, 1)
	if buf.assigned {
		delete(bm.allocatedBuffers, buf.Key)
	}
	buf.release()
	return buf, nil
}

// ReadDirty returns a copy of the uncommitted image of page owned by txNum.
func (bm *BufferPool) ReadDirty(txNum int64, page file.PageID) ([]byte, bool) {
	bm.Lock()
	defer bm.Unlock()
	buf := bm.allocatedBuffers[Key{Page: page, Version: DirtyVersion}]
	if buf == nil || buf.txNum != txNum {
		return nil, false
	}
	bm.touch(buf)
	return slices.Clone(buf.Contents.Buffer), true
}

// WriteDirty stores data as the uncommitted image of page owned by txNum.
func (bm *BufferPool) WriteDirty(txNum int64, page file.PageID, data []byte) error {
	bm.Lock()
	defer bm.Unlock()

	key := Key{Page: page, Version: DirtyVersion}
	buf := bm.allocatedBuffers[key]
	if buf != nil && buf.txNum != txNum {
		return dberr.InvalidArgf("%v is modified by transaction %d", page, buf.txNum)
	}
	if buf == nil {
		var err error
		for i := 0; buf == nil; i++ {
			buf, err = bm.chooseUnpinnedBuffer()
			if err != nil {
				return err
			}
			if buf == nil {
				if i == pinRetries {
					return ErrNoBuffer
				}
				bm.Unlock()
				time.Sleep(pinWait << i)
				bm.Lock()
			}
		}
		bm.assign(buf, key, txNum)
		bm.unpinnedBuffers = append(bm.unpinnedBuffers, buf)
	} else {
		bm.touch(buf)
	}
	copy(buf.Contents.Buffer, data)
	return nil
}

// touch moves an unpinned buffer to the most recently used end.
func (bm *BufferPool) touch(buf *Buffer) {
	if !buf.IsPinned() {
		bm.removeBufferFromUnpinned(buf)
		bm.unpinnedBuffers = append(bm.unpinnedBuffers, buf)
	}
}

// DirtyPages returns copies of the pages modified by txNum in page order.
// The dirty buffers stay pinned, and so cannot be spilled, until Publish or
// Discard.
func (bm *BufferPool) DirtyPages(txNum int64) []DirtyPage {
	bm.Lock()
	defer bm.Unlock()

	var pages []DirtyPage
	for _, buf := range bm.allocatedBuffers {
		if buf.txNum != txNum {
			continue
		}
		if !buf.IsPinned() {
			bm.removeBufferFromUnpinned(buf)
		}
		buf.pin()
		pages = append(pages, DirtyPage{ID: buf.Key.Page, Data: slices.Clone(buf.Contents.Buffer)})
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].ID < pages[j].ID
	})
	return pages
}

// Publish turns the dirty buffers of txNum into clean buffers of the versions
// they were committed as. pages and seqs are parallel slices.
func (bm *BufferPool) Publish(txNum int64, pages []file.PageID, seqs []uint64) {
	bm.Lock()
	defer bm.Unlock()

	for i, page := range pages {
		buf := bm.allocatedBuffers[Key{Page: page, Version: DirtyVersion}]
		if buf == nil || buf.txNum != txNum {
			continue
		}
		delete(bm.allocatedBuffers, buf.Key)
		bm.assign(buf, Key{Page: page, Version: seqs[i]}, -1)
		if buf.IsPinned() {
			bm.unpin(buf)
		} else {
			bm.touch(buf)
		}
	}
	bm.discard(txNum)
}

// Discard drops every dirty buffer of txNum.
func (bm *BufferPool) Discard(txNum int64) {
	bm.Lock()
	defer bm.Unlock()
	bm.discard(txNum)
}

func (bm *BufferPool) discard(txNum int64) {
	for key, buf := range bm.allocatedBuffers {
		if buf.txNum != txNum {
			continue
		}
		delete(bm.allocatedBuffers, key)
		bm.removeBufferFromUnpinned(buf)
		buf.release()
		bm.unpinnedBuffers = append([]*Buffer{buf}, bm.unpinnedBuffers...)
	}
}

// Invalidate drops unpinned clean buffers of the given pages whose version is
// below the given seq. No snapshot can resolve to those versions any more.
func (bm *BufferPool) Invalidate(pages []file.PageID, below uint64) int {
	bm.Lock()
	defer bm.Unlock()

	stale := make(map[file.PageID]bool, len(pages))
	for _, p := range pages {
		stale[p] = true
	}
	dropped := 0
	for key, buf := range bm.allocatedBuffers {
		if !stale[key.Page] || buf.IsDirty() || buf.IsPinned() || key.Version >= below {
			continue
		}
		delete(bm.allocatedBuffers, key)
		bm.removeBufferFromUnpinned(buf)
		buf.release()
		bm.unpinnedBuffers = append([]*Buffer{buf}, bm.unpinnedBuffers...)
		dropped++
	}
	return dropped
}
