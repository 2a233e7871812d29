package wal

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/iter"
)

var _ iter.Iterator = (*FrameIterator)(nil)

// FrameIterator walks the frames of a log file from oldest to newest.
// It stops at the first short or unreadable frame; Err reports a read failure.
type FrameIterator struct {
	f          file.File
	frameSize  int
	currentPos int64
	buf        []byte
	err        error
	loaded     bool
	exhausted  bool
}

func NewFrameIterator(f file.File, pageSize int) *FrameIterator {
	frameSize := FrameHeaderSize + pageSize
	return &FrameIterator{
		f:          f,
		frameSize:  frameSize,
		currentPos: HeaderSize,
		buf:        make([]byte, frameSize),
	}
}

func (it *FrameIterator) HasNext() bool {
	if it.exhausted {
		return false
	}
	if !it.loaded {
		it.load()
	}
	return !it.exhausted
}

// Next returns the raw bytes of the next frame. The slice is reused by the
// following call.
func (it *FrameIterator) Next() []byte {
	if !it.HasNext() {
		return nil
	}
	it.loaded = false
	it.currentPos += int64(it.frameSize)
	return it.buf
}

// Offset returns the file offset just past the last frame returned by Next.
func (it *FrameIterator) Offset() int64 {
	return it.currentPos
}

func (it *FrameIterator) Err() error {
	return it.err
}

func (it *FrameIterator) load() {
	n, err := it.f.ReadAt(it.buf, it.currentPos)
	if err != nil && !errors.Is(err, io.EOF) {
		it.err = dberr.IO(err, "read log frame at %d", it.currentPos)
	}
	if n < it.frameSize {
		it.exhausted = true
		return
	}
	it.loaded = true
}
