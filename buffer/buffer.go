package buffer

import (
	"fmt"
	"math"

	"github.com/naveen246/kite/file"
)

// DirtyVersion is the version of a page modified by the active writer.
const DirtyVersion = math.MaxUint64

// Key identifies one version of a page. Version is the seq of the log frame
// the image came from, the backfilled seq for images read from the main file,
// or DirtyVersion for the writer's uncommitted copy.
type Key struct {
	Page    file.PageID
	Version uint64
}

func (k Key) String() string {
	if k.Version == DirtyVersion {
		return fmt.Sprintf("%v@dirty", k.Page)
	}
	return fmt.Sprintf("%v@%d", k.Page, k.Version)
}

// Buffer wraps a page and stores information about its status,
// such as the page version it holds, the number of times the buffer has been pinned,
// and, if it holds uncommitted changes, the id of the modifying transaction.
type Buffer struct {
	// The main content of the buffer which is accessed by clients to read data
	Contents *file.Page

	// Page version allocated to the buffer.
	Key      Key
	ID       string
	assigned bool

	// pins indicates the number of clients currently accessing the buffer
	pins int
	// txNum >= 0 indicates that the buffer holds a page modified by that
	// transaction that is not yet in the log.
	// Initial value is -1 when there is no change in the buffer page
	txNum int64
}

func NewBuffer(id string, pageSize int) *Buffer {
	return &Buffer{
		ID:       id,
		Contents: file.NewPageWithSize(pageSize),
		txNum:    -1,
	}
}

func (b *Buffer) IsDirty() bool {
	return b.txNum >= 0
}

// IsPinned Return true if the buffer is currently pinned (that is, if it has a nonzero pin count).
// Multiple clients can access a buffer.
// The number of pins indicate the number of clients currently accessing the buffer
func (b *Buffer) IsPinned() bool {
	return b.pins > 0
}

func (b *Buffer) pin() {
	b.pins++
}

func (b *Buffer) unpin() {
	b.pins--
}

func (b *Buffer) release() {
	b.assigned = false
	b.txNum = -1
	b.pins = 0
	b.Key = Key{}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer %v: [%v] isPinned: %v, txNum: %v, pins: %v", b.ID[len(b.ID)-3:], b.Key, b.IsPinned(), b.txNum, b.pins)
}
