package pager

import (
	"github.com/naveen246/kite/buffer"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/wal"
)

// View is the pager as seen by one transaction: a snapshot for reads and,
// for the writer, its uncommitted pages and header.
type View struct {
	p        *Pager
	snap     wal.Snapshot
	txNum    int64
	writable bool
	done     bool
	// mutations counts changes made through this view.
	mutations uint64

	// header is the writer's working copy, committed is the header at begin.
	header    *Header
	committed *Header
}

func (v *View) Writable() bool {
	return v.writable
}

func (v *View) Snapshot() wal.Snapshot {
	return v.snap
}

func (v *View) PageSize() int {
	return v.p.pageSize
}

// Mutations returns the number of changes made through this view so far.
func (v *View) Mutations() uint64 {
	return v.mutations
}

func (v *View) release() {
	if !v.done {
		v.done = true
		v.p.wal.CloseSnapshot(v.snap)
	}
}

func (v *View) checkWritable() error {
	if v.done {
		return dberr.ErrTxDone
	}
	if !v.writable {
		return dberr.ErrReadOnly
	}
	return nil
}

// ReadPage returns a copy of the page as seen by this view.
func (v *View) ReadPage(id file.PageID) ([]byte, error) {
	if v.done {
		return nil, dberr.ErrTxDone
	}
	p := v.p
	if v.writable {
		if id >= file.PageID(v.header.PageCount) {
			return nil, dberr.Corruptf("%v is beyond the end of the database (%d pages)", id, v.header.PageCount)
		}
		if data, ok := p.pool.ReadDirty(v.txNum, id); ok {
			return data, nil
		}
		buf := make([]byte, p.pageSize)
		if ok, err := p.wal.ReadPending(id, buf); err != nil || ok {
			return buf, err
		}
	}

	version, _ := p.wal.Lookup(id, v.snap)
	return p.pool.Read(buffer.Key{Page: id, Version: version}, func(buf []byte) error {
		_, found, err := p.wal.ReadAt(id, v.snap, buf)
		if err != nil || found {
			return err
		}
		if err := p.fm.Read(id, buf); err != nil {
			return err
		}
		if !file.VerifyChecksum(buf) {
			return dberr.Corruptf("checksum mismatch in %v", id)
		}
		return nil
	})
}

// WritePage replaces the content of a page. The change stays in the cache
// until commit.
func (v *View) WritePage(id file.PageID, data []byte) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	if len(data) != v.p.pageSize {
		return dberr.InvalidArgf("page image is %d bytes, page size is %d", len(data), v.p.pageSize)
	}
	if id == 0 || id >= file.PageID(v.header.PageCount) {
		return dberr.InvalidArgf("cannot write %v", id)
	}
	v.mutations++
	return v.p.pool.WriteDirty(v.txNum, id, data)
}

// Header returns the database header as seen by this view.
func (v *View) Header() (*Header, error) {
	if v.done {
		return nil, dberr.ErrTxDone
	}
	if v.writable {
		return v.header, nil
	}
	return v.readHeader()
}

func (v *View) readHeader() (*Header, error) {
	buf, err := v.readPage0()
	if err != nil {
		return nil, err
	}
	return decodeHeader(buf)
}

// readPage0 reads the committed header page through the snapshot.
func (v *View) readPage0() ([]byte, error) {
	p := v.p
	version, _ := p.wal.Lookup(0, v.snap)
	return p.pool.Read(buffer.Key{Page: 0, Version: version}, func(buf []byte) error {
		_, found, err := p.wal.ReadAt(0, v.snap, buf)
		if err != nil || found {
			return err
		}
		return p.fm.Read(0, buf)
	})
}

func (v *View) headerChanged() bool {
	a, err := v.header.encode(v.p.pageSize)
	if err != nil {
		return true
	}
	b, _ := v.committed.encode(v.p.pageSize)
	return string(a) != string(b)
}

// Root returns the root page of the named tree.
func (v *View) Root(name string) (file.PageID, error) {
	h, err := v.Header()
	if err != nil {
		return 0, err
	}
	root, ok := h.Roots[name]
	if !ok {
		return 0, dberr.ErrTreeNotFound
	}
	return root, nil
}

// Roots returns the names of all trees in order.
func (v *View) Roots() ([]string, error) {
	h, err := v.Header()
	if err != nil {
		return nil, err
	}
	return h.Names(), nil
}

// SetRoot records the root page of a tree.
func (v *View) SetRoot(name string, root file.PageID) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	v.mutations++
	prev, existed := v.header.Roots[name]
	v.header.Roots[name] = root
	if _, err := v.header.encode(v.p.pageSize); err != nil {
		if existed {
			v.header.Roots[name] = prev
		} else {
			delete(v.header.Roots, name)
		}
		return err
	}
	return nil
}

// DropRoot removes a tree from the header.
func (v *View) DropRoot(name string) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	if _, ok := v.header.Roots[name]; !ok {
		return dberr.ErrTreeNotFound
	}
	v.mutations++
	delete(v.header.Roots, name)
	return nil
}
