package pager

import (
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
)

/*
Free pages are tracked in a chain of trunk pages starting at the header's
freelistHead.

+======+=====+=======+======+=========+=================+=====+
| type | pad | count | next | freedAt | pageID, freedAt | ... |
+======+=====+=======+======+=========+=================+=====+
| 1    | 1   | 2     | 4    | 8       | 4 + 8           |     |
+------+-----+-------+------+---------+-----------------+-----+

freedAt is the snapshot seq of the transaction that freed the page. Readers
at or below that seq may still reach the page, so it is reused only once
every open snapshot is newer. A freed page becomes a trunk page itself when
the head trunk is full; an empty head trunk is reused like any other entry.
*/

const (
	trunkHeaderSize = 16
	trunkEntrySize  = 12
)

type trunk struct {
	id      file.PageID
	next    file.PageID
	freedAt uint64
	entries []freeEntry
}

type freeEntry struct {
	id      file.PageID
	freedAt uint64
}

func trunkCapacity(pageSize int) int {
	return (file.Usable(pageSize) - trunkHeaderSize) / trunkEntrySize
}

func decodeTrunk(id file.PageID, buf []byte) (*trunk, error) {
	page := file.NewPageWithBytes(buf[:file.Usable(len(buf))])
	typ, _ := page.GetUint8(0)
	if typ != TypeFreelist {
		return nil, dberr.Corruptf("%v is not a freelist page (type %d)", id, typ)
	}
	count, _ := page.GetUint16(2)
	next, _ := page.GetUint32(4)
	freedAt, _ := page.GetUint64(8)
	if int(count) > trunkCapacity(len(buf)) {
		return nil, dberr.Corruptf("freelist %v holds %d entries", id, count)
	}

	t := &trunk{id: id, next: file.PageID(next), freedAt: freedAt, entries: make([]freeEntry, count)}
	offset := trunkHeaderSize
	for i := range t.entries {
		pid, _ := page.GetUint32(offset)
		at, _ := page.GetUint64(offset + file.Uint32Size)
		t.entries[i] = freeEntry{id: file.PageID(pid), freedAt: at}
		offset += trunkEntrySize
	}
	return t, nil
}

func (t *trunk) encode(pageSize int) []byte {
	buf := make([]byte, pageSize)
	page := file.NewPageWithBytes(buf)
	page.SetUint8(0, TypeFreelist)
	page.SetUint16(2, uint16(len(t.entries)))
	page.SetUint32(4, uint32(t.next))
	page.SetUint64(8, t.freedAt)
	offset := trunkHeaderSize
	for _, e := range t.entries {
		page.SetUint32(offset, uint32(e.id))
		page.SetUint64(offset+file.Uint32Size, e.freedAt)
		offset += trunkEntrySize
	}
	return buf
}

func (v *View) readTrunk(id file.PageID) (*trunk, error) {
	buf, err := v.ReadPage(id)
	if err != nil {
		return nil, err
	}
	return decodeTrunk(id, buf)
}

func (v *View) writeTrunk(t *trunk) error {
	return v.WritePage(t.id, t.encode(v.p.pageSize))
}

// AllocatePage returns a page for the writer to fill: a free page no open
// snapshot can reach, or a new page at the end of the file.
func (v *View) AllocatePage() (file.PageID, error) {
	if err := v.checkWritable(); err != nil {
		return 0, err
	}
	v.mutations++
	oldest, _ := v.p.wal.OldestSnapshot()
	reusable := func(freedAt uint64) bool { return freedAt < oldest }

	for id := v.header.FreelistHead; id != file.NoPage; {
		t, err := v.readTrunk(id)
		if err != nil {
			return 0, err
		}
		for i, e := range t.entries {
			if !reusable(e.freedAt) {
				continue
			}
			last := len(t.entries) - 1
			t.entries[i] = t.entries[last]
			t.entries = t.entries[:last]
			if err := v.writeTrunk(t); err != nil {
				return 0, err
			}
			return e.id, nil
		}
		if id == v.header.FreelistHead && len(t.entries) == 0 && reusable(t.freedAt) {
			v.header.FreelistHead = t.next
			return id, nil
		}
		id = t.next
	}

	if v.header.PageCount == ^uint32(0) {
		return 0, dberr.InvalidArgf("database is full")
	}
	id := file.PageID(v.header.PageCount)
	v.header.PageCount++
	return id, nil
}

// FreePage returns a page to the freelist. The page must not be referenced by
// the tree after this transaction.
func (v *View) FreePage(id file.PageID) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	if id == 0 || id >= file.PageID(v.header.PageCount) {
		return dberr.InvalidArgf("cannot free %v", id)
	}
	v.mutations++
	entry := freeEntry{id: id, freedAt: v.snap.MaxSeq}

	if head := v.header.FreelistHead; head != file.NoPage {
		t, err := v.readTrunk(head)
		if err != nil {
			return err
		}
		if len(t.entries) < trunkCapacity(v.p.pageSize) {
			t.entries = append(t.entries, entry)
			return v.writeTrunk(t)
		}
	}

	t := &trunk{id: id, next: v.header.FreelistHead, freedAt: entry.freedAt}
	if err := v.writeTrunk(t); err != nil {
		return err
	}
	v.header.FreelistHead = id
	return nil
}

// FreePages returns the number of pages on the freelist, trunks included.
func (v *View) FreePages() (int, error) {
	h, err := v.Header()
	if err != nil {
		return 0, err
	}
	n := 0
	for id := h.FreelistHead; id != file.NoPage; {
		t, err := v.readTrunk(id)
		if err != nil {
			return 0, err
		}
		n += 1 + len(t.entries)
		id = t.next
	}
	return n, nil
}
