package btree

import (
	"github.com/golang/snappy"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/pager"
)

/*
Values that do not fit in a leaf cell are stored in a chain of overflow pages.

+======+=====+======+======+======+
| type | pad | used | next | data |
+======+=====+======+======+======+
| 1    | 1   | 2    | 4    | ...  |
+------+-----+------+------+------+
*/

const overflowHeaderSize = 8

func overflowCapacity(pageSize int) int {
	return file.Usable(pageSize) - overflowHeaderSize
}

// encodeValue returns the bytes stored in the chain and whether they are
// snappy compressed.
func encodeValue(value []byte) ([]byte, bool) {
	compressed := snappy.Encode(nil, value)
	if len(compressed) < len(value) {
		return compressed, true
	}
	return value, false
}

// writeOverflow stores data in a new chain and returns its first page.
func writeOverflow(v *pager.View, data []byte) (file.PageID, error) {
	capacity := overflowCapacity(v.PageSize())
	n := (len(data) + capacity - 1) / capacity
	if n == 0 {
		n = 1
	}

	ids := make([]file.PageID, n)
	for i := range ids {
		id, err := v.AllocatePage()
		if err != nil {
			return file.NoPage, err
		}
		ids[i] = id
	}

	for i, id := range ids {
		chunk := data[i*capacity:]
		if len(chunk) > capacity {
			chunk = chunk[:capacity]
		}
		next := file.NoPage
		if i+1 < len(ids) {
			next = ids[i+1]
		}

		buf := make([]byte, v.PageSize())
		page := file.NewPageWithBytes(buf)
		page.SetUint8(0, pager.TypeOverflow)
		page.SetUint16(2, uint16(len(chunk)))
		page.SetUint32(4, uint32(next))
		copy(buf[overflowHeaderSize:], chunk)
		if err := v.WritePage(id, buf); err != nil {
			return file.NoPage, err
		}
	}
	return ids[0], nil
}

// readOverflow reads storedLen bytes from the chain starting at head.
func readOverflow(v *pager.View, head file.PageID, storedLen uint32) ([]byte, error) {
	data := make([]byte, 0, storedLen)
	id := head
	for uint32(len(data)) < storedLen {
		if id == file.NoPage {
			return nil, dberr.Corruptf("overflow chain ends after %d of %d bytes", len(data), storedLen)
		}
		buf, err := v.ReadPage(id)
		if err != nil {
			return nil, err
		}
		page := file.NewPageWithBytes(buf[:file.Usable(len(buf))])
		typ, _ := page.GetUint8(0)
		used, _ := page.GetUint16(2)
		next, _ := page.GetUint32(4)
		if typ != pager.TypeOverflow || int(used) > overflowCapacity(len(buf)) {
			return nil, dberr.Corruptf("%v is not an overflow page", id)
		}
		data = append(data, buf[overflowHeaderSize:overflowHeaderSize+int(used)]...)
		id = file.PageID(next)
	}
	if uint32(len(data)) != storedLen {
		return nil, dberr.Corruptf("overflow chain at %v holds %d bytes, expected %d", head, len(data), storedLen)
	}
	return data, nil
}

// freeOverflow returns every page of the chain to the freelist.
func freeOverflow(v *pager.View, head file.PageID, storedLen uint32) error {
	capacity := overflowCapacity(v.PageSize())
	remaining := int(storedLen)
	id := head
	for id != file.NoPage {
		buf, err := v.ReadPage(id)
		if err != nil {
			return err
		}
		next, _ := file.NewPageWithBytes(buf).GetUint32(4)
		if err := v.FreePage(id); err != nil {
			return err
		}
		remaining -= capacity
		if remaining <= 0 {
			break
		}
		id = file.PageID(next)
	}
	return nil
}

// loadValue returns the full value of a leaf cell.
func loadValue(v *pager.View, c cell) ([]byte, error) {
	if !c.overflow() {
		out := make([]byte, len(c.value))
		copy(out, c.value)
		return out, nil
	}
	data, err := readOverflow(v, c.head, c.storedLen)
	if err != nil {
		return nil, err
	}
	if !c.compressed() {
		return data, nil
	}
	value, err := snappy.Decode(make([]byte, 0, c.valueLen), data)
	if err != nil {
		return nil, dberr.Corruptf("overflow value at %v: %v", c.head, err)
	}
	if uint32(len(value)) != c.valueLen {
		return nil, dberr.Corruptf("overflow value at %v is %d bytes, expected %d", c.head, len(value), c.valueLen)
	}
	return value, nil
}
