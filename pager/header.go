package pager

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/google/uuid"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
)

/*
Page 0 of the main file holds the database header.

+=======+=========+==========+===========+==============+======+==========+===========+=======+
| magic | version | pageSize | pageCount | freelistHead | salt | comparer | treeCount | trees |
+=======+=========+==========+===========+==============+======+==========+===========+=======+
| 8     | 2       | 4        | 4         | 4            | 8    | 2+n      | 2         | ...   |
+-------+---------+----------+-----------+--------------+------+----------+-----------+-------+

Each tree is stored as name (2+n bytes) followed by its root page (4 bytes),
sorted by name. The last 8 bytes of the page are the checksum trailer.
*/

var magic = [8]byte{'k', 'i', 't', 'e', 0, 'd', 'b', 1}

const (
	formatVersion = 1
	// probeSize covers magic, version and pageSize.
	probeSize = 14
)

// Header is the decoded content of page 0.
type Header struct {
	PageSize     uint32
	PageCount    uint32
	FreelistHead file.PageID
	// Salt identifies this database file. The log carries the same salt.
	Salt     uint64
	Comparer string
	Roots    map[string]file.PageID
}

func newHeader(pageSize int, comparer string) *Header {
	id := uuid.New()
	return &Header{
		PageSize:  uint32(pageSize),
		PageCount: 1,
		Salt:      binary.BigEndian.Uint64(id[:8]),
		Comparer:  comparer,
		Roots:     make(map[string]file.PageID),
	}
}

func (h *Header) clone() *Header {
	c := *h
	c.Roots = make(map[string]file.PageID, len(h.Roots))
	for name, root := range h.Roots {
		c.Roots[name] = root
	}
	return &c
}

// Names returns the tree names in order.
func (h *Header) Names() []string {
	names := make([]string, 0, len(h.Roots))
	for name := range h.Roots {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *Header) encode(pageSize int) ([]byte, error) {
	page := file.NewPageWithSize(pageSize)
	usable := file.NewPageWithBytes(page.Buffer[:file.Usable(pageSize)])

	copy(usable.Buffer, magic[:])
	offset := len(magic)
	err := usable.SetUint16(offset, formatVersion)
	offset += file.Uint16Size
	for _, v := range []uint32{h.PageSize, h.PageCount, uint32(h.FreelistHead)} {
		if err == nil {
			err = usable.SetUint32(offset, v)
			offset += file.Uint32Size
		}
	}
	if err == nil {
		err = usable.SetUint64(offset, h.Salt)
		offset += file.Uint64Size
	}
	if err == nil {
		err = usable.SetString(offset, h.Comparer)
		offset += file.MaxLen(len(h.Comparer))
	}
	if err == nil {
		err = usable.SetUint16(offset, uint16(len(h.Roots)))
		offset += file.Uint16Size
	}
	for _, name := range h.Names() {
		if err == nil {
			err = usable.SetString(offset, name)
			offset += file.MaxLen(len(name))
		}
		if err == nil {
			err = usable.SetUint32(offset, uint32(h.Roots[name]))
			offset += file.Uint32Size
		}
	}
	if err != nil {
		return nil, dberr.InvalidArgf("database header does not fit in a page of %d bytes: %v", pageSize, err)
	}
	file.StampChecksum(page.Buffer)
	return page.Buffer, nil
}

func decodeHeader(buf []byte) (*Header, error) {
	if !bytes.Equal(buf[:len(magic)], magic[:]) {
		return nil, dberr.Corruptf("not a kite database")
	}
	if !file.VerifyChecksum(buf) {
		return nil, dberr.Corruptf("checksum mismatch in database header")
	}
	usable := file.NewPageWithBytes(buf[:file.Usable(len(buf))])
	h := &Header{Roots: make(map[string]file.PageID)}

	offset := len(magic)
	version, err := usable.GetUint16(offset)
	if err == nil && version != formatVersion {
		return nil, dberr.Corruptf("unsupported format version %d", version)
	}
	offset += file.Uint16Size

	var fields [3]uint32
	for i := range fields {
		if err == nil {
			fields[i], err = usable.GetUint32(offset)
			offset += file.Uint32Size
		}
	}
	h.PageSize, h.PageCount, h.FreelistHead = fields[0], fields[1], file.PageID(fields[2])
	if err == nil {
		h.Salt, err = usable.GetUint64(offset)
		offset += file.Uint64Size
	}
	if err == nil {
		h.Comparer, err = usable.GetString(offset)
		offset += file.MaxLen(len(h.Comparer))
	}
	var count uint16
	if err == nil {
		count, err = usable.GetUint16(offset)
		offset += file.Uint16Size
	}
	for i := 0; i < int(count) && err == nil; i++ {
		var name string
		var root uint32
		name, err = usable.GetString(offset)
		offset += file.MaxLen(len(name))
		if err == nil {
			root, err = usable.GetUint32(offset)
			offset += file.Uint32Size
		}
		h.Roots[name] = file.PageID(root)
	}
	if err != nil {
		return nil, dberr.Corruptf("malformed database header: %v", err)
	}
	if int(h.PageSize) != len(buf) {
		return nil, dberr.Corruptf("header page size %d, read %d bytes", h.PageSize, len(buf))
	}
	return h, nil
}

// probePageSize reads the page size of an existing database file.
func probePageSize(fm *file.FileMgr) (int, error) {
	buf := make([]byte, probeSize)
	n, err := fm.ReadAt(buf, 0)
	if err != nil {
		return 0, err
	}
	if n < probeSize || !bytes.Equal(buf[:len(magic)], magic[:]) {
		return 0, dberr.Corruptf("%s is not a kite database", fm.Path)
	}
	pageSize := int(binary.BigEndian.Uint32(buf[10:]))
	if !ValidPageSize(pageSize) {
		return 0, dberr.Corruptf("invalid page size %d in %s", pageSize, fm.Path)
	}
	return pageSize, nil
}

// ValidPageSize reports whether size is a power of two in [512, 65536].
func ValidPageSize(size int) bool {
	return size >= MinPageSize && size <= MaxPageSize && size&(size-1) == 0
}
