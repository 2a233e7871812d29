package btree

import (
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/pager"
)

/*
A node occupies one page. Cells are packed after a 12 byte header.

+======+=======+=======+======+==========+=======+=====+
| type | flags | nkeys | link | reserved | cells | ... |
+======+=======+=======+======+==========+=======+=====+
| 1    | 1     | 2     | 4    | 4        |       |     |
+------+-------+-------+------+----------+-------+-----+

link is the next leaf for a leaf and the rightmost child for an interior node.

Leaf cell, value stored inline:
+========+======+=====+==========+=======+
| keyLen | kind | key | valueLen | value |
+========+======+=====+==========+=======+
| 2      | 1    | n   | 4        | m     |
+--------+------+-----+----------+-------+

Leaf cell, value stored in an overflow chain:
+========+======+=====+==========+===========+======+
| keyLen | kind | key | valueLen | storedLen | head |
+========+======+=====+==========+===========+======+
| 2      | 1    | n   | 4        | 4         | 4    |
+--------+------+-----+----------+-----------+------+

Interior cell, child holds the keys below key:
+========+=====+=======+
| keyLen | key | child |
+========+=====+=======+
| 2      | n   | 4     |
+--------+-----+-------+
*/

const (
	nodeHeaderSize = 12

	kindInline     uint8 = 0
	kindOverflow   uint8 = 1
	kindCompressed uint8 = 1 << 2
)

type cell struct {
	key []byte

	// leaf cells
	kind      uint8
	valueLen  uint32
	value     []byte
	storedLen uint32
	head      file.PageID

	// interior cells
	child file.PageID
}

func (c cell) overflow() bool {
	return c.kind&kindOverflow != 0
}

func (c cell) compressed() bool {
	return c.kind&kindCompressed != 0
}

func leafCellSize(keyLen int, inlineValueLen int, overflow bool) int {
	if overflow {
		return 2 + 1 + keyLen + 4 + 8
	}
	return 2 + 1 + keyLen + 4 + inlineValueLen
}

func interiorCellSize(keyLen int) int {
	return 2 + keyLen + 4
}

type node struct {
	id    file.PageID
	leaf  bool
	cells cells
	link  file.PageID
}

func (n *node) cellSize(c cell) int {
	if n.leaf {
		return leafCellSize(len(c.key), len(c.value), c.overflow())
	}
	return interiorCellSize(len(c.key))
}

// size is the number of bytes the node takes when encoded.
func (n *node) size() int {
	size := nodeHeaderSize
	for _, c := range n.cells {
		size += n.cellSize(c)
	}
	return size
}

// childAt returns the child left of cell i, or the rightmost child for
// i == len(cells).
func (n *node) childAt(i int) file.PageID {
	if i == len(n.cells) {
		return n.link
	}
	return n.cells[i].child
}

func (n *node) setChildAt(i int, id file.PageID) {
	if i == len(n.cells) {
		n.link = id
	} else {
		n.cells[i].child = id
	}
}

func decodeNode(id file.PageID, buf []byte) (*node, error) {
	page := file.NewPageWithBytes(buf[:file.Usable(len(buf))])
	typ, _ := page.GetUint8(0)
	if typ != pager.TypeLeaf && typ != pager.TypeInterior {
		return nil, dberr.Corruptf("%v is not a tree node (type %d)", id, typ)
	}
	nkeys, _ := page.GetUint16(2)
	link, _ := page.GetUint32(4)

	n := &node{
		id:    id,
		leaf:  typ == pager.TypeLeaf,
		cells: make(cells, nkeys),
		link:  file.PageID(link),
	}

	var err error
	offset := nodeHeaderSize
	for i := range n.cells {
		if n.leaf {
			n.cells[i], offset, err = decodeLeafCell(page, offset)
		} else {
			n.cells[i], offset, err = decodeInteriorCell(page, offset)
		}
		if err != nil {
			return nil, dberr.Corruptf("malformed cell %d in %v: %v", i, id, err)
		}
	}
	return n, nil
}

func decodeLeafCell(page *file.Page, offset int) (cell, int, error) {
	var c cell
	keyLen, err := page.GetUint16(offset)
	if err != nil {
		return c, 0, err
	}
	if c.kind, err = page.GetUint8(offset + 2); err != nil {
		return c, 0, err
	}
	offset += 3
	if offset+int(keyLen) > page.Size {
		return c, 0, file.ErrOutOfBounds
	}
	c.key = page.Buffer[offset : offset+int(keyLen)]
	offset += int(keyLen)

	if c.valueLen, err = page.GetUint32(offset); err != nil {
		return c, 0, err
	}
	offset += 4

	if c.overflow() {
		if c.storedLen, err = page.GetUint32(offset); err != nil {
			return c, 0, err
		}
		head, err := page.GetUint32(offset + 4)
		if err != nil {
			return c, 0, err
		}
		c.head = file.PageID(head)
		return c, offset + 8, nil
	}

	if offset+int(c.valueLen) > page.Size {
		return c, 0, file.ErrOutOfBounds
	}
	c.value = page.Buffer[offset : offset+int(c.valueLen)]
	return c, offset + int(c.valueLen), nil
}

func decodeInteriorCell(page *file.Page, offset int) (cell, int, error) {
	var c cell
	key, err := page.GetBytes(offset)
	if err != nil {
		return c, 0, err
	}
	c.key = key
	offset += file.MaxLen(len(key))
	child, err := page.GetUint32(offset)
	if err != nil {
		return c, 0, err
	}
	c.child = file.PageID(child)
	return c, offset + 4, nil
}

// encode returns the page image of the node. The node must fit in a page.
func (n *node) encode(pageSize int) []byte {
	buf := make([]byte, pageSize)
	page := file.NewPageWithBytes(buf[:file.Usable(pageSize)])
	typ := pager.TypeInterior
	if n.leaf {
		typ = pager.TypeLeaf
	}
	page.SetUint8(0, typ)
	page.SetUint16(2, uint16(len(n.cells)))
	page.SetUint32(4, uint32(n.link))

	offset := nodeHeaderSize
	for _, c := range n.cells {
		if !n.leaf {
			page.SetBytes(offset, c.key)
			offset += file.MaxLen(len(c.key))
			page.SetUint32(offset, uint32(c.child))
			offset += 4
			continue
		}
		page.SetUint16(offset, uint16(len(c.key)))
		page.SetUint8(offset+2, c.kind)
		offset += 3
		copy(buf[offset:], c.key)
		offset += len(c.key)
		page.SetUint32(offset, c.valueLen)
		offset += 4
		if c.overflow() {
			page.SetUint32(offset, c.storedLen)
			page.SetUint32(offset+4, uint32(c.head))
			offset += 8
		} else {
			copy(buf[offset:], c.value)
			offset += len(c.value)
		}
	}
	return buf
}
