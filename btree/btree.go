// Package btree implements ordered key/value trees on top of pager pages.
//
// Trees are B+ trees: values live in leaves, interior nodes hold separator
// keys, leaves are linked left to right for range scans. Nodes refer to each
// other by page number only. The root page of a tree never moves, so the
// catalog entry for a tree is written once.
package btree

import (
	"math"
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/pager"
)

// maxDepth bounds descents so a corrupt cycle of child pointers is reported
// instead of looping.
const maxDepth = 64

// capacity is the number of bytes of a page a node may use.
func capacity(pageSize int) int {
	return file.Usable(pageSize)
}

// maxCellSize keeps at least four cells in every node.
func maxCellSize(pageSize int) int {
	return (capacity(pageSize) - nodeHeaderSize) / 4
}

// MaxKeySize is the longest key a tree with the given page size accepts.
func MaxKeySize(pageSize int) int {
	return maxCellSize(pageSize) - leafCellSize(0, 0, true)
}

type Tree struct {
	root    file.PageID
	view    *pager.View
	cmp     *pebble.Comparer
	compare func(a, b []byte) int
}

// Create allocates an empty tree and returns its root page.
func Create(v *pager.View) (file.PageID, error) {
	id, err := v.AllocatePage()
	if err != nil {
		return file.NoPage, err
	}
	n := &node{id: id, leaf: true}
	if err := v.WritePage(id, n.encode(v.PageSize())); err != nil {
		return file.NoPage, err
	}
	return id, nil
}

// Open returns the tree rooted at root as seen by v.
func Open(v *pager.View, root file.PageID, cmp *pebble.Comparer) *Tree {
	if cmp == nil {
		cmp = DefaultComparer
	}
	return &Tree{
		root:    root,
		view:    v,
		cmp:     cmp,
		compare: cmp.Compare,
	}
}

func (t *Tree) Root() file.PageID {
	return t.root
}

func (t *Tree) pageSize() int {
	return t.view.PageSize()
}

func (t *Tree) checkKey(key []byte) error {
	if limit := MaxKeySize(t.pageSize()); len(key) > limit {
		return dberr.InvalidArgf("key of %d bytes exceeds the maximum of %d", len(key), limit)
	}
	return nil
}

func (t *Tree) loadNode(id file.PageID) (*node, error) {
	buf, err := t.view.ReadPage(id)
	if err != nil {
		return nil, err
	}
	return decodeNode(id, buf)
}

func (t *Tree) writeNode(n *node) error {
	return t.view.WritePage(n.id, n.encode(t.pageSize()))
}

// childIndex returns the index of the child of n that covers key.
func (t *Tree) childIndex(n *node, key []byte) int {
	return sort.Search(len(n.cells), func(i int) bool {
		return t.compare(key, n.cells[i].key) < 0
	})
}

type pathEntry struct {
	node *node
	// idx is the child followed from node; unused for the leaf.
	idx int
}

// descend loads the nodes from the root down to the leaf that covers key.
func (t *Tree) descend(key []byte) ([]pathEntry, error) {
	var path []pathEntry
	id := t.root
	for depth := 0; depth < maxDepth; depth++ {
		n, err := t.loadNode(id)
		if err != nil {
			return nil, err
		}
		if n.leaf {
			return append(path, pathEntry{node: n}), nil
		}
		i := t.childIndex(n, key)
		path = append(path, pathEntry{node: n, idx: i})
		id = n.childAt(i)
	}
	return nil, dberr.Corruptf("tree at %v is deeper than %d levels", t.root, maxDepth)
}

// Lookup returns the value stored under key.
func (t *Tree) Lookup(key []byte) ([]byte, bool, error) {
	if err := t.checkKey(key); err != nil {
		return nil, false, err
	}
	path, err := t.descend(key)
	if err != nil {
		return nil, false, err
	}
	leaf := path[len(path)-1].node
	i, found := leaf.cells.find(key, t.compare)
	if !found {
		return nil, false, nil
	}
	value, err := loadValue(t.view, leaf.cells[i])
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Insert stores value under key, replacing any previous value. It reports
// whether a previous value was replaced.
func (t *Tree) Insert(key, value []byte) (bool, error) {
	if !t.view.Writable() {
		return false, dberr.ErrReadOnly
	}
	if err := t.checkKey(key); err != nil {
		return false, err
	}
	if uint64(len(value)) > math.MaxUint32 {
		return false, dberr.InvalidArgf("value of %d bytes is too large", len(value))
	}
	path, err := t.descend(key)
	if err != nil {
		return false, err
	}
	leaf := path[len(path)-1].node
	i, found := leaf.cells.find(key, t.compare)

	c, err := t.newLeafCell(key, value)
	if err != nil {
		return false, err
	}
	if found {
		old := leaf.cells[i]
		if old.overflow() {
			if err := freeOverflow(t.view, old.head, old.storedLen); err != nil {
				return false, err
			}
		}
		leaf.cells[i] = c
	} else {
		leaf.cells.insertAt(i, c)
	}
	return found, t.fix(path)
}

func (t *Tree) newLeafCell(key, value []byte) (cell, error) {
	c := cell{key: key, valueLen: uint32(len(value))}
	if leafCellSize(len(key), len(value), false) <= maxCellSize(t.pageSize()) {
		c.kind = kindInline
		c.value = value
		return c, nil
	}

	stored, compressed := encodeValue(value)
	head, err := writeOverflow(t.view, stored)
	if err != nil {
		return c, err
	}
	c.kind = kindOverflow
	if compressed {
		c.kind |= kindCompressed
	}
	c.storedLen = uint32(len(stored))
	c.head = head
	return c, nil
}

// Delete removes key and reports whether it was present.
func (t *Tree) Delete(key []byte) (bool, error) {
	if !t.view.Writable() {
		return false, dberr.ErrReadOnly
	}
	if err := t.checkKey(key); err != nil {
		return false, err
	}
	path, err := t.descend(key)
	if err != nil {
		return false, err
	}
	leaf := path[len(path)-1].node
	i, found := leaf.cells.find(key, t.compare)
	if !found {
		return false, nil
	}
	old := leaf.cells.removeAt(i)
	if old.overflow() {
		if err := freeOverflow(t.view, old.head, old.storedLen); err != nil {
			return false, err
		}
	}
	return true, t.fix(path)
}

// Scan returns a cursor over the keys in [low, high]. A nil bound is open.
func (t *Tree) Scan(low, high []byte) *Cursor {
	return newCursor(t, low, high)
}

// Count returns the number of keys in the tree.
func (t *Tree) Count() (int, error) {
	c := t.Scan(nil, nil)
	count := 0
	for c.next(false) {
		count++
	}
	return count, c.Err()
}

// Drop frees every page of the tree, the root included.
func (t *Tree) Drop() error {
	if !t.view.Writable() {
		return dberr.ErrReadOnly
	}
	return t.drop(t.root, 0)
}

func (t *Tree) drop(id file.PageID, depth int) error {
	if depth >= maxDepth {
		return dberr.Corruptf("tree at %v is deeper than %d levels", t.root, maxDepth)
	}
	n, err := t.loadNode(id)
	if err != nil {
		return err
	}
	if n.leaf {
		for _, c := range n.cells {
			if c.overflow() {
				if err := freeOverflow(t.view, c.head, c.storedLen); err != nil {
					return err
				}
			}
		}
	} else {
		for i := 0; i <= len(n.cells); i++ {
			if err := t.drop(n.childAt(i), depth+1); err != nil {
				return err
			}
		}
	}
	return t.view.FreePage(id)
}
