package btree

import (
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/iter"
)

var _ iter.KeyValueIterator = (*Cursor)(nil)

// Cursor iterates over the keys of a tree in [low, high] in ascending order.
// It holds the decoded leaf it is positioned on and follows leaf links.
// A cursor opened by the writer fails once the writer modifies the database.
type Cursor struct {
	tree      *Tree
	low, high []byte
	mutations uint64

	leaf    *node
	slot    int
	started bool

	key   []byte
	value []byte
	err   error
	// boundsErr survives Reset.
	boundsErr error
}

func newCursor(t *Tree, low, high []byte) *Cursor {
	c := &Cursor{tree: t, low: low, high: high}
	if low != nil && high != nil && t.compare(low, high) > 0 {
		c.boundsErr = dberr.InvalidArgf("scan low bound is above the high bound")
	}
	c.Reset()
	return c
}

// Reset rewinds the cursor to its low bound.
func (c *Cursor) Reset() {
	c.mutations = c.tree.view.Mutations()
	c.leaf = nil
	c.slot = 0
	c.started = false
	c.key, c.value = nil, nil
	c.err = c.boundsErr
}

// Next advances to the next key and reports whether there is one.
func (c *Cursor) Next() bool {
	return c.next(true)
}

// Seek positions the cursor on the first key >= key that is within bounds.
func (c *Cursor) Seek(key []byte) bool {
	if !c.check() {
		return false
	}
	if c.low != nil && c.tree.compare(key, c.low) < 0 {
		key = c.low
	}
	c.started = true
	if err := c.seek(key); err != nil {
		c.err = err
		return false
	}
	return c.settle(true)
}

func (c *Cursor) next(loadValue bool) bool {
	if !c.check() {
		return false
	}
	if !c.started {
		c.started = true
		if err := c.seek(c.low); err != nil {
			c.err = err
			return false
		}
	} else if c.leaf != nil {
		c.slot++
	}
	return c.settle(loadValue)
}

func (c *Cursor) check() bool {
	if c.err != nil {
		return false
	}
	if c.tree.view.Mutations() != c.mutations {
		c.err = dberr.InvalidArgf("tree was modified while a scan was open")
		c.leaf = nil
		return false
	}
	return true
}

// seek loads the leaf that covers key, or the leftmost leaf for a nil key.
func (c *Cursor) seek(key []byte) error {
	t := c.tree
	id := t.root
	for depth := 0; depth < maxDepth; depth++ {
		n, err := t.loadNode(id)
		if err != nil {
			return err
		}
		if n.leaf {
			c.leaf = n
			c.slot = 0
			if key != nil {
				c.slot, _ = n.cells.find(key, t.compare)
			}
			return nil
		}
		if key == nil {
			id = n.childAt(0)
		} else {
			id = n.childAt(t.childIndex(n, key))
		}
	}
	return dberr.Corruptf("tree at %v is deeper than %d levels", t.root, maxDepth)
}

// settle moves past exhausted leaves and checks the high bound.
func (c *Cursor) settle(withValue bool) bool {
	for c.leaf != nil && c.slot >= len(c.leaf.cells) {
		if c.leaf.link == file.NoPage {
			c.leaf = nil
			break
		}
		n, err := c.tree.loadNode(c.leaf.link)
		if err != nil {
			c.err = err
			c.leaf = nil
			return false
		}
		if !n.leaf {
			c.err = dberr.Corruptf("leaf link points to interior node %v", n.id)
			c.leaf = nil
			return false
		}
		c.leaf, c.slot = n, 0
	}
	if c.leaf == nil {
		c.key, c.value = nil, nil
		return false
	}

	cell := c.leaf.cells[c.slot]
	if c.high != nil && c.tree.compare(cell.key, c.high) > 0 {
		c.leaf = nil
		c.key, c.value = nil, nil
		return false
	}
	c.key = cell.key
	c.value = nil
	if withValue {
		value, err := loadValue(c.tree.view, cell)
		if err != nil {
			c.err = err
			c.leaf = nil
			return false
		}
		c.value = value
	}
	return true
}

func (c *Cursor) Key() []byte {
	return c.key
}

func (c *Cursor) Value() []byte {
	return c.value
}

// Err returns the error that stopped the cursor, if any.
func (c *Cursor) Err() error {
	return c.err
}
