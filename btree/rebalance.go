package btree

import (
	"github.com/naveen246/kite/dberr"
)

// fix writes the nodes of path back bottom-up, splitting nodes that grew
// past a page and merging or redistributing nodes that shrank below a
// quarter of one. It stops at the first level whose parent is unchanged.
func (t *Tree) fix(path []pathEntry) error {
	limit := capacity(t.pageSize())
	for level := len(path) - 1; level >= 0; level-- {
		n := path[level].node
		size := n.size()

		if level == 0 {
			switch {
			case size > limit:
				return t.splitRoot(n)
			case !n.leaf && len(n.cells) == 0:
				return t.collapseRoot(n)
			default:
				return t.writeNode(n)
			}
		}

		parent := path[level-1]
		switch {
		case size > limit:
			if err := t.split(parent.node, parent.idx, n); err != nil {
				return err
			}
		case size < limit/4 && len(parent.node.cells) > 0:
			if err := t.rebalance(parent.node, parent.idx, n); err != nil {
				return err
			}
		default:
			return t.writeNode(n)
		}
	}
	return nil
}

// splitPoint returns the index at which cs is divided into two halves of
// about equal encoded size. For interior nodes the cell at the index moves
// up to the parent, so both sides keep at least one cell.
func (t *Tree) splitPoint(n *node, cs cells) int {
	total := 0
	for _, c := range cs {
		total += n.cellSize(c)
	}
	lo, hi := 1, len(cs)-1
	if !n.leaf && len(cs) >= 3 {
		hi = len(cs) - 2
	}

	m, acc := 0, 0
	for m < len(cs) && acc*2 < total {
		acc += n.cellSize(cs[m])
		m++
	}
	return min(max(m, lo), hi)
}

// divide moves the upper half of n into a new right sibling and returns the
// separator key between the two.
func (t *Tree) divide(n *node) ([]byte, *node, error) {
	id, err := t.view.AllocatePage()
	if err != nil {
		return nil, nil, err
	}
	right := &node{id: id, leaf: n.leaf}
	m := t.splitPoint(n, n.cells)

	var sep []byte
	if n.leaf {
		right.cells = append(cells(nil), n.cells[m:]...)
		right.link = n.link
		n.link = right.id
		sep = right.cells[0].key
	} else {
		up := n.cells[m]
		right.cells = append(cells(nil), n.cells[m+1:]...)
		right.link = n.link
		n.link = up.child
		sep = up.key
	}
	n.cells.truncate(m)

	if err := t.writeNode(n); err != nil {
		return nil, nil, err
	}
	if err := t.writeNode(right); err != nil {
		return nil, nil, err
	}
	return sep, right, nil
}

// split divides the child at index ci of parent and links the new sibling
// into parent. parent is written by the caller.
func (t *Tree) split(parent *node, ci int, n *node) error {
	sep, right, err := t.divide(n)
	if err != nil {
		return err
	}
	parent.setChildAt(ci, right.id)
	parent.cells.insertAt(ci, cell{key: sep, child: n.id})
	return nil
}

// splitRoot moves the content of the root into a new child, splits that
// child and turns the root into an interior node over the two halves.
func (t *Tree) splitRoot(root *node) error {
	id, err := t.view.AllocatePage()
	if err != nil {
		return err
	}
	left := &node{id: id, leaf: root.leaf, cells: root.cells, link: root.link}
	sep, right, err := t.divide(left)
	if err != nil {
		return err
	}
	*root = node{
		id:    root.id,
		cells: cells{{key: sep, child: left.id}},
		link:  right.id,
	}
	return t.writeNode(root)
}

// collapseRoot replaces an interior root that has a single child with the
// content of that child, shrinking the tree by one level.
func (t *Tree) collapseRoot(root *node) error {
	for !root.leaf && len(root.cells) == 0 {
		child, err := t.loadNode(root.link)
		if err != nil {
			return err
		}
		root.leaf = child.leaf
		root.cells = child.cells
		root.link = child.link
		if err := t.view.FreePage(child.id); err != nil {
			return err
		}
	}
	return t.writeNode(root)
}

// rebalance merges the underfull child n at index ci of parent with a
// sibling, or evens out the two when they do not fit in one page.
func (t *Tree) rebalance(parent *node, ci int, n *node) error {
	si := ci
	siblingIdx := ci + 1
	if ci > 0 {
		si = ci - 1
		siblingIdx = ci - 1
	}
	sibling, err := t.loadNode(parent.childAt(siblingIdx))
	if err != nil {
		return err
	}
	if sibling.leaf != n.leaf {
		return dberr.Corruptf("%v and its sibling %v under %v are on different levels", n.id, sibling.id, parent.id)
	}

	left, right := n, sibling
	if siblingIdx < ci {
		left, right = sibling, n
	}

	combined := make(cells, 0, len(left.cells)+len(right.cells)+1)
	combined = append(combined, left.cells...)
	if !left.leaf {
		combined = append(combined, cell{key: parent.cells[si].key, child: left.link})
	}
	combined = append(combined, right.cells...)

	merged := &node{id: left.id, leaf: left.leaf, cells: combined, link: right.link}
	if merged.size() <= capacity(t.pageSize()) {
		if err := t.writeNode(merged); err != nil {
			return err
		}
		if err := t.view.FreePage(right.id); err != nil {
			return err
		}
		parent.cells.removeAt(si)
		parent.setChildAt(si, left.id)
		return nil
	}

	m := t.splitPoint(merged, combined)
	if left.leaf {
		left.cells = combined[:m:m]
		right.cells = combined[m:]
		left.link = right.id
		parent.cells[si].key = right.cells[0].key
	} else {
		left.cells = combined[:m:m]
		left.link = combined[m].child
		right.cells = combined[m+1:]
		parent.cells[si].key = combined[m].key
	}
	if err := t.writeNode(left); err != nil {
		return err
	}
	return t.writeNode(right)
}
