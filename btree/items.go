package btree

import "sort"

type cells []cell

func (s *cells) insertAt(index int, c cell) {
	*s = append(*s, cell{})
	if index < len(*s) {
		copy((*s)[index+1:], (*s)[index:])
	}
	(*s)[index] = c
}

func (s *cells) removeAt(index int) cell {
	c := (*s)[index]
	copy((*s)[index:], (*s)[index+1:])
	size := len(*s)
	(*s)[size-1] = cell{}
	*s = (*s)[:size-1]
	return c
}

// truncate drops every cell from index on.
func (s *cells) truncate(index int) {
	var toClear cells
	*s, toClear = (*s)[:index], (*s)[index:]
	for i := range toClear {
		toClear[i] = cell{}
	}
}

// find returns the index of the first cell whose key is >= key and whether
// that key is equal to key.
func (s cells) find(key []byte, compare func(a, b []byte) int) (index int, found bool) {
	i := sort.Search(len(s), func(i int) bool {
		return compare(s[i].key, key) >= 0
	})
	if i < len(s) && compare(s[i].key, key) == 0 {
		return i, true
	}
	return i, false
}
