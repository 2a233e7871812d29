package btree

import (
	"bytes"

	"github.com/cockroachdb/pebble"
)

var (
	// DefaultComparer orders keys bytewise.
	DefaultComparer = pebble.DefaultComparer

	// SlashSpanComparer compares keys one '/' separated span at a time. When
	// the spans are equal so far, a key that ends sorts before one that
	// continues: "ab" < "a/b" < "a/b/c".
	SlashSpanComparer = &pebble.Comparer{
		Compare: compareWithSlash,
		Equal:   bytes.Equal,
		// abbreviations and shortened separators follow byte order, not span
		// order, so none are derived
		AbbreviatedKey: func(key []byte) uint64 { return 0 },
		FormatKey:      pebble.DefaultComparer.FormatKey,
		FormatValue:    pebble.DefaultComparer.FormatValue,
		Separator: func(dst, a, b []byte) []byte {
			return append(dst, a...)
		},
		Split: pebble.DefaultComparer.Split,
		Successor: func(dst, a []byte) []byte {
			return append(dst, a...)
		},
		// a trailing zero byte extends the last span, which sorts directly after a
		ImmediateSuccessor: func(dst, a []byte) []byte {
			return append(append(dst, a...), 0)
		},
		Name: "kite-slash-spans",
	}
)

// ComparerByName returns the built in comparer stored under name in a
// database header.
func ComparerByName(name string) (*pebble.Comparer, bool) {
	for _, c := range []*pebble.Comparer{DefaultComparer, SlashSpanComparer} {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func compareWithSlash(a, b []byte) int {
	for len(a) > 0 && len(b) > 0 {
		idxA, idxB := bytes.IndexByte(a, '/'), bytes.IndexByte(b, '/')
		switch {
		case idxA < 0 && idxB < 0:
			return bytes.Compare(a, b)
		case idxA < 0 && idxB >= 0:
			return -1
		case idxA >= 0 && idxB < 0:
			return +1
		}

		// At this point, both slices have '/'
		spanA, spanB := a[:idxA], b[:idxB]
		spanRes := bytes.Compare(spanA, spanB)
		if spanRes != 0 {
			return spanRes
		}

		a, b = a[idxA+1:], b[idxB+1:]
	}

	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return +1
	}

	return 0
}
