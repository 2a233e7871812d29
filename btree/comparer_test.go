package btree

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareWithSlash(t *testing.T) {
	assert.Equal(t, -1, compareWithSlash([]byte("aaa"), []byte("bbb")))
	assert.Equal(t, 0, compareWithSlash([]byte("aaa"), []byte("aaa")))
	assert.Equal(t, +1, compareWithSlash([]byte("bbb"), []byte("aaa")))

	assert.Equal(t, -1, compareWithSlash([]byte("aaa"), []byte("/aaa")))
	assert.Equal(t, +1, compareWithSlash([]byte("/aaa"), []byte("aaa")))

	assert.Equal(t, -1, compareWithSlash([]byte("aaa/bbb"), []byte("bbb/bbb")))
	assert.Equal(t, +1, compareWithSlash([]byte("bbb/bbb"), []byte("aaa/bbb")))

	assert.Equal(t, 0, compareWithSlash([]byte("aaa/bbb"), []byte("aaa/bbb")))
	assert.Equal(t, -1, compareWithSlash([]byte("aaa/bbb"), []byte("aaa/bbbb")))
	assert.Equal(t, +1, compareWithSlash([]byte("aaa/bbbb"), []byte("aaa/bbb")))

	assert.Equal(t, +1, compareWithSlash([]byte("/a/b/a/a/a"), []byte("/a/b/a/b")))
	assert.Equal(t, +1, compareWithSlash([]byte("aaaaa"), []byte("")))
	assert.Equal(t, -1, compareWithSlash([]byte(""), []byte("aaaaaa")))
	assert.Equal(t, 0, compareWithSlash([]byte(""), []byte("")))
}

func TestComparerByName(t *testing.T) {
	c, ok := ComparerByName(DefaultComparer.Name)
	assert.True(t, ok)
	assert.Equal(t, DefaultComparer, c)

	c, ok = ComparerByName("kite-slash-spans")
	assert.True(t, ok)
	assert.Equal(t, +1, c.Compare([]byte("a/b/c"), []byte("ab")))
	assert.Equal(t, -1, c.Compare([]byte("ab"), []byte("a/b")))
	assert.Equal(t, -1, c.Compare([]byte("a/b"), []byte("a/b/c")))

	_, ok = ComparerByName("nope")
	assert.False(t, ok)
}

func TestSlashSpanComparerHelpers(t *testing.T) {
	c := SlashSpanComparer
	keys := [][]byte{
		[]byte(""), []byte("a"), []byte("ab"), []byte("b"), []byte("a/b"),
		[]byte("a/c"), []byte("ab/a"), []byte("a/b/c"), []byte("z"), []byte("a/"),
	}

	for _, a := range keys {
		succ := c.ImmediateSuccessor(nil, a)
		assert.Equal(t, -1, c.Compare(a, succ), "%q", a)
		assert.GreaterOrEqual(t, c.Compare(c.Successor(nil, a), a), 0, "%q", a)

		for _, b := range keys {
			cmp := c.Compare(a, b)
			assert.Equal(t, cmp == 0, c.Equal(a, b), "%q %q", a, b)
			if cmp < 0 {
				// nothing sorts strictly between a and its immediate successor
				assert.LessOrEqual(t, c.Compare(succ, b), 0, "%q %q", a, b)

				sep := c.Separator(nil, a, b)
				assert.LessOrEqual(t, c.Compare(a, sep), 0, "%q %q", a, b)
				assert.Equal(t, -1, c.Compare(sep, b), "%q %q", a, b)
			}
			if c.AbbreviatedKey(a) < c.AbbreviatedKey(b) {
				assert.Equal(t, -1, cmp, "%q %q", a, b)
			}
		}
	}
}
