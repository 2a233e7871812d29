package file

import "fmt"

// PageID is the number of a fixed-size page in the main database file.
// Page 0 holds the database header, so 0 doubles as the "no page" link value.
type PageID uint32

const NoPage PageID = 0

func (p PageID) String() string {
	return fmt.Sprintf("page %d", uint32(p))
}

// Offset returns the byte offset of the page in a file of pageSize pages.
func (p PageID) Offset(pageSize int) int64 {
	return int64(p) * int64(pageSize)
}
