// Package iter holds the iterator contracts shared across kite packages.
package iter

// Iterator walks a sequence of raw records, such as the frames of a log file.
type Iterator interface {
	HasNext() bool
	Next() []byte
}

// KeyValueIterator walks key/value pairs in key order.
//
//	for it.Next() {
//		use(it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
//
// Key and Value are valid until the following call to Next.
type KeyValueIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
}
