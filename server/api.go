package server

import (
	"github.com/naveen246/kite/btree"
)

// The functions below mirror the methods of Tx for callers that prefer the
// handle-first style.

func Commit(tx *Tx) error {
	return tx.Commit()
}

func Rollback(tx *Tx) error {
	return tx.Rollback()
}

func Get(tx *Tx, table string, key []byte) ([]byte, error) {
	return tx.Get(table, key)
}

func Put(tx *Tx, table string, key, value []byte) error {
	_, err := tx.Put(table, key, value)
	return err
}

func Delete(tx *Tx, table string, key []byte) (bool, error) {
	return tx.Delete(table, key)
}

// Scan returns a cursor over [low, high] of table. A nil bound is open.
func Scan(tx *Tx, table string, low, high []byte) (*btree.Cursor, error) {
	return tx.Scan(table, low, high)
}
