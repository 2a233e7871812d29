package exec

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/naveen246/kite/btree"
	"github.com/naveen246/kite/dberr"
)

// Tx is the transaction surface statements run against.
type Tx interface {
	Writable() bool
	Get(table string, key []byte) ([]byte, error)
	Put(table string, key, value []byte) (bool, error)
	Delete(table string, key []byte) (bool, error)
	Scan(table string, low, high []byte) (*btree.Cursor, error)
	CreateTree(table string) error
	DropTree(table string) error
}

type Row struct {
	Key   []byte
	Value []byte
}

type Result struct {
	Op   Op
	Rows []Row
	// Affected counts the keys written or removed.
	Affected int
}

type Executor struct {
	maxKeySize int
	cmp        *pebble.Comparer
}

func NewExecutor(pageSize int, cmp *pebble.Comparer) *Executor {
	if cmp == nil {
		cmp = btree.DefaultComparer
	}
	return &Executor{
		maxKeySize: btree.MaxKeySize(pageSize),
		cmp:        cmp,
	}
}

// Exec validates stmt and runs it in tx.
func (e *Executor) Exec(ctx context.Context, tx Tx, stmt Statement) (Result, error) {
	result := Result{Op: stmt.Op}
	if err := stmt.Validate(e.maxKeySize, e.cmp); err != nil {
		return result, err
	}
	if stmt.Op.Writes() && !tx.Writable() {
		return result, dberr.ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	switch stmt.Op {
	case OpGet:
		value, err := tx.Get(stmt.Table, stmt.Key)
		if errors.Is(err, dberr.ErrNotFound) {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result.Rows = []Row{{Key: stmt.Key, Value: value}}

	case OpScan:
		rows, err := e.scan(ctx, tx, stmt)
		if err != nil {
			return result, err
		}
		result.Rows = rows

	case OpInsert:
		_, err := tx.Get(stmt.Table, stmt.Key)
		switch {
		case err == nil:
			return result, dberr.ErrKeyExists
		case !errors.Is(err, dberr.ErrNotFound):
			return result, err
		}
		if _, err := tx.Put(stmt.Table, stmt.Key, stmt.Value); err != nil {
			return result, err
		}
		result.Affected = 1

	case OpPut:
		if _, err := tx.Put(stmt.Table, stmt.Key, stmt.Value); err != nil {
			return result, err
		}
		result.Affected = 1

	case OpUpdate:
		deleted, err := tx.Delete(stmt.Table, stmt.Key)
		if err != nil {
			return result, err
		}
		if !deleted {
			return result, dberr.ErrNotFound
		}
		if _, err := tx.Put(stmt.Table, stmt.Key, stmt.Value); err != nil {
			return result, err
		}
		result.Affected = 1

	case OpDelete:
		deleted, err := tx.Delete(stmt.Table, stmt.Key)
		if err != nil {
			return result, err
		}
		if deleted {
			result.Affected = 1
		}

	case OpCreate:
		if err := tx.CreateTree(stmt.Table); err != nil {
			return result, err
		}

	case OpDrop:
		if err := tx.DropTree(stmt.Table); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (e *Executor) scan(ctx context.Context, tx Tx, stmt Statement) ([]Row, error) {
	c, err := tx.Scan(stmt.Table, stmt.Low, stmt.High)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for c.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows = append(rows, Row{
			Key:   append([]byte(nil), c.Key()...),
			Value: c.Value(),
		})
		if stmt.Limit > 0 && len(rows) == stmt.Limit {
			break
		}
	}
	return rows, c.Err()
}
