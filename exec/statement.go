// Package exec translates a small statement vocabulary into calls on a
// transaction.
package exec

import (
	"github.com/cockroachdb/pebble"
	"github.com/naveen246/kite/dberr"
	"github.com/orsinium-labs/enum"
)

// Op is the kind of a statement.
type Op enum.Member[string]

var (
	OpGet    = Op{Value: "get"}
	OpScan   = Op{Value: "scan"}
	OpInsert = Op{Value: "insert"}
	OpPut    = Op{Value: "put"}
	OpUpdate = Op{Value: "update"}
	OpDelete = Op{Value: "delete"}
	OpCreate = Op{Value: "create"}
	OpDrop   = Op{Value: "drop"}

	Ops = enum.New(OpGet, OpScan, OpInsert, OpPut, OpUpdate, OpDelete, OpCreate, OpDrop)
)

func (o Op) String() string {
	return o.Value
}

// Writes reports whether the op needs a write transaction.
func (o Op) Writes() bool {
	return o != OpGet && o != OpScan
}

// ParseOp returns the op with the given name.
func ParseOp(name string) (Op, error) {
	op := Ops.Parse(name)
	if op == nil {
		return Op{}, dberr.InvalidArgf("unknown operation %q", name)
	}
	return *op, nil
}

// Statement is one operation on a table. Which fields are used depends on Op.
type Statement struct {
	Op    Op
	Table string
	Key   []byte
	Value []byte
	// Low and High bound a scan, both inclusive. nil is open.
	Low  []byte
	High []byte
	// Limit caps the rows returned by a scan. Zero means no limit.
	Limit int
}

// Validate checks the statement without touching the database.
func (s Statement) Validate(maxKeySize int, cmp *pebble.Comparer) error {
	if !Ops.Contains(s.Op) {
		return dberr.InvalidArgf("unknown operation %q", s.Op.Value)
	}
	if s.Table == "" {
		return dberr.InvalidArgf("%s: table name is empty", s.Op)
	}

	switch s.Op {
	case OpGet, OpDelete:
		return checkKey(s.Op, s.Key, maxKeySize)
	case OpInsert, OpPut, OpUpdate:
		if err := checkKey(s.Op, s.Key, maxKeySize); err != nil {
			return err
		}
		if s.Value == nil {
			return dberr.InvalidArgf("%s: value is missing", s.Op)
		}
	case OpScan:
		if s.Limit < 0 {
			return dberr.InvalidArgf("scan: negative limit %d", s.Limit)
		}
		if len(s.Low) > maxKeySize || len(s.High) > maxKeySize {
			return dberr.InvalidArgf("scan: bound exceeds the maximum key size of %d", maxKeySize)
		}
		if s.Low != nil && s.High != nil && cmp.Compare(s.Low, s.High) > 0 {
			return dberr.InvalidArgf("scan: low bound %q is above high bound %q", s.Low, s.High)
		}
	}
	return nil
}

func checkKey(op Op, key []byte, maxKeySize int) error {
	if len(key) == 0 {
		return dberr.InvalidArgf("%s: key is empty", op)
	}
	if len(key) > maxKeySize {
		return dberr.InvalidArgf("%s: key of %d bytes exceeds the maximum of %d", op, len(key), maxKeySize)
	}
	return nil
}
