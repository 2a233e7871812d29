package exec

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/naveen246/kite/btree"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/pager"
	"github.com/naveen246/kite/txn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 1024

func setup(t *testing.T) (*txn.Manager, *Executor) {
	path := filepath.Join(t.TempDir(), "exec.db")
	fm, err := file.NewFileMgr(path, testPageSize, file.FileIO)
	require.NoError(t, err)
	p, err := pager.Open(fm, pager.Options{PageSize: testPageSize})
	require.NoError(t, err)
	t.Cleanup(func() {
		p.Close()
		fm.Close()
	})
	return txn.NewManager(p, txn.Options{}), NewExecutor(testPageSize, nil)
}

func run(t *testing.T, e *Executor, tx *txn.Tx, stmt Statement) Result {
	t.Helper()
	result, err := e.Exec(context.Background(), tx, stmt)
	require.NoError(t, err, "%s", stmt.Op)
	return result
}

func TestParseOp(t *testing.T) {
	for _, name := range []string{"get", "scan", "insert", "put", "update", "delete", "create", "drop"} {
		op, err := ParseOp(name)
		require.NoError(t, err)
		assert.Equal(t, name, op.String())
	}
	_, err := ParseOp("select")
	assert.True(t, dberr.IsInvalidArgument(err))
	assert.False(t, OpScan.Writes())
	assert.True(t, OpUpdate.Writes())
}

func TestValidate(t *testing.T) {
	maxKey := btree.MaxKeySize(testPageSize)
	long := make([]byte, maxKey+1)

	tests := []struct {
		name  string
		stmt  Statement
		valid bool
	}{
		{"get", Statement{Op: OpGet, Table: "t", Key: []byte("k")}, true},
		{"unknown op", Statement{Op: Op{Value: "merge"}, Table: "t", Key: []byte("k")}, false},
		{"no table", Statement{Op: OpGet, Key: []byte("k")}, false},
		{"empty key", Statement{Op: OpDelete, Table: "t"}, false},
		{"long key", Statement{Op: OpPut, Table: "t", Key: long, Value: []byte("v")}, false},
		{"missing value", Statement{Op: OpInsert, Table: "t", Key: []byte("k")}, false},
		{"empty value", Statement{Op: OpInsert, Table: "t", Key: []byte("k"), Value: []byte{}}, true},
		{"scan", Statement{Op: OpScan, Table: "t", Low: []byte("a"), High: []byte("b")}, true},
		{"scan reversed", Statement{Op: OpScan, Table: "t", Low: []byte("b"), High: []byte("a")}, false},
		{"scan negative limit", Statement{Op: OpScan, Table: "t", Limit: -1}, false},
		{"create", Statement{Op: OpCreate, Table: "t"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stmt.Validate(maxKey, btree.DefaultComparer)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, dberr.IsInvalidArgument(err), "got %v", err)
			}
		})
	}
}

func TestExec(t *testing.T) {
	m, e := setup(t)
	ctx := context.Background()

	tx, err := m.Begin(ctx, txn.ReadWrite)
	require.NoError(t, err)
	run(t, e, tx, Statement{Op: OpCreate, Table: "sample_table"})
	for _, k := range []string{"1", "2", "3", "4"} {
		result := run(t, e, tx, Statement{Op: OpInsert, Table: "sample_table", Key: []byte(k), Value: []byte("v" + k)})
		assert.Equal(t, 1, result.Affected)
	}
	_, err = e.Exec(ctx, tx, Statement{Op: OpInsert, Table: "sample_table", Key: []byte("1"), Value: []byte("dup")})
	assert.ErrorIs(t, err, dberr.ErrKeyExists)

	result := run(t, e, tx, Statement{Op: OpUpdate, Table: "sample_table", Key: []byte("2"), Value: []byte("two")})
	assert.Equal(t, 1, result.Affected)
	_, err = e.Exec(ctx, tx, Statement{Op: OpUpdate, Table: "sample_table", Key: []byte("9"), Value: []byte("x")})
	assert.ErrorIs(t, err, dberr.ErrNotFound)

	result = run(t, e, tx, Statement{Op: OpDelete, Table: "sample_table", Key: []byte("4")})
	assert.Equal(t, 1, result.Affected)
	result = run(t, e, tx, Statement{Op: OpDelete, Table: "sample_table", Key: []byte("4")})
	assert.Equal(t, 0, result.Affected)
	run(t, e, tx, Statement{Op: OpPut, Table: "sample_table", Key: []byte("5"), Value: []byte("v5")})
	require.NoError(t, tx.Commit())

	r, err := m.Begin(ctx, txn.ReadOnly)
	require.NoError(t, err)
	defer r.Rollback()

	result = run(t, e, r, Statement{Op: OpGet, Table: "sample_table", Key: []byte("2")})
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "two", string(result.Rows[0].Value))
	result = run(t, e, r, Statement{Op: OpGet, Table: "sample_table", Key: []byte("4")})
	assert.Empty(t, result.Rows)

	result = run(t, e, r, Statement{Op: OpScan, Table: "sample_table"})
	var keys []string
	for _, row := range result.Rows {
		keys = append(keys, string(row.Key))
	}
	assert.Equal(t, []string{"1", "2", "3", "5"}, keys)

	result = run(t, e, r, Statement{Op: OpScan, Table: "sample_table", Low: []byte("2"), Limit: 2})
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "2", string(result.Rows[0].Key))
	assert.Equal(t, "3", string(result.Rows[1].Key))

	_, err = e.Exec(ctx, r, Statement{Op: OpPut, Table: "sample_table", Key: []byte("6"), Value: []byte("v")})
	assert.ErrorIs(t, err, dberr.ErrReadOnly)
}

func TestExecCanceled(t *testing.T) {
	m, e := setup(t)
	tx, err := m.Begin(context.Background(), txn.ReadWrite)
	require.NoError(t, err)
	defer tx.Rollback()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Exec(ctx, tx, Statement{Op: OpCreate, Table: "t"})
	assert.ErrorIs(t, err, context.Canceled)
}
