package server

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/naveen246/kite/btree"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/exec"
	"github.com/naveen246/kite/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func testOptions() *Options {
	opts := DefaultOptions()
	opts.PageSize = 1024
	opts.CacheSize = 32
	return opts
}

func openDB(t *testing.T, path string, opts *Options) *DB {
	db, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func dbPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "kite.db")
}

func key(i int) []byte {
	return []byte(fmt.Sprintf("%08d", i))
}

func TestReopenRoundTrip(t *testing.T) {
	for _, mode := range []file.LoadingMode{file.FileIO, file.MemoryMap} {
		t.Run(fmt.Sprint(mode), func(t *testing.T) {
			path := dbPath(t)
			opts := testOptions()
			opts.LoadingMode = mode
			db, err := Open(path, opts)
			require.NoError(t, err)

			const n = 1500
			require.NoError(t, db.Update(ctx, func(tx *Tx) error {
				if err := tx.CreateTree("t"); err != nil {
					return err
				}
				for i := 0; i < n; i++ {
					if err := Put(tx, "t", key(i), []byte(fmt.Sprintf("value %d", i))); err != nil {
						return err
					}
				}
				return nil
			}))
			require.NoError(t, db.Close())

			db = openDB(t, path, opts)
			require.NoError(t, db.View(ctx, func(tx *Tx) error {
				count, err := tx.Count("t")
				require.NoError(t, err)
				assert.Equal(t, n, count)
				for _, i := range []int{0, 1, 700, n - 1} {
					value, err := Get(tx, "t", key(i))
					require.NoError(t, err)
					assert.Equal(t, fmt.Sprintf("value %d", i), string(value))
				}
				return nil
			}))
		})
	}
}

func TestAliceScenario(t *testing.T) {
	db := openDB(t, dbPath(t), testOptions())
	table := "sample_table"
	alice := func(age int) []byte {
		return []byte(fmt.Sprintf(`{"id":1,"name":"Alice","age":%d}`, age))
	}

	_, err := db.Run(ctx, exec.Statement{Op: exec.OpCreate, Table: table})
	require.NoError(t, err)
	_, err = db.Run(ctx, exec.Statement{Op: exec.OpInsert, Table: table, Key: key(1), Value: alice(25)})
	require.NoError(t, err)

	w, err := db.Begin(ctx, Write)
	require.NoError(t, err)
	reader, err := db.Begin(ctx, Read)
	require.NoError(t, err)

	_, err = db.Exec(ctx, w, exec.Statement{Op: exec.OpUpdate, Table: table, Key: key(1), Value: alice(90)})
	require.NoError(t, err)

	result, err := db.Exec(ctx, reader, exec.Statement{Op: exec.OpScan, Table: table})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, alice(25), result.Rows[0].Value)

	require.NoError(t, Rollback(w))

	result, err = db.Run(ctx, exec.Statement{Op: exec.OpScan, Table: table})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, alice(25), result.Rows[0].Value)
	require.NoError(t, reader.Commit())
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := openDB(t, dbPath(t), testOptions())
	errStop := errors.New("stop")

	err := db.Update(ctx, func(tx *Tx) error {
		require.NoError(t, tx.CreateTree("t"))
		return errStop
	})
	assert.ErrorIs(t, err, errStop)

	assert.Panics(t, func() {
		db.Update(ctx, func(tx *Tx) error {
			require.NoError(t, tx.CreateTree("t"))
			panic("boom")
		})
	})

	require.NoError(t, db.View(ctx, func(tx *Tx) error {
		names, err := tx.Trees()
		require.NoError(t, err)
		assert.Empty(t, names)
		return nil
	}))

	// the writer slot was released both times
	require.NoError(t, db.Update(ctx, func(tx *Tx) error { return tx.CreateTree("t") }))
}

func TestSecondWriterIsBusy(t *testing.T) {
	opts := testOptions()
	reg := prometheus.NewRegistry()
	opts.Registerer = reg
	db := openDB(t, dbPath(t), opts)

	w, err := db.Begin(ctx, Write)
	require.NoError(t, err)
	_, err = db.Begin(ctx, Write)
	assert.True(t, dberr.IsBusy(err))
	assert.True(t, dberr.IsBusy(db.Close()))
	require.NoError(t, w.Commit())

	assert.Equal(t, 1.0, testutil.ToFloat64(db.Metrics().Busy))
	assert.Equal(t, 1.0, testutil.ToFloat64(db.Metrics().Commits))
}

func TestAutomaticCheckpoint(t *testing.T) {
	opts := testOptions()
	opts.CheckpointThreshold = 10
	db := openDB(t, dbPath(t), opts)

	require.NoError(t, db.Update(ctx, func(tx *Tx) error { return tx.CreateTree("t") }))
	for i := 0; i < 20; i++ {
		require.NoError(t, db.Update(ctx, func(tx *Tx) error {
			return Put(tx, "t", key(i), []byte("v"))
		}))
	}

	assert.Eventually(t, func() bool {
		stats, err := db.Stats()
		return err == nil && stats.Backfilled > 0 && stats.WALFrames < opts.CheckpointThreshold
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReadersDuringAutomaticCheckpoints(t *testing.T) {
	opts := testOptions()
	opts.CacheSize = 64
	opts.CheckpointThreshold = 10
	opts.BusyTimeout = 5 * time.Second
	db := openDB(t, dbPath(t), opts)
	require.NoError(t, db.Update(ctx, func(tx *Tx) error { return tx.CreateTree("t") }))

	// every commit adds key(n) and sets "count" to n+1
	readCount := func(tx *Tx) (int, error) {
		value, err := Get(tx, "t", []byte("count"))
		if errors.Is(err, dberr.ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(string(value))
	}

	var done atomic.Bool
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !done.Load() {
				err := db.View(ctx, func(tx *Tx) error {
					n, err := readCount(tx)
					if err != nil {
						return err
					}
					if n > 0 {
						if _, err := Get(tx, "t", key(n-1)); err != nil {
							return err
						}
					}
					if _, err := Get(tx, "t", key(n)); !errors.Is(err, dberr.ErrNotFound) {
						return fmt.Errorf("key %d visible before its commit: %v", n, err)
					}
					count, err := tx.Count("t")
					if err != nil {
						return err
					}
					if n > 0 && count != n+1 {
						return fmt.Errorf("snapshot with count %d holds %d keys", n, count)
					}
					return nil
				})
				if !assert.NoError(t, err) {
					return
				}
			}
		}()
	}

	const commits = 300
	for i := 0; i < commits; i++ {
		err := db.Update(ctx, func(tx *Tx) error {
			if err := Put(tx, "t", key(i), []byte("v")); err != nil {
				return err
			}
			return Put(tx, "t", []byte("count"), []byte(strconv.Itoa(i+1)))
		})
		require.NoError(t, err)
	}
	done.Store(true)
	wg.Wait()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(db.Metrics().Checkpoints) > 0
	}, 5*time.Second, 10*time.Millisecond)

	result, err := db.Checkpoint(ctx)
	require.NoError(t, err)
	assert.True(t, result.Reset)
	require.NoError(t, db.View(ctx, func(tx *Tx) error {
		n, err := readCount(tx)
		assert.Equal(t, commits, n)
		return err
	}))
}

func TestManualCheckpointKeepsOldSnapshot(t *testing.T) {
	opts := testOptions()
	opts.CheckpointThreshold = 0
	db := openDB(t, dbPath(t), opts)

	require.NoError(t, db.Update(ctx, func(tx *Tx) error {
		if err := tx.CreateTree("t"); err != nil {
			return err
		}
		return Put(tx, "t", key(1), []byte("old"))
	}))
	reader, err := db.Begin(ctx, Read)
	require.NoError(t, err)
	require.NoError(t, db.Update(ctx, func(tx *Tx) error {
		return Put(tx, "t", key(1), []byte("new"))
	}))

	result, err := db.Checkpoint(ctx)
	require.NoError(t, err)
	assert.False(t, result.Reset)
	value, err := Get(reader, "t", key(1))
	require.NoError(t, err)
	assert.Equal(t, "old", string(value))
	require.NoError(t, reader.Rollback())

	result, err = db.Checkpoint(ctx)
	require.NoError(t, err)
	assert.True(t, result.Reset)
	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.WALFrames)
	assert.Equal(t, 0, stats.OpenSnapshots)
	assert.Equal(t, []string{"t"}, stats.Trees)
}

func TestComparerMustMatch(t *testing.T) {
	path := dbPath(t)
	opts := testOptions()
	opts.Comparer = btree.SlashSpanComparer
	db, err := Open(path, opts)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	opts = testOptions()
	opts.Comparer = btree.DefaultComparer
	_, err = Open(path, opts)
	assert.True(t, dberr.IsInvalidArgument(err))

	// without a comparer the stored one is used
	db = openDB(t, path, testOptions())
	assert.Equal(t, btree.SlashSpanComparer.Name, db.Comparer().Name)
}

func TestClosedDB(t *testing.T) {
	db, err := Open(dbPath(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 4096, db.PageSize())
	require.NoError(t, db.Close())

	_, err = db.Begin(ctx, Read)
	assert.ErrorIs(t, err, dberr.ErrClosed)
	assert.ErrorIs(t, db.Close(), dberr.ErrClosed)
}

func TestHandleFunctions(t *testing.T) {
	db := openDB(t, dbPath(t), testOptions())

	tx, err := db.Begin(ctx, Write)
	require.NoError(t, err)
	require.NoError(t, tx.CreateTree("t"))
	for i := 0; i < 5; i++ {
		require.NoError(t, Put(tx, "t", key(i), []byte("v")))
	}
	existed, err := Delete(tx, "t", key(2))
	require.NoError(t, err)
	assert.True(t, existed)
	existed, err = Delete(tx, "t", key(2))
	require.NoError(t, err)
	assert.False(t, existed)
	require.NoError(t, Commit(tx))
	assert.ErrorIs(t, Commit(tx), dberr.ErrTxDone)

	tx, err = db.Begin(ctx, Read)
	require.NoError(t, err)
	c, err := Scan(tx, "t", key(1), key(3))
	require.NoError(t, err)
	var keys []string
	for c.Next() {
		keys = append(keys, string(c.Key()))
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []string{string(key(1)), string(key(3))}, keys)

	_, err = Get(tx, "t", key(2))
	assert.ErrorIs(t, err, dberr.ErrNotFound)
	require.NoError(t, Rollback(tx))
	assert.ErrorIs(t, Rollback(tx), dberr.ErrTxDone)
}
