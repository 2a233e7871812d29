package txn

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/pager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPageSize = 512

var errInjected = errors.New("injected failure")

// faultyFile fails Sync on demand.
type faultyFile struct {
	file.File
	failSync bool
}

func (f *faultyFile) Sync() error {
	if f.failSync {
		return errInjected
	}
	return f.File.Sync()
}

type testDB struct {
	path    string
	walFile *faultyFile
	pager   *pager.Pager
	m       *Manager
	commits []int
}

func openTestDB(t *testing.T, path string, opts Options) *testDB {
	db, err := file.OpenFile(path)
	require.NoError(t, err)
	walFile, err := file.OpenFile(file.WALPath(path))
	require.NoError(t, err)
	faulty := &faultyFile{File: walFile}

	fm, err := file.NewFileMgrWithFiles(path, db, faulty, testPageSize, file.FileIO)
	require.NoError(t, err)
	p, err := pager.Open(fm, pager.Options{PageSize: testPageSize, CacheSize: 32})
	require.NoError(t, err)

	tdb := &testDB{path: path, walFile: faulty, pager: p}
	opts.OnCommit = func(frames int) { tdb.commits = append(tdb.commits, frames) }
	tdb.m = NewManager(p, opts)
	t.Cleanup(func() {
		p.Close()
		fm.Close()
	})
	return tdb
}

func setup(t *testing.T) *testDB {
	return openTestDB(t, filepath.Join(t.TempDir(), "txn.db"), Options{})
}

func begin(t *testing.T, m *Manager, mode Mode) *Tx {
	t.Helper()
	tx, err := m.Begin(context.Background(), mode)
	require.NoError(t, err)
	return tx
}

// createUsers commits a tree "users" holding 1 -> Alice.
func createUsers(t *testing.T, m *Manager) {
	tx := begin(t, m, ReadWrite)
	require.NoError(t, tx.CreateTree("users"))
	_, err := tx.Put("users", []byte("1"), []byte("Alice,25"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func scanAll(t *testing.T, tx *Tx, name string) map[string]string {
	t.Helper()
	c, err := tx.Scan(name, nil, nil)
	require.NoError(t, err)
	rows := map[string]string{}
	for c.Next() {
		rows[string(c.Key())] = string(c.Value())
	}
	require.NoError(t, c.Err())
	return rows
}

func TestStates(t *testing.T) {
	db := setup(t)

	r := begin(t, db.m, ReadOnly)
	assert.Equal(t, Active, r.State())
	w := begin(t, db.m, ReadWrite)
	assert.Equal(t, WriteActive, w.State())
	assert.True(t, db.m.WriterActive())

	require.NoError(t, w.Commit())
	assert.Equal(t, Closed, w.State())
	assert.False(t, db.m.WriterActive())
	require.NoError(t, r.Commit())
	assert.Equal(t, Closed, r.State())

	assert.ErrorIs(t, w.Commit(), dberr.ErrTxDone)
	assert.ErrorIs(t, w.Rollback(), dberr.ErrTxDone)
	_, err := w.Get("users", []byte("1"))
	assert.ErrorIs(t, err, dberr.ErrTxDone)
	_, err = r.Put("users", []byte("1"), nil)
	assert.ErrorIs(t, err, dberr.ErrTxDone)
}

func TestSingleWriter(t *testing.T) {
	db := setup(t)

	w := begin(t, db.m, ReadWrite)
	_, err := db.m.Begin(context.Background(), ReadWrite)
	assert.True(t, dberr.IsBusy(err))

	// readers are never blocked
	r := begin(t, db.m, ReadOnly)
	require.NoError(t, r.Rollback())

	require.NoError(t, w.Rollback())
	w2 := begin(t, db.m, ReadWrite)
	require.NoError(t, w2.Rollback())
}

func TestBeginWaitsForWriter(t *testing.T) {
	db := openTestDB(t, filepath.Join(t.TempDir(), "txn.db"), Options{BusyTimeout: 5 * time.Second})

	w := begin(t, db.m, ReadWrite)
	committed := make(chan error, 1)
	go func() {
		time.Sleep(20 * time.Millisecond)
		committed <- w.Commit()
	}()
	w2 := begin(t, db.m, ReadWrite)
	require.NoError(t, <-committed)
	require.NoError(t, w2.Rollback())
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	db := setup(t)
	createUsers(t, db.m)

	r := begin(t, db.m, ReadOnly)
	defer r.Rollback()
	_, err := r.Put("users", []byte("2"), []byte("Bob"))
	assert.ErrorIs(t, err, dberr.ErrReadOnly)
	_, err = r.Delete("users", []byte("1"))
	assert.ErrorIs(t, err, dberr.ErrReadOnly)
	assert.ErrorIs(t, r.CreateTree("t"), dberr.ErrReadOnly)
	assert.ErrorIs(t, r.DropTree("users"), dberr.ErrReadOnly)

	value, err := r.Get("users", []byte("1"))
	require.NoError(t, err)
	assert.Equal(t, "Alice,25", string(value))
	_, err = r.Get("users", []byte("2"))
	assert.ErrorIs(t, err, dberr.ErrNotFound)
	_, err = r.Get("missing", []byte("1"))
	assert.ErrorIs(t, err, dberr.ErrTreeNotFound)
}

func TestAliceScenario(t *testing.T) {
	db := setup(t)
	createUsers(t, db.m)

	w := begin(t, db.m, ReadWrite)
	reader := begin(t, db.m, ReadOnly)
	_, err := w.Put("users", []byte("1"), []byte("Alice,90"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"1": "Alice,25"}, scanAll(t, reader, "users"))
	assert.Equal(t, map[string]string{"1": "Alice,90"}, scanAll(t, w, "users"))

	require.NoError(t, w.Rollback())
	assert.Equal(t, map[string]string{"1": "Alice,25"}, scanAll(t, reader, "users"))
	require.NoError(t, reader.Commit())

	fresh := begin(t, db.m, ReadOnly)
	defer fresh.Rollback()
	assert.Equal(t, map[string]string{"1": "Alice,25"}, scanAll(t, fresh, "users"))
}

func TestIsolationAcrossCommitAndCheckpoint(t *testing.T) {
	db := setup(t)
	createUsers(t, db.m)

	reader := begin(t, db.m, ReadOnly)
	w := begin(t, db.m, ReadWrite)
	for _, k := range []string{"2", "3", "4"} {
		_, err := w.Put("users", []byte(k), []byte("new"))
		require.NoError(t, err)
	}
	_, err := w.Delete("users", []byte("1"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	result, err := db.m.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Reset)

	assert.Equal(t, map[string]string{"1": "Alice,25"}, scanAll(t, reader, "users"))
	require.NoError(t, reader.Rollback())

	latest := begin(t, db.m, ReadOnly)
	defer latest.Rollback()
	assert.Equal(t, map[string]string{"2": "new", "3": "new", "4": "new"}, scanAll(t, latest, "users"))
}

func TestCheckpointExcludesWriter(t *testing.T) {
	db := setup(t)
	createUsers(t, db.m)

	w := begin(t, db.m, ReadWrite)
	_, err := db.m.Checkpoint(context.Background())
	assert.True(t, dberr.IsBusy(err))
	require.NoError(t, w.Rollback())

	result, err := db.m.Checkpoint(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Reset)
	assert.Equal(t, 0, db.pager.WAL().FrameCount())
}

func TestFailedCommitRollsBack(t *testing.T) {
	db := setup(t)
	createUsers(t, db.m)

	w := begin(t, db.m, ReadWrite)
	_, err := w.Put("users", []byte("2"), []byte("Bob"))
	require.NoError(t, err)
	db.walFile.failSync = true
	err = w.Commit()
	assert.True(t, dberr.IsIO(err))
	assert.Equal(t, Closed, w.State())
	assert.False(t, db.m.WriterActive())
	db.walFile.failSync = false

	r := begin(t, db.m, ReadOnly)
	defer r.Rollback()
	assert.Equal(t, map[string]string{"1": "Alice,25"}, scanAll(t, r, "users"))

	// the handle stays usable after an IO error
	w2 := begin(t, db.m, ReadWrite)
	_, err = w2.Put("users", []byte("3"), []byte("Carol"))
	require.NoError(t, err)
	require.NoError(t, w2.Commit())
}

func TestCommitsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txn.db")
	db := openTestDB(t, path, Options{})
	createUsers(t, db.m)
	assert.Len(t, db.commits, 1)

	w := begin(t, db.m, ReadWrite)
	_, err := w.Put("users", []byte("2"), []byte("Bob"))
	require.NoError(t, err)
	require.NoError(t, w.Rollback())

	db2 := openTestDB(t, path, Options{})
	r := begin(t, db2.m, ReadOnly)
	defer r.Rollback()
	assert.Equal(t, map[string]string{"1": "Alice,25"}, scanAll(t, r, "users"))
	names, err := r.Trees()
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, names)
}

func TestCorruptionPoisonsManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "txn.db")
	db := openTestDB(t, path, Options{})
	createUsers(t, db.m)
	_, err := db.m.Checkpoint(context.Background())
	require.NoError(t, err)

	r := begin(t, db.m, ReadOnly)
	root, err := r.View().Root("users")
	require.NoError(t, err)
	require.NoError(t, r.Rollback())

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("garbage"), int64(root)*testPageSize+20)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	db2 := openTestDB(t, path, Options{})
	r = begin(t, db2.m, ReadOnly)
	_, err = r.Get("users", []byte("1"))
	assert.True(t, dberr.IsCorruption(err))
	assert.Equal(t, Closed, r.State())

	_, err = db2.m.Begin(context.Background(), ReadOnly)
	assert.True(t, dberr.IsCorruption(err))
	assert.True(t, dberr.IsCorruption(db2.m.Err()))
}

func TestTreeLifecycle(t *testing.T) {
	db := setup(t)
	createUsers(t, db.m)

	w := begin(t, db.m, ReadWrite)
	assert.ErrorIs(t, w.CreateTree("users"), dberr.ErrTreeExists)
	assert.True(t, dberr.IsInvalidArgument(w.CreateTree("")))
	require.NoError(t, w.CreateTree("orders"))
	names, err := w.Trees()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "users"}, names)

	require.NoError(t, w.DropTree("users"))
	_, err = w.Get("users", []byte("1"))
	assert.ErrorIs(t, err, dberr.ErrTreeNotFound)
	require.NoError(t, w.Commit())

	r := begin(t, db.m, ReadOnly)
	defer r.Rollback()
	names, err = r.Trees()
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, names)
	count, err := r.Count("orders")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestClose(t *testing.T) {
	db := setup(t)
	w := begin(t, db.m, ReadWrite)
	assert.True(t, dberr.IsBusy(db.m.Close()))
	require.NoError(t, w.Commit())

	require.NoError(t, db.m.Close())
	_, err := db.m.Begin(context.Background(), ReadOnly)
	assert.ErrorIs(t, err, dberr.ErrClosed)
	assert.ErrorIs(t, db.m.Close(), dberr.ErrClosed)
}
