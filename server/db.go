// Package server is the programmatic surface of a kite database: open a file,
// run transactions and statements against it, checkpoint it.
package server

import (
	"context"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/naveen246/kite/btree"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/exec"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/metrics"
	"github.com/naveen246/kite/pager"
	"github.com/naveen246/kite/txn"
	"github.com/naveen246/kite/wal"
	"github.com/sasha-s/go-deadlock"
)

type (
	Tx   = txn.Tx
	Mode = txn.Mode
)

const (
	Read  = txn.ReadOnly
	Write = txn.ReadWrite
)

// DB is an open database file.
type DB struct {
	Path string

	opts    Options
	log     logger.Logger
	cmp     *pebble.Comparer
	fm      *file.FileMgr
	pager   *pager.Pager
	txns    *txn.Manager
	exec    *exec.Executor
	metrics *metrics.Metrics

	checkpointCh chan struct{}
	stop         chan struct{}
	wg           sync.WaitGroup

	mu     deadlock.Mutex
	closed bool
}

// Open opens the database at path, creating it if it does not exist, and
// recovers its write-ahead log. A nil opts uses DefaultOptions.
func Open(path string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := opts.withDefaults()

	fm, err := file.NewFileMgr(path, o.PageSize, o.LoadingMode)
	if err != nil {
		return nil, err
	}

	m := metrics.New(o.Registerer)
	name := btree.DefaultComparer.Name
	if o.Comparer != nil {
		name = o.Comparer.Name
	}
	p, err := pager.Open(fm, pager.Options{
		PageSize:       o.PageSize,
		Comparer:       name,
		CacheSize:      o.CacheSize,
		FrameCacheSize: o.FrameCacheSize,
		Logger:         o.Logger,
		Metrics:        m,
	})
	if err != nil {
		fm.Close()
		return nil, err
	}

	cmp, err := resolveComparer(o.Comparer, p.Comparer())
	if err != nil {
		p.Close()
		fm.Close()
		return nil, err
	}

	db := &DB{
		Path:         path,
		opts:         o,
		log:          o.Logger,
		cmp:          cmp,
		fm:           fm,
		pager:        p,
		exec:         exec.NewExecutor(p.PageSize(), cmp),
		metrics:      m,
		checkpointCh: make(chan struct{}, 1),
		stop:         make(chan struct{}),
	}
	db.txns = txn.NewManager(p, txn.Options{
		BusyTimeout: o.BusyTimeout,
		Comparer:    cmp,
		Logger:      o.Logger,
		Metrics:     m,
		OnCommit:    db.onCommit,
	})

	db.wg.Add(1)
	go db.checkpointLoop()

	db.log.InfoNs(logger.NsDatabase, "opened database", logger.KV{
		"path":      path,
		"pageSize":  p.PageSize(),
		"comparer":  cmp.Name,
		"walFrames": p.WAL().FrameCount(),
	})
	return db, nil
}

func resolveComparer(cmp *pebble.Comparer, stored string) (*pebble.Comparer, error) {
	if cmp == nil {
		c, ok := btree.ComparerByName(stored)
		if !ok {
			return nil, dberr.InvalidArgf("database was created with comparer %q, set Options.Comparer", stored)
		}
		return c, nil
	}
	if cmp.Name != stored {
		return nil, dberr.InvalidArgf("database was created with comparer %q, not %q", stored, cmp.Name)
	}
	return cmp, nil
}

// Close stops the background checkpointer, checkpoints what it can and
// closes the files. It fails with a busy error while a write transaction is
// active. Read transactions still open become unusable.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return dberr.ErrClosed
	}
	if err := db.txns.Close(); err != nil {
		return err
	}
	db.closed = true

	close(db.stop)
	db.wg.Wait()

	if db.txns.Err() == nil {
		if _, err := db.pager.Checkpoint(); err != nil {
			db.log.WarnNs(logger.NsDatabase, "final checkpoint failed", logger.KV{"error": err.Error()})
		}
	}
	db.pager.Close()
	if err := db.fm.Close(); err != nil {
		return err
	}
	db.log.InfoNs(logger.NsDatabase, "closed database", logger.KV{"path": db.Path})
	return nil
}

// Begin starts a read or write transaction.
func (db *DB) Begin(ctx context.Context, mode Mode) (*Tx, error) {
	return db.txns.Begin(ctx, mode)
}

// View runs fn in a read transaction.
func (db *DB) View(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx, Read)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

// Update runs fn in a write transaction and commits it if fn returns nil.
// Otherwise, or if fn panics, the transaction is rolled back.
func (db *DB) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx, Write)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return tx.Commit()
}

// Exec runs a statement in tx.
func (db *DB) Exec(ctx context.Context, tx *Tx, stmt exec.Statement) (exec.Result, error) {
	return db.exec.Exec(ctx, tx, stmt)
}

// Run executes a single statement in its own transaction.
func (db *DB) Run(ctx context.Context, stmt exec.Statement) (exec.Result, error) {
	var result exec.Result
	run := func(tx *Tx) error {
		var err error
		result, err = db.Exec(ctx, tx, stmt)
		return err
	}
	if stmt.Op.Writes() {
		return result, db.Update(ctx, run)
	}
	return result, db.View(ctx, run)
}

// Checkpoint copies committed log frames into the main file. Frames still
// needed by open read transactions stay in the log.
func (db *DB) Checkpoint(ctx context.Context) (wal.CheckpointResult, error) {
	return db.txns.Checkpoint(ctx)
}

func (db *DB) PageSize() int {
	return db.pager.PageSize()
}

func (db *DB) Comparer() *pebble.Comparer {
	return db.cmp
}

func (db *DB) Metrics() *metrics.Metrics {
	return db.metrics
}
