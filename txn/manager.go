// Package txn coordinates transactions over a pager: any number of read
// transactions, each bound to a snapshot, and at most one write transaction.
package txn

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/naveen246/kite/btree"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/metrics"
	"github.com/naveen246/kite/pager"
	"github.com/naveen246/kite/wal"
	"github.com/sasha-s/go-deadlock"
)

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

type Options struct {
	// BusyTimeout is how long a write begin or a checkpoint waits for the
	// writer slot. Zero fails fast.
	BusyTimeout time.Duration
	Comparer    *pebble.Comparer
	Logger      logger.Logger
	Metrics     *metrics.Metrics
	// OnCommit is called after each successful write commit with the number
	// of frames in the log.
	OnCommit func(frames int)
}

type Manager struct {
	pager  *pager.Pager
	opts   Options
	log    logger.Logger
	writer writerSlot
	nextID atomic.Uint64

	mu       deadlock.Mutex
	closed   bool
	poisoned error
}

func NewManager(p *pager.Pager, opts Options) *Manager {
	if !opts.Logger.IsInitialized() {
		opts.Logger = logger.NewNop()
	}
	if opts.Comparer == nil {
		opts.Comparer = btree.DefaultComparer
	}
	return &Manager{
		pager: p,
		opts:  opts,
		log:   opts.Logger,
	}
}

// check returns the error that prevents new transactions, if any.
func (m *Manager) check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return dberr.ErrClosed
	}
	return m.poisoned
}

// Err returns the corruption error that poisoned the manager, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poisoned
}

func (m *Manager) poison(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poisoned == nil {
		m.poisoned = err
		m.log.ErrorNs(logger.NsTxn, "database is corrupt, refusing new transactions", logger.KV{"error": err.Error()})
	}
}

// Begin starts a transaction. Read transactions never block. A write
// transaction waits for the writer slot as configured by BusyTimeout.
func (m *Manager) Begin(ctx context.Context, mode Mode) (*Tx, error) {
	if err := m.check(); err != nil {
		return nil, err
	}
	id := TxID(m.nextID.Add(1))

	if mode == ReadOnly {
		return newTx(m, id, m.pager.BeginRead(), mode), nil
	}

	if err := m.writer.acquire(ctx, id, m.opts.BusyTimeout); err != nil {
		m.opts.Metrics.BusyError()
		m.log.DebugNs(logger.NsTxn, "writer slot is taken", logger.KV{"tx": id, "holder": m.writer.holder()})
		return nil, err
	}
	// the manager may have been closed or poisoned while waiting
	if err := m.check(); err != nil {
		m.writer.release(id)
		return nil, err
	}
	view, err := m.pager.BeginWrite()
	if err != nil {
		m.writer.release(id)
		m.failed(err)
		return nil, err
	}
	return newTx(m, id, view, mode), nil
}

// failed records errors that make the database unusable.
func (m *Manager) failed(err error) {
	if dberr.IsCorruption(err) {
		m.poison(err)
	}
}

// WriterActive reports whether a write transaction or checkpoint holds the
// writer slot.
func (m *Manager) WriterActive() bool {
	return m.writer.holder() != noOwner
}

// Checkpoint copies committed log frames into the main file. It holds the
// writer slot, so it excludes write transactions but never blocks readers.
func (m *Manager) Checkpoint(ctx context.Context) (wal.CheckpointResult, error) {
	if err := m.check(); err != nil {
		return wal.CheckpointResult{}, err
	}
	id := TxID(m.nextID.Add(1))
	if err := m.writer.acquire(ctx, id, m.opts.BusyTimeout); err != nil {
		return wal.CheckpointResult{}, err
	}
	defer m.writer.release(id)

	result, err := m.pager.Checkpoint()
	if err != nil {
		m.failed(err)
		return result, err
	}
	return result, nil
}

// Close refuses new transactions. It fails with a busy error while a write
// transaction is active.
func (m *Manager) Close() error {
	id := TxID(m.nextID.Add(1))
	if !m.writer.tryAcquire(id) {
		return dberr.Busyf("cannot close while a write transaction is active")
	}
	defer m.writer.release(id)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return dberr.ErrClosed
	}
	m.closed = true
	return nil
}
