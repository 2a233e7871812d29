package txn

import (
	"github.com/cockroachdb/errors"
	"github.com/naveen246/kite/btree"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/pager"
)

// State is the life cycle position of a transaction.
//
//	read:  Active -> Closed
//	write: WriteActive -> Committing -> Closed
//	       WriteActive -> RollingBack -> Closed
//	       Committing (failed) -> RollingBack -> Closed
type State int

const (
	Active State = iota
	WriteActive
	Committing
	RollingBack
	Closed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case WriteActive:
		return "write-active"
	case Committing:
		return "committing"
	case RollingBack:
		return "rolling-back"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Tx is a transaction. A Tx must only be used by one goroutine at a time.
type Tx struct {
	id    TxID
	m     *Manager
	view  *pager.View
	mode  Mode
	state State
	trees map[string]*btree.Tree
}

func newTx(m *Manager, id TxID, view *pager.View, mode Mode) *Tx {
	state := Active
	if mode == ReadWrite {
		state = WriteActive
	}
	return &Tx{
		id:    id,
		m:     m,
		view:  view,
		mode:  mode,
		state: state,
		trees: make(map[string]*btree.Tree),
	}
}

func (tx *Tx) ID() TxID {
	return tx.id
}

func (tx *Tx) Mode() Mode {
	return tx.mode
}

func (tx *Tx) State() State {
	return tx.state
}

func (tx *Tx) Writable() bool {
	return tx.mode == ReadWrite
}

// View returns the pager view the transaction reads and writes through.
func (tx *Tx) View() *pager.View {
	return tx.view
}

func (tx *Tx) checkOpen() error {
	if tx.state == Closed {
		return dberr.ErrTxDone
	}
	return nil
}

func (tx *Tx) checkWritable() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if !tx.Writable() {
		return dberr.ErrReadOnly
	}
	return nil
}

// fail rolls the transaction back after an IO or corruption error.
func (tx *Tx) fail(err error) error {
	if err == nil || !dberr.IsFatalToTx(err) {
		return err
	}
	tx.m.failed(err)
	if tx.state == Closed {
		return err
	}
	tx.m.log.WarnNs(logger.NsTxn, "rolling back after error", logger.KV{"tx": tx.id, "error": err.Error()})
	if rbErr := tx.rollback(); rbErr != nil {
		tx.m.log.WarnNs(logger.NsTxn, "rollback failed", logger.KV{"tx": tx.id, "error": rbErr.Error()})
	}
	return err
}

func (tx *Tx) tree(name string) (*btree.Tree, error) {
	if t, ok := tx.trees[name]; ok {
		return t, nil
	}
	root, err := tx.view.Root(name)
	if err != nil {
		return nil, err
	}
	t := btree.Open(tx.view, root, tx.m.opts.Comparer)
	tx.trees[name] = t
	return t, nil
}

// Get returns the value stored under key in the named tree, or ErrNotFound.
func (tx *Tx) Get(name string, key []byte) ([]byte, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	t, err := tx.tree(name)
	if err != nil {
		return nil, tx.fail(err)
	}
	value, found, err := t.Lookup(key)
	if err != nil {
		return nil, tx.fail(err)
	}
	if !found {
		return nil, dberr.ErrNotFound
	}
	return value, nil
}

// Put stores value under key, replacing any previous value. It reports
// whether a previous value was replaced.
func (tx *Tx) Put(name string, key, value []byte) (bool, error) {
	if err := tx.checkWritable(); err != nil {
		return false, err
	}
	t, err := tx.tree(name)
	if err != nil {
		return false, tx.fail(err)
	}
	replaced, err := t.Insert(key, value)
	return replaced, tx.fail(err)
}

// Delete removes key from the named tree and reports whether it existed.
func (tx *Tx) Delete(name string, key []byte) (bool, error) {
	if err := tx.checkWritable(); err != nil {
		return false, err
	}
	t, err := tx.tree(name)
	if err != nil {
		return false, tx.fail(err)
	}
	deleted, err := t.Delete(key)
	return deleted, tx.fail(err)
}

// Scan returns a cursor over [low, high] of the named tree. A nil bound is
// open. The cursor is valid until the transaction ends; a write transaction
// invalidates its cursors when it modifies the database.
func (tx *Tx) Scan(name string, low, high []byte) (*btree.Cursor, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	t, err := tx.tree(name)
	if err != nil {
		return nil, tx.fail(err)
	}
	return t.Scan(low, high), nil
}

// Count returns the number of keys in the named tree.
func (tx *Tx) Count(name string) (int, error) {
	if err := tx.checkOpen(); err != nil {
		return 0, err
	}
	t, err := tx.tree(name)
	if err != nil {
		return 0, tx.fail(err)
	}
	n, err := t.Count()
	return n, tx.fail(err)
}

func (tx *Tx) CreateTree(name string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if name == "" {
		return dberr.InvalidArgf("tree name is empty")
	}
	_, err := tx.view.Root(name)
	switch {
	case err == nil:
		return dberr.ErrTreeExists
	case !errors.Is(err, dberr.ErrTreeNotFound):
		return tx.fail(err)
	}
	root, err := btree.Create(tx.view)
	if err != nil {
		return tx.fail(err)
	}
	return tx.fail(tx.view.SetRoot(name, root))
}

// DropTree removes the named tree and frees its pages.
func (tx *Tx) DropTree(name string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	t, err := tx.tree(name)
	if err != nil {
		return tx.fail(err)
	}
	if err := t.Drop(); err != nil {
		return tx.fail(err)
	}
	delete(tx.trees, name)
	return tx.fail(tx.view.DropRoot(name))
}

// Trees returns the names of all trees in order.
func (tx *Tx) Trees() ([]string, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	names, err := tx.view.Roots()
	return names, tx.fail(err)
}

// Commit makes the changes of a write transaction durable and visible to
// new transactions. Committing a read transaction just releases it.
// If the commit fails the transaction is rolled back.
func (tx *Tx) Commit() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if !tx.Writable() {
		tx.state = Closed
		return tx.m.pager.Rollback(tx.view)
	}

	tx.state = Committing
	err := tx.m.pager.Commit(tx.view)
	tx.m.writer.release(tx.id)
	if err != nil {
		tx.state = RollingBack
		tx.m.opts.Metrics.Rollback()
		tx.m.failed(err)
		tx.m.log.WarnNs(logger.NsTxn, "commit failed, transaction rolled back", logger.KV{"tx": tx.id, "error": err.Error()})
		tx.state = Closed
		return err
	}
	tx.state = Closed
	tx.m.opts.Metrics.Commit()
	if tx.m.opts.OnCommit != nil {
		tx.m.opts.OnCommit(tx.m.pager.WAL().FrameCount())
	}
	return nil
}

// Rollback discards every change of the transaction. It is safe to call on
// a transaction that has already finished, in which case it returns
// ErrTxDone.
func (tx *Tx) Rollback() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	return tx.rollback()
}

func (tx *Tx) rollback() error {
	if !tx.Writable() {
		tx.state = Closed
		return tx.m.pager.Rollback(tx.view)
	}
	tx.state = RollingBack
	err := tx.m.pager.Rollback(tx.view)
	tx.m.writer.release(tx.id)
	tx.m.opts.Metrics.Rollback()
	tx.state = Closed
	return err
}
