// Package pager provides page level access to a kite database: reads resolve
// through the page cache, the write-ahead log and the main file; writes of
// the single writer stay in the cache until commit.
package pager

import (
	"sync/atomic"

	"github.com/naveen246/kite/buffer"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/metrics"
	"github.com/naveen246/kite/wal"
)

const (
	MinPageSize     = 512
	MaxPageSize     = 65536
	DefaultPageSize = 4096
	MinCacheSize    = 16
)

// Page types stored in the first byte of every non-header page.
const (
	TypeInterior uint8 = 1
	TypeLeaf     uint8 = 2
	TypeOverflow uint8 = 3
	TypeFreelist uint8 = 4
)

type Options struct {
	// PageSize is used when the database is created.
	PageSize int
	// Comparer is the name stored in a new database header.
	Comparer string
	// CacheSize is the number of pages in the page cache.
	CacheSize      int
	FrameCacheSize int64
	Logger         logger.Logger
	Metrics        *metrics.Metrics
}

// Pager owns the main file, the log and the page cache of one database.
type Pager struct {
	fm       *file.FileMgr
	wal      *wal.WAL
	pool     *buffer.BufferPool
	pageSize int
	salt     uint64
	comparer string
	log      logger.Logger
	metrics  *metrics.Metrics
	txNum    atomic.Int64
}

// Open reads or creates the header of the database behind fm, recovers its
// log and sets up the page cache.
func Open(fm *file.FileMgr, opts Options) (*Pager, error) {
	if !opts.Logger.IsInitialized() {
		opts.Logger = logger.NewNop()
	}
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.CacheSize < MinCacheSize {
		opts.CacheSize = MinCacheSize
	}

	var h *Header
	var err error
	if fm.IsNew {
		h, err = create(fm, opts)
	} else {
		h, err = readHeader(fm)
	}
	if err != nil {
		return nil, err
	}

	p := &Pager{
		fm:       fm,
		pageSize: int(h.PageSize),
		salt:     h.Salt,
		comparer: h.Comparer,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	p.wal, err = wal.Open(fm.WAL(), p.pageSize, h.Salt, wal.Options{
		Logger:         opts.Logger,
		Metrics:        opts.Metrics,
		FrameCacheSize: opts.FrameCacheSize,
	})
	if err != nil {
		return nil, err
	}
	p.pool = buffer.NewBufferPool(p.pageSize, opts.CacheSize, p.spill, opts.Metrics)
	return p, nil
}

func create(fm *file.FileMgr, opts Options) (*Header, error) {
	if !ValidPageSize(opts.PageSize) {
		return nil, dberr.InvalidArgf("page size %d is not a power of two in [%d, %d]", opts.PageSize, MinPageSize, MaxPageSize)
	}
	h := newHeader(opts.PageSize, opts.Comparer)
	buf, err := h.encode(opts.PageSize)
	if err != nil {
		return nil, err
	}
	fm.SetPageSize(opts.PageSize)
	if err := fm.Write(0, buf); err != nil {
		return nil, err
	}
	if err := fm.Sync(); err != nil {
		return nil, err
	}
	if err := fm.Remap(); err != nil {
		return nil, err
	}
	opts.Logger.InfoNs(logger.NsPager, "created database", logger.KV{"path": fm.Path, "pageSize": opts.PageSize})
	return h, nil
}

func readHeader(fm *file.FileMgr) (*Header, error) {
	pageSize, err := probePageSize(fm)
	if err != nil {
		return nil, err
	}
	fm.SetPageSize(pageSize)
	buf := make([]byte, pageSize)
	if err := fm.Read(0, buf); err != nil {
		return nil, err
	}
	return decodeHeader(buf)
}

// spill saves an evicted dirty page of the writer as an uncommitted frame.
func (p *Pager) spill(id file.PageID, data []byte) error {
	file.StampChecksum(data)
	return p.wal.Spill(id, data)
}

func (p *Pager) PageSize() int {
	return p.pageSize
}

// Comparer returns the comparer name stored when the database was created.
func (p *Pager) Comparer() string {
	return p.comparer
}

func (p *Pager) WAL() *wal.WAL {
	return p.wal
}

func (p *Pager) Pool() *buffer.BufferPool {
	return p.pool
}

// BeginRead returns a read-only view of the last committed state.
func (p *Pager) BeginRead() *View {
	return &View{
		p:     p,
		snap:  p.wal.OpenSnapshot(),
		txNum: -1,
	}
}

// BeginWrite returns a writable view. Callers make sure only one writable
// view exists at a time.
func (p *Pager) BeginWrite() (*View, error) {
	v := &View{
		p:        p,
		snap:     p.wal.OpenSnapshot(),
		txNum:    p.txNum.Add(1),
		writable: true,
	}
	h, err := v.readHeader()
	if err != nil {
		v.release()
		return nil, err
	}
	v.header = h
	v.committed = h.clone()
	return v, nil
}

// Commit makes the changes of a writable view durable and visible to new
// snapshots. On error nothing of the view is visible and the view is
// rolled back.
func (p *Pager) Commit(v *View) (err error) {
	if err := v.checkWritable(); err != nil {
		return err
	}
	defer v.release()
	defer func() {
		if err != nil {
			p.pool.Discard(v.txNum)
			if discardErr := p.wal.Discard(); discardErr != nil {
				p.log.WarnNs(logger.NsPager, "failed to discard spilled frames", logger.KV{"error": discardErr.Error()})
			}
		}
	}()

	if v.headerChanged() {
		buf, err := v.header.encode(p.pageSize)
		if err != nil {
			return err
		}
		if err := p.pool.WriteDirty(v.txNum, 0, buf); err != nil {
			return err
		}
	}

	dirty := p.pool.DirtyPages(v.txNum)
	if len(dirty) == 0 && !p.wal.HasPending() {
		return nil
	}
	pages := make([]wal.Page, len(dirty))
	ids := make([]file.PageID, len(dirty))
	for i, d := range dirty {
		file.StampChecksum(d.Data)
		pages[i] = wal.Page{ID: d.ID, Data: d.Data}
		ids[i] = d.ID
	}

	seqs, err := p.wal.Commit(pages, v.header.PageCount)
	if err != nil {
		return err
	}
	p.pool.Publish(v.txNum, ids, seqs)
	return nil
}

// Rollback discards every change of a writable view, or releases a read view.
func (p *Pager) Rollback(v *View) error {
	if v.done {
		return dberr.ErrTxDone
	}
	defer v.release()
	if !v.writable {
		return nil
	}
	p.pool.Discard(v.txNum)
	return p.wal.Discard()
}

// Checkpoint copies committed frames into the main file and drops page cache
// entries that no snapshot can use any more.
func (p *Pager) Checkpoint() (wal.CheckpointResult, error) {
	result, err := p.wal.Checkpoint(p.fm)
	if err != nil {
		return result, err
	}
	if len(result.Pages) > 0 {
		p.pool.Invalidate(result.Pages, result.BackfilledSeq)
		if err := p.fm.Remap(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// Close releases the log's frame cache. Files are closed by the owner of
// the file manager.
func (p *Pager) Close() {
	p.wal.Close()
}
