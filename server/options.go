package server

import (
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/pager"
	"github.com/naveen246/kite/wal"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	DefaultCheckpointThreshold = 1000
	DefaultCacheSize           = 256
)

// Options configures an open database.
type Options struct {
	// PageSize is used when the database file is created. An existing file
	// keeps the page size it was created with.
	PageSize int
	// CheckpointThreshold is the number of log frames after which a commit
	// triggers a background checkpoint. Zero disables automatic checkpoints.
	CheckpointThreshold int
	// CacheSize is the number of pages in the page cache.
	CacheSize int
	// BusyTimeout is how long beginning a write transaction waits for the
	// active writer. Zero fails fast with a busy error.
	BusyTimeout time.Duration
	// LoadingMode selects how pages of the main file are read.
	LoadingMode file.LoadingMode
	// Comparer orders keys. Its name is stored in a new database and must
	// match when the database is opened again. Nil selects the built in
	// comparer named in the database, or DefaultComparer for a new one.
	Comparer *pebble.Comparer
	Logger   logger.Logger
	// Registerer receives the database metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// FrameCacheSize is the size in bytes of the cache of log frame images.
	FrameCacheSize int64
}

func DefaultOptions() *Options {
	return &Options{
		PageSize:            pager.DefaultPageSize,
		CheckpointThreshold: DefaultCheckpointThreshold,
		CacheSize:           DefaultCacheSize,
		LoadingMode:         file.FileIO,
		Logger:              logger.NewNop(),
		FrameCacheSize:      wal.DefaultFrameCacheSize,
	}
}

// withDefaults fills in zero fields. CheckpointThreshold and BusyTimeout
// keep their zero meaning.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageSize == 0 {
		o.PageSize = d.PageSize
	}
	if o.CacheSize == 0 {
		o.CacheSize = d.CacheSize
	}
	if !o.Logger.IsInitialized() {
		o.Logger = d.Logger
	}
	if o.FrameCacheSize == 0 {
		o.FrameCacheSize = d.FrameCacheSize
	}
	return o
}
