package cli

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/naveen246/kite/btree"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/file"
	"github.com/naveen246/kite/logger"
	"github.com/naveen246/kite/pager"
	"github.com/naveen246/kite/server"
)

const Version = "v0.3.0"

// Config represents the command line configuration of the kite shell.
type Config struct {
	Path                string        `arg:"positional" help:"Path of the database file, created if missing" default:"kite.db"`
	File                string        `arg:"-f,--file" help:"Run the statements in this file and exit, stopping at the first failure (standard input is read the same way when it is not a terminal)"`
	PageSize            int           `arg:"--page-size,env:KITE_PAGE_SIZE" help:"Page size of a new database, a power of two in [512, 65536]" default:"4096"`
	CacheSize           int           `arg:"--cache-size,env:KITE_CACHE_SIZE" help:"Number of pages in the page cache" default:"256"`
	CheckpointThreshold int           `arg:"--checkpoint-threshold,env:KITE_CHECKPOINT_THRESHOLD" help:"Log frames after which a commit triggers a checkpoint, 0 disables it" default:"1000"`
	BusyTimeout         time.Duration `arg:"--busy-timeout,env:KITE_BUSY_TIMEOUT" help:"How long a write waits for the active writer" default:"0s"`
	Comparer            string        `arg:"--comparer,env:KITE_COMPARER" help:"Key comparer of a new database (leveldb.BytewiseComparator or kite-slash-spans)"`
	MemoryMap           bool          `arg:"--mmap,env:KITE_MMAP" help:"Read the main file through a memory map"`
	Verbose             bool          `arg:"-v,--verbose" help:"Log debug messages to stderr"`
}

func (Config) Version() string {
	return fmt.Sprintf("kite %s\n", Version)
}

// MustParse parses and validates the configuration from the command
// line arguments. It returns a Config struct or exits the program
// with an error.
func MustParse(args []string) Config {
	cfg := Config{}

	parser, err := arg.NewParser(
		arg.Config{},
		&cfg,
	)
	if err != nil {
		log.Fatal(err)
	}
	parser.MustParse(args[1:])

	if err := cfg.validate(); err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c Config) validate() error {
	if !pager.ValidPageSize(c.PageSize) {
		return dberr.InvalidArgf("invalid page size %d, valid values are powers of two in [%d, %d]",
			c.PageSize, pager.MinPageSize, pager.MaxPageSize)
	}
	if c.CacheSize < pager.MinCacheSize {
		return dberr.InvalidArgf("cache size must be at least %d pages", pager.MinCacheSize)
	}
	if c.CheckpointThreshold < 0 {
		return dberr.InvalidArgf("checkpoint threshold must not be negative")
	}
	if c.Comparer != "" {
		if _, ok := btree.ComparerByName(c.Comparer); !ok {
			return dberr.InvalidArgf("unknown comparer %q", c.Comparer)
		}
	}
	return nil
}

// Options turns the configuration into database options.
func (c Config) Options() *server.Options {
	opts := server.DefaultOptions()
	opts.PageSize = c.PageSize
	opts.CacheSize = c.CacheSize
	opts.CheckpointThreshold = c.CheckpointThreshold
	opts.BusyTimeout = c.BusyTimeout
	if c.MemoryMap {
		opts.LoadingMode = file.MemoryMap
	}
	if c.Comparer != "" {
		opts.Comparer, _ = btree.ComparerByName(c.Comparer)
	}
	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts.Logger = logger.New(os.Stderr, level)
	return opts
}
