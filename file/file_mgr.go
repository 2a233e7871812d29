package file

import (
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/edsrzf/mmap-go"
	"github.com/naveen246/kite/dberr"
	"github.com/sasha-s/go-deadlock"
)

// LoadingMode specifies how reads of the main database file are served.
type LoadingMode int

const (
	// FileIO indicates that pages are read using standard I/O
	FileIO LoadingMode = iota
	// MemoryMap indicates that the main file is memory-mapped read-only
	// and pages are copied out of the mapping
	MemoryMap
)

// File is the subset of *os.File the storage layers need.
// Tests wrap it to inject failures.
type File interface {
	io.ReaderAt
	io.WriterAt
	Sync() error
	Truncate(size int64) error
	Size() (int64, error)
	Close() error
}

type osFile struct {
	*os.File
}

func (f osFile) Size() (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// OpenFile opens or creates the file at path for reading and writing.
func OpenFile(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, dberr.IO(err, "open %s", path)
	}
	return osFile{f}, nil
}

// WALPath returns the path of the write-ahead log belonging to a database file.
func WALPath(path string) string {
	return path + "-wal"
}

// The main database file is conceptually divided into pages of equal PageSize.
// Each page starts at offset (PageID * FileMgr.PageSize).
// The main file is only ever written by checkpoints and by the creation
// of a new database; everything else goes through the WAL.

// FileMgr owns the main database file and the WAL file of one database.
type FileMgr struct {
	mu       deadlock.RWMutex
	Path     string
	PageSize int
	IsNew    bool

	db   File
	wal  File
	mode LoadingMode
	mmap mmap.MMap
}

// NewFileMgr opens (creating if needed) the database file at path and its WAL.
func NewFileMgr(path string, pageSize int, mode LoadingMode) (*FileMgr, error) {
	if dir := filepath.Dir(path); !pathExists(dir) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, dberr.IO(err, "create database directory %s", dir)
		}
	}

	db, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	wal, err := OpenFile(WALPath(path))
	if err != nil {
		db.Close()
		return nil, err
	}
	return NewFileMgrWithFiles(path, db, wal, pageSize, mode)
}

// NewFileMgrWithFiles builds a FileMgr over already opened files.
// MemoryMap mode silently falls back to FileIO when db is not an OS file.
func NewFileMgrWithFiles(path string, db, wal File, pageSize int, mode LoadingMode) (*FileMgr, error) {
	size, err := db.Size()
	if err != nil {
		return nil, dberr.IO(err, "stat %s", path)
	}
	if _, ok := db.(osFile); !ok {
		mode = FileIO
	}

	fileMgr := &FileMgr{
		Path:     path,
		PageSize: pageSize,
		IsNew:    size == 0,
		db:       db,
		wal:      wal,
		mode:     mode,
	}
	if err := fileMgr.Remap(); err != nil {
		return nil, err
	}
	return fileMgr, nil
}

// WAL returns the write-ahead log file.
func (f *FileMgr) WAL() File {
	return f.wal
}

// SetPageSize changes the page size, used once the header of an existing
// database has been read.
func (f *FileMgr) SetPageSize(pageSize int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PageSize = pageSize
}

// ReadAt reads raw bytes from the main file, used to probe the header
// before the page size is known.
func (f *FileMgr) ReadAt(buf []byte, offset int64) (int, error) {
	n, err := f.db.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, dberr.IO(err, "read %s at %d", f.Path, offset)
	}
	return n, nil
}

// Read a page from the main file into buf. buf must be PageSize long.
func (f *FileMgr) Read(id PageID, buf []byte) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	offset := id.Offset(f.PageSize)
	if f.mmap != nil && offset+int64(len(buf)) <= int64(len(f.mmap)) {
		copy(buf, f.mmap[offset:offset+int64(len(buf))])
		return nil
	}

	n, err := f.db.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return dberr.IO(err, "read %v of %s", id, f.Path)
	}
	if n < len(buf) {
		return dberr.Corruptf("%v is beyond the end of %s", id, f.Path)
	}
	return nil
}

// Write buf to a page of the main file.
func (f *FileMgr) Write(id PageID, buf []byte) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, err := f.db.WriteAt(buf, id.Offset(f.PageSize))
	if err != nil {
		return dberr.IO(err, "write %v of %s", id, f.Path)
	}
	return nil
}

// PageCount returns the number of whole pages in the main file.
func (f *FileMgr) PageCount() (int, error) {
	size, err := f.db.Size()
	if err != nil {
		return 0, dberr.IO(err, "stat %s", f.Path)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int(size / int64(f.PageSize)), nil
}

// Sync flushes the main file to stable storage.
func (f *FileMgr) Sync() error {
	if err := f.db.Sync(); err != nil {
		return dberr.IO(err, "sync %s", f.Path)
	}
	return nil
}

// Remap refreshes the read-only mapping of the main file after it was
// written or extended. It is a no-op in FileIO mode.
func (f *FileMgr) Remap() error {
	if f.mode != MemoryMap {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.mmap != nil {
		if err := f.mmap.Unmap(); err != nil {
			return dberr.IO(err, "unmap %s", f.Path)
		}
		f.mmap = nil
	}

	size, err := f.db.Size()
	if err != nil {
		return dberr.IO(err, "stat %s", f.Path)
	}
	if size == 0 {
		return nil
	}

	m, err := mmap.Map(f.db.(osFile).File, mmap.RDONLY, 0)
	if err != nil {
		return dberr.IO(err, "map %s", f.Path)
	}
	f.mmap = m
	return nil
}

// Close unmaps and closes both files.
func (f *FileMgr) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	if f.mmap != nil {
		errs = append(errs, f.mmap.Unmap())
		f.mmap = nil
	}
	errs = append(errs, f.wal.Close(), f.db.Close())
	for _, err := range errs {
		if err != nil {
			return dberr.IO(err, "close %s", f.Path)
		}
	}
	return nil
}

func pathExists(path string) bool {
	if _, err := os.Stat(path); err == nil {
		return true
	}
	return false
}
