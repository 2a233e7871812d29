// Package dberr defines the error taxonomy shared by every layer of kite.
//
// Errors are classified by marking them with one of the class sentinels
// (ErrIO, ErrCorruption, ErrBusy, ErrInvalidArgument). Callers test the class
// with errors.Is or with the Is* helpers below, regardless of how many times
// the error was wrapped on its way up.
package dberr

import (
	"github.com/cockroachdb/errors"
)

// Error classes.
var (
	// ErrIO is a file system failure. The active write transaction is rolled back.
	ErrIO = errors.New("io error")
	// ErrCorruption is a checksum or format mismatch. It is fatal to the open handle.
	ErrCorruption = errors.New("database corruption")
	// ErrBusy is writer contention. Callers may retry with backoff.
	ErrBusy = errors.New("database is busy")
	// ErrInvalidArgument is a malformed call. No state was changed.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Specific errors. Each one belongs to a class.
var (
	ErrNotFound     = errors.New("key not found")
	ErrTxDone       = errors.Mark(errors.New("transaction has already been committed or rolled back"), ErrInvalidArgument)
	ErrReadOnly     = errors.Mark(errors.New("transaction is read-only"), ErrInvalidArgument)
	ErrClosed       = errors.Mark(errors.New("database is closed"), ErrInvalidArgument)
	ErrTreeNotFound = errors.Mark(errors.New("tree not found"), ErrInvalidArgument)
	ErrTreeExists   = errors.Mark(errors.New("tree already exists"), ErrInvalidArgument)
	ErrKeyExists    = errors.Mark(errors.New("key already exists"), ErrInvalidArgument)
)

// IO wraps err as an ErrIO class error.
func IO(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrIO)
}

// Corruptf returns a new ErrCorruption class error.
func Corruptf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// Busyf returns a new ErrBusy class error.
func Busyf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrBusy)
}

// InvalidArgf returns a new ErrInvalidArgument class error.
func InvalidArgf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidArgument)
}

func IsIO(err error) bool              { return errors.Is(err, ErrIO) }
func IsCorruption(err error) bool      { return errors.Is(err, ErrCorruption) }
func IsBusy(err error) bool            { return errors.Is(err, ErrBusy) }
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsFatalToTx reports whether err must abort the active write transaction.
func IsFatalToTx(err error) bool {
	return IsIO(err) || IsCorruption(err)
}
