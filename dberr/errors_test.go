package dberr

import (
	"fmt"
	"os"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		io         bool
		corruption bool
		busy       bool
		invalid    bool
	}{
		{"io", IO(os.ErrPermission, "write page %d", 3), true, false, false, false},
		{"corruption", Corruptf("bad checksum on page %d", 7), false, true, false, false},
		{"busy", Busyf("writer active"), false, false, true, false},
		{"invalid", InvalidArgf("empty key"), false, false, false, true},
		{"tx done", ErrTxDone, false, false, false, true},
		{"read only", ErrReadOnly, false, false, false, true},
		{"key exists", ErrKeyExists, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.io, IsIO(wrapped))
			assert.Equal(t, tt.corruption, IsCorruption(wrapped))
			assert.Equal(t, tt.busy, IsBusy(wrapped))
			assert.Equal(t, tt.invalid, IsInvalidArgument(wrapped))
			assert.Equal(t, tt.io || tt.corruption, IsFatalToTx(wrapped))
		})
	}
}

func TestIOKeepsCause(t *testing.T) {
	err := IO(os.ErrNotExist, "open %s", "db")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Contains(t, err.Error(), "open db")
	assert.Nil(t, IO(nil, "noop"))
}
