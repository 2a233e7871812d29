package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/naveen246/kite/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSession(t *testing.T) (*Session, *bytes.Buffer) {
	opts := server.DefaultOptions()
	opts.PageSize = 1024
	opts.CacheSize = 32
	db, err := server.Open(filepath.Join(t.TempDir(), "shell.db"), opts)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	s := NewSession(db, out)
	t.Cleanup(func() {
		s.Close()
		db.Close()
	})
	return s, out
}

func handle(t *testing.T, s *Session, out *bytes.Buffer, input string) string {
	out.Reset()
	assert.True(t, s.Handle(context.Background(), input))
	return out.String()
}

func TestSessionStatements(t *testing.T) {
	s, out := openSession(t)

	assert.Contains(t, handle(t, s, out, "create users"), "Table created")
	assert.Contains(t, handle(t, s, out, "insert users alice 25"), "OK")
	assert.Contains(t, handle(t, s, out, "insert users alice 26"), "Error")
	handle(t, s, out, "put users bob 30")

	got := handle(t, s, out, "scan users")
	assert.Contains(t, got, "alice")
	assert.Contains(t, got, "bob")

	got = handle(t, s, out, "get users alice")
	assert.Contains(t, got, "25")

	assert.Contains(t, handle(t, s, out, ".count users"), "2 keys in users")
	assert.Contains(t, handle(t, s, out, ".tables"), "users")
	assert.Contains(t, handle(t, s, out, "get nope alice"), "Error")
	assert.Contains(t, handle(t, s, out, ".bogus"), "Unknown command")
}

func TestSessionTransaction(t *testing.T) {
	s, out := openSession(t)
	handle(t, s, out, "create users")
	handle(t, s, out, "put users alice 25")

	assert.Contains(t, handle(t, s, out, ".begin"), "started")
	assert.True(t, s.InTx())
	assert.Contains(t, handle(t, s, out, ".begin"), "already open")
	handle(t, s, out, "update users alice 26")
	assert.Contains(t, handle(t, s, out, "get users alice"), "26")
	assert.Contains(t, handle(t, s, out, ".rollback"), "rolled back")
	assert.False(t, s.InTx())
	assert.Contains(t, handle(t, s, out, "get users alice"), "25")

	handle(t, s, out, ".begin")
	handle(t, s, out, "update users alice 27")
	assert.Contains(t, handle(t, s, out, ".commit"), "committed")
	assert.Contains(t, handle(t, s, out, "get users alice"), "27")
	assert.Contains(t, handle(t, s, out, ".commit"), "no transaction")

	handle(t, s, out, ".begin read")
	assert.Contains(t, handle(t, s, out, "put users carol 1"), "Error")
	assert.True(t, s.InTx())
	handle(t, s, out, ".rollback")
}

func TestSessionAdmin(t *testing.T) {
	s, out := openSession(t)
	handle(t, s, out, "create users")
	handle(t, s, out, "put users alice 25")

	assert.Contains(t, handle(t, s, out, ".checkpoint"), "Checkpointed")
	got := handle(t, s, out, ".stats")
	assert.Contains(t, got, "Page size")
	assert.Contains(t, got, "1.0 KiB")
	assert.Contains(t, handle(t, s, out, ".help"), ".checkpoint")

	out.Reset()
	assert.False(t, s.Handle(context.Background(), ".quit"))
}

func TestHelpCompleter(t *testing.T) {
	assert.Equal(t, []string{".checkpoint", ".commit", ".count"}, cmdHelpCompleter(".c"))
	assert.Equal(t, []string{"scan "}, cmdHelpCompleter("SC"))
}
