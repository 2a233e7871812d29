package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKvToArgs(t *testing.T) {
	t.Run("NoArgs", func(t *testing.T) {
		assert.Equal(t, []any{}, kvToArgs())
	})

	t.Run("MultipleArgs", func(t *testing.T) {
		kv := KV{"key1": "value1", "key2": "value2"}
		assert.Equal(t, []any{"key1", "value1", "key2", "value2"}, kvToArgs(kv))
	})

	t.Run("PickOnlyFirst", func(t *testing.T) {
		result := kvToArgs(KV{"key1": "value1"}, KV{"key2": "value2"})
		assert.Equal(t, []any{"key1", "value1"}, result)
	})

	t.Run("Order", func(t *testing.T) {
		result := kvToArgs(KV{"z": "value1", "a": "value2"})
		assert.Equal(t, []any{"a", "value2", "z", "value1"}, result)
	})
}

func TestKvToArgsNs(t *testing.T) {
	assert.Equal(t, []any{"ns", "wal"}, kvToArgsNs("wal"))
	assert.Equal(t, []any{"ns", "wal", "frames", 3}, kvToArgsNs("wal", KV{"frames": 3}))
}

func TestLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo)
	assert.True(t, l.IsInitialized())

	l.InfoNs(NsCheckpoint, "checkpoint finished", KV{"pages": 4})
	l.Debug("hidden")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "checkpoint finished", line["msg"])
	assert.Equal(t, NsCheckpoint, line["ns"])
	assert.Equal(t, float64(4), line["pages"])
}

func TestZeroLoggerIsNotInitialized(t *testing.T) {
	var l Logger
	assert.False(t, l.IsInitialized())
	assert.True(t, NewNop().IsInitialized())
}
