package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Commit()
	m.Commit()
	m.Rollback()
	m.FramesCommitted(5)
	m.Checkpointed(3)
	m.SetWALFrames(7)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Commits))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Rollbacks))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.FramesAppended))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Checkpoints))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CheckpointPages))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.WALFrames))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 11)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Commit()
		m.CacheHit()
		m.Checkpointed(1)
		m.SetOpenSnapshots(2)
	})
}

func TestUnregisteredMetrics(t *testing.T) {
	m := New(nil)
	m.BusyError()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Busy))
}
