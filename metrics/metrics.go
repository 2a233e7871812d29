// Package metrics holds the prometheus collectors exported by a kite database.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kite"

// Metrics groups every collector of one open database.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Commits         prometheus.Counter
	Rollbacks       prometheus.Counter
	Busy            prometheus.Counter
	FramesAppended  prometheus.Counter
	FramesSpilled   prometheus.Counter
	Checkpoints     prometheus.Counter
	CheckpointPages prometheus.Counter
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	WALFrames       prometheus.Gauge
	OpenSnapshots   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
// If reg is nil the collectors are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "commits_total",
			Help: "Number of committed write transactions.",
		}),
		Rollbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rollbacks_total",
			Help: "Number of rolled back write transactions.",
		}),
		Busy: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "busy_total",
			Help: "Number of write begins rejected because another writer was active.",
		}),
		FramesAppended: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "wal_frames_appended_total",
			Help: "Number of WAL frames written by commits.",
		}),
		FramesSpilled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "wal_frames_spilled_total",
			Help: "Number of uncommitted WAL frames written by cache eviction.",
		}),
		Checkpoints: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoints_total",
			Help: "Number of completed checkpoints.",
		}),
		CheckpointPages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoint_pages_total",
			Help: "Number of pages copied from the WAL into the main file.",
		}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total",
			Help: "Number of page reads served by the page cache.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total",
			Help: "Number of page reads that went to the WAL or the main file.",
		}),
		WALFrames: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "wal_frames",
			Help: "Number of frames currently held in the WAL file.",
		}),
		OpenSnapshots: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_snapshots",
			Help: "Number of open reader snapshots.",
		}),
	}
}

func (m *Metrics) inc(c prometheus.Counter) {
	if m != nil {
		c.Inc()
	}
}

func (m *Metrics) Commit() {
	if m != nil {
		m.inc(m.Commits)
	}
}

func (m *Metrics) Rollback() {
	if m != nil {
		m.inc(m.Rollbacks)
	}
}

func (m *Metrics) BusyError() {
	if m != nil {
		m.inc(m.Busy)
	}
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.inc(m.CacheHits)
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.inc(m.CacheMisses)
	}
}

func (m *Metrics) FrameSpilled() {
	if m != nil {
		m.inc(m.FramesSpilled)
	}
}

// FramesCommitted records n frames written by one commit.
func (m *Metrics) FramesCommitted(n int) {
	if m != nil {
		m.FramesAppended.Add(float64(n))
	}
}

// Checkpointed records a finished checkpoint that copied pages pages.
func (m *Metrics) Checkpointed(pages int) {
	if m != nil {
		m.Checkpoints.Inc()
		m.CheckpointPages.Add(float64(pages))
	}
}

// SetWALFrames sets the current WAL frame count.
func (m *Metrics) SetWALFrames(n int) {
	if m != nil {
		m.WALFrames.Set(float64(n))
	}
}

// SetOpenSnapshots sets the current number of open snapshots.
func (m *Metrics) SetOpenSnapshots(n int) {
	if m != nil {
		m.OpenSnapshots.Set(float64(n))
	}
}
