package wal

// Snapshot pins the set of committed frames a reader sees.
// Frames with seq <= MaxSeq are visible.
type Snapshot struct {
	MaxSeq uint64
}

// OpenSnapshot registers a snapshot at the newest commit.
// Every OpenSnapshot must be paired with CloseSnapshot.
func (w *WAL) OpenSnapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{MaxSeq: w.lastCommitted}
	w.snapshots[snap.MaxSeq]++
	w.metrics.SetOpenSnapshots(w.openSnapshots())
	return snap
}

// CloseSnapshot releases a snapshot returned by OpenSnapshot.
func (w *WAL) CloseSnapshot(snap Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := w.snapshots[snap.MaxSeq]; n > 1 {
		w.snapshots[snap.MaxSeq] = n - 1
	} else {
		delete(w.snapshots, snap.MaxSeq)
	}
	w.metrics.SetOpenSnapshots(w.openSnapshots())
}

// SafeSeq returns the oldest seq any open snapshot reads at, or the last
// committed seq when no snapshot is open. Frames at or below it can be
// copied into the main file without any reader noticing.
func (w *WAL) SafeSeq() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.safeSeq()
}

func (w *WAL) safeSeq() uint64 {
	safe := w.lastCommitted
	for seq := range w.snapshots {
		if seq < safe {
			safe = seq
		}
	}
	return safe
}

// OldestSnapshot returns the smallest MaxSeq of the open snapshots.
// ok is false when no snapshot is open.
func (w *WAL) OldestSnapshot() (seq uint64, ok bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for s := range w.snapshots {
		if !ok || s < seq {
			seq, ok = s, true
		}
	}
	return seq, ok
}

// OpenSnapshots returns the number of open snapshots.
func (w *WAL) OpenSnapshots() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.openSnapshots()
}

func (w *WAL) openSnapshots() int {
	n := 0
	for _, count := range w.snapshots {
		n += count
	}
	return n
}
