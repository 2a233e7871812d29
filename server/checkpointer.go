package server

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/naveen246/kite/dberr"
	"github.com/naveen246/kite/logger"
)

// onCommit wakes the checkpointer once the log holds enough frames.
func (db *DB) onCommit(frames int) {
	if db.opts.CheckpointThreshold <= 0 || frames < db.opts.CheckpointThreshold {
		return
	}
	select {
	case db.checkpointCh <- struct{}{}:
	default:
	}
}

func (db *DB) checkpointLoop() {
	defer db.wg.Done()
	for {
		select {
		case <-db.stop:
			return
		case <-db.checkpointCh:
			db.autoCheckpoint()
		}
	}
}

func (db *DB) autoCheckpoint() {
	result, err := db.txns.Checkpoint(context.Background())
	switch {
	case dberr.IsBusy(err):
		// a writer took the slot; its commit signals again
		db.log.DebugNs(logger.NsCheckpoint, "skipped automatic checkpoint", logger.KV{"error": err.Error()})
	case err != nil:
		db.log.WarnNs(logger.NsCheckpoint, "automatic checkpoint failed", logger.KV{"error": err.Error()})
	default:
		db.log.DebugNs(logger.NsCheckpoint, "automatic checkpoint", logger.KV{
			"frames":  result.Frames,
			"pages":   len(result.Pages),
			"reset":   result.Reset,
			"walSize": humanize.IBytes(uint64(db.pager.WAL().Size())),
		})
	}
}
