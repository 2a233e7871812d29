package server

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
)

// Stats describes the state of an open database.
type Stats struct {
	PageSize      int
	PageCount     uint32
	FreePages     int
	Trees         []string
	WALState      string
	WALFrames     int
	WALSize       int64
	LastCommitted uint64
	Backfilled    uint64
	OpenSnapshots int
	CachedPages   int
	WriterActive  bool
}

// Stats reads the current statistics through a short read transaction.
func (db *DB) Stats() (Stats, error) {
	tx, err := db.txns.Begin(context.Background(), Read)
	if err != nil {
		return Stats{}, err
	}
	defer tx.Rollback()

	h, err := tx.View().Header()
	if err != nil {
		return Stats{}, err
	}
	free, err := tx.View().FreePages()
	if err != nil {
		return Stats{}, err
	}

	w := db.pager.WAL()
	return Stats{
		PageSize:      int(h.PageSize),
		PageCount:     h.PageCount,
		FreePages:     free,
		Trees:         h.Names(),
		WALState:      w.State().String(),
		WALFrames:     w.FrameCount(),
		WALSize:       w.Size(),
		LastCommitted: w.LastCommitted(),
		Backfilled:    w.Backfilled(),
		// the read transaction above holds one snapshot
		OpenSnapshots: w.OpenSnapshots() - 1,
		CachedPages:   db.pager.Pool().Len(),
		WriterActive:  db.txns.WriterActive(),
	}, nil
}

func (s Stats) String() string {
	return fmt.Sprintf("%d pages of %s (%d free), %d trees, wal %s: %d frames, %s",
		s.PageCount, humanize.IBytes(uint64(s.PageSize)), s.FreePages, len(s.Trees),
		s.WALState, s.WALFrames, humanize.IBytes(uint64(s.WALSize)))
}
