package txn

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/naveen246/kite/dberr"
	"github.com/sasha-s/go-deadlock"
)

// TxID identifies a transaction within one open database.
type TxID uint64

// noOwner marks a free writer slot.
const noOwner TxID = 0

// writerSlot admits a single holder at a time: the active write transaction
// or a checkpoint.
type writerSlot struct {
	mu    deadlock.Mutex
	owner TxID
}

func (s *writerSlot) tryAcquire(id TxID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner != noOwner {
		return false
	}
	s.owner = id
	return true
}

// acquire takes the slot for id. With a zero timeout it fails fast with a
// busy error; otherwise it retries with exponential backoff until the
// timeout elapses or ctx is done.
func (s *writerSlot) acquire(ctx context.Context, id TxID, timeout time.Duration) error {
	if s.tryAcquire(id) {
		return nil
	}
	if timeout <= 0 {
		return dberr.Busyf("another write transaction is active")
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 50 * time.Millisecond
	b.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		if s.tryAcquire(id) {
			return nil
		}
		return dberr.ErrBusy
	}, backoff.WithContext(b, ctx))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return dberr.Busyf("waiting for the writer slot: %v", ctxErr)
	}
	return dberr.Busyf("another write transaction is active after waiting %s", timeout)
}

func (s *writerSlot) release(id TxID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == id {
		s.owner = noOwner
	}
}

func (s *writerSlot) holder() TxID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}
