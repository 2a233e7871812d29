package txn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/naveen246/kite/dberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterSlotFailFast(t *testing.T) {
	var s writerSlot
	require.NoError(t, s.acquire(context.Background(), 1, 0))
	assert.Equal(t, TxID(1), s.holder())

	err := s.acquire(context.Background(), 2, 0)
	assert.True(t, dberr.IsBusy(err))

	// only the holder releases the slot
	s.release(2)
	assert.Equal(t, TxID(1), s.holder())
	s.release(1)
	assert.Equal(t, noOwner, s.holder())
	assert.True(t, s.tryAcquire(2))
}

func TestWriterSlotWaitsWithBackoff(t *testing.T) {
	var s writerSlot
	require.True(t, s.tryAcquire(1))

	go func() {
		time.Sleep(20 * time.Millisecond)
		s.release(1)
	}()
	start := time.Now()
	require.NoError(t, s.acquire(context.Background(), 2, 2*time.Second))
	assert.Equal(t, TxID(2), s.holder())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestWriterSlotTimeoutAndCancel(t *testing.T) {
	var s writerSlot
	require.True(t, s.tryAcquire(1))

	err := s.acquire(context.Background(), 2, 30*time.Millisecond)
	assert.True(t, dberr.IsBusy(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.acquire(ctx, 3, time.Minute)
	assert.True(t, dberr.IsBusy(err))
	assert.Equal(t, TxID(1), s.holder())
}

// Many goroutines compete for the slot. At no time is it held twice.
func TestWriterSlotExclusive(t *testing.T) {
	var s writerSlot
	var mu sync.Mutex
	holders := 0
	maxHolders := 0

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(id TxID) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if !assert.NoError(t, s.acquire(context.Background(), id, 5*time.Second)) {
					return
				}
				mu.Lock()
				holders++
				maxHolders = max(maxHolders, holders)
				mu.Unlock()

				time.Sleep(100 * time.Microsecond)

				mu.Lock()
				holders--
				mu.Unlock()
				s.release(id)
			}
		}(TxID(i))
	}
	wg.Wait()
	assert.Equal(t, 1, maxHolders)
}
