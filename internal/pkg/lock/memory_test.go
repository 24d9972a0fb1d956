package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "stock:100", 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, l.IsHeldByCurrentContext("stock:100"))

	// Second acquisition of the same key must time out while the first
	// lease is live.
	ok, err = l.TryLock(ctx, "stock:100", 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Unrelated keys are fully concurrent.
	ok, err = l.TryLock(ctx, "stock:200", 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "stock:100"))
	assert.False(t, l.IsHeldByCurrentContext("stock:100"))

	ok, err = l.TryLock(ctx, "stock:100", 10*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLockerLeaseExpiry(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "k", 0, 5*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(10 * time.Millisecond)

	// The lease expired: another party can acquire, and the stale holder's
	// unlock must not release the new lease.
	ok, err = l.TryLock(ctx, "k", 0, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	locked, err := l.IsLocked(ctx, "k")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestMemoryLockerInterrupt(t *testing.T) {
	l := NewMemoryLocker()
	ctx, cancel := context.WithCancel(context.Background())

	ok, err := l.TryLock(ctx, "k", time.Minute, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	var wg sync.WaitGroup
	wg.Add(1)
	var waitErr error
	go func() {
		defer wg.Done()
		_, waitErr = l.TryLock(ctx, "k", time.Minute, time.Minute)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()
	wg.Wait()

	assert.ErrorIs(t, waitErr, ErrInterrupted)
}

func TestMemoryLockerContention(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.TryLock(ctx, "hot", time.Millisecond, time.Second)
			if err == nil && ok {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, acquired, "exactly one goroutine may hold the lock")
}
