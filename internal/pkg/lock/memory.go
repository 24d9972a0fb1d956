package lock

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker is an in-process Locker with the same lease semantics as the
// Redis implementation. It backs unit tests and single-node development; any
// multi-instance deployment must use the shared store.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLease

	retryInterval time.Duration
}

type memoryLease struct {
	held      bool
	expiresAt time.Time
}

// NewMemoryLocker builds an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks:         make(map[string]memoryLease),
		retryInterval: time.Millisecond,
	}
}

func (l *MemoryLocker) tryAcquire(key string, lease time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[key]
	if ok && cur.held && time.Now().Before(cur.expiresAt) {
		return false
	}
	l.locks[key] = memoryLease{held: true, expiresAt: time.Now().Add(lease)}
	return true
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string, wait, lease time.Duration) (bool, error) {
	deadline := time.Now().Add(wait)
	for {
		if l.tryAcquire(key, lease) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ErrInterrupted
		case <-time.After(l.retryInterval):
		}
	}
}

func (l *MemoryLocker) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[key]
	if !ok || !cur.held || time.Now().After(cur.expiresAt) {
		return nil
	}
	delete(l.locks, key)
	return nil
}

func (l *MemoryLocker) IsHeldByCurrentContext(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.locks[key]
	return ok && cur.held && time.Now().Before(cur.expiresAt)
}

func (l *MemoryLocker) IsLocked(_ context.Context, key string) (bool, error) {
	return l.IsHeldByCurrentContext(key), nil
}
