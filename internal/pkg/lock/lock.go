// Package lock provides the mutual-exclusion primitive used for checkout
// idempotency-key de-duplication and per-SKU stock reservation.
//
// The contract is deliberately minimal so any backend with TTL +
// compare-and-swap semantics can satisfy it. Both acquisitions follow the same
// shape: acquire a lock on a logical resource id, do bounded work, release.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrInterrupted is returned when the context is cancelled while waiting for
// a lock. It is distinct from a wait-time expiry (which returns false, nil:
// "busy, retry or reject").
var ErrInterrupted = errors.New("lock: wait interrupted")

// Locker is the mutual-exclusion contract.
//
// TryLock blocks up to wait for the lock keyed by key. Once held, the lock
// auto-expires after lease even if the holder crashes. A wait expiry returns
// (false, nil); a cancelled context returns (false, ErrInterrupted).
//
// Unlock is a no-op unless this process currently holds the lock, so a holder
// whose lease expired cannot release a lock re-acquired by another party.
type Locker interface {
	TryLock(ctx context.Context, key string, wait, lease time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error

	// IsHeldByCurrentContext reports whether this process holds an unexpired
	// lease on key through this Locker.
	IsHeldByCurrentContext(key string) bool

	// IsLocked reports whether any party holds the lock on key.
	IsLocked(ctx context.Context, key string) (bool, error)
}
