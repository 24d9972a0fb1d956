package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// unlockScript deletes the key only when the stored token matches the
// caller's, so a stale holder (lease expired, lock re-acquired elsewhere)
// cannot release someone else's lock.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// handle is the per-key acquisition state cached by RedisLocker. Repeated
// acquisition of the same key within one process reuses one handle.
type handle struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func (h *handle) set(token string, lease time.Duration) {
	h.mu.Lock()
	h.token = token
	h.expiresAt = time.Now().Add(lease)
	h.mu.Unlock()
}

func (h *handle) clear() {
	h.mu.Lock()
	h.token = ""
	h.expiresAt = time.Time{}
	h.mu.Unlock()
}

// current returns the token if the local lease is still live.
func (h *handle) current() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.token == "" || time.Now().After(h.expiresAt) {
		return "", false
	}
	return h.token, true
}

// RedisLocker implements Locker on a shared Redis instance with
// SET NX PX acquisition and Lua compare-and-delete release.
type RedisLocker struct {
	client        *redis.Client
	unlock        *redis.Script
	retryInterval time.Duration

	handles sync.Map // key string -> *handle
}

// NewRedisLocker connects a locker to the shared store.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client:        client,
		unlock:        redis.NewScript(unlockScript),
		retryInterval: 50 * time.Millisecond,
	}
}

func (l *RedisLocker) handle(key string) *handle {
	h, _ := l.handles.LoadOrStore(key, &handle{})
	return h.(*handle)
}

// TryLock acquires the lock or gives up after wait. Contention is handled by
// polling SET NX at a short interval; the lease caps how long a crashed
// holder can block others.
func (l *RedisLocker) TryLock(ctx context.Context, key string, wait, lease time.Duration) (bool, error) {
	h := l.handle(key)
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, keyPrefix+key, token, lease).Result()
		if err != nil {
			return false, fmt.Errorf("lock: acquire %q: %w", key, err)
		}
		if ok {
			h.set(token, lease)
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

// Unlock releases the lock if this process still holds it. Releasing a lock
// that is not held, or whose lease already expired, is a no-op.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	h := l.handle(key)
	token, held := h.current()
	if !held {
		h.clear()
		return nil
	}
	if err := l.unlock.Run(ctx, l.client, []string{keyPrefix + key}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("lock: release %q: %w", key, err)
	}
	h.clear()
	return nil
}

// IsHeldByCurrentContext reports whether this process has a live lease on key.
func (l *RedisLocker) IsHeldByCurrentContext(key string) bool {
	_, held := l.handle(key).current()
	return held
}

// IsLocked reports whether any holder (this process or another) has the lock.
func (l *RedisLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("lock: inspect %q: %w", key, err)
	}
	return n > 0, nil
}
