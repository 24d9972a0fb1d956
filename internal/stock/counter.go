// Package stock holds the available-inventory counters and the lock-guarded
// reservation coordinator invoked during checkout creation.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const counterKeyPrefix = "stock:counter:"

// ErrCounterMissing is returned when no counter exists for a SKU. Counters
// are seeded from the inventory read model; a missing key means the SKU is
// not sellable, not that stock is zero.
var ErrCounterMissing = errors.New("stock: counter not initialized")

// InsufficientStockError names the SKU that could not be reserved.
type InsufficientStockError struct {
	ProductStockID int64
	Requested      int
	Available      int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %d: requested %d, available %d",
		e.ProductStockID, e.Requested, e.Available)
}

// Counter is the atomic available-quantity store, one counter per SKU.
type Counter interface {
	// Decrement atomically subtracts quantity if the counter exists and
	// covers it, returning the remaining quantity. A shortage returns
	// *InsufficientStockError; a missing counter returns ErrCounterMissing.
	Decrement(ctx context.Context, productStockID int64, quantity int) (int64, error)
	// Increment atomically restores quantity on an existing counter.
	Increment(ctx context.Context, productStockID int64, quantity int) (int64, error)
	// Available reads current quantities for a batch of SKUs. SKUs without a
	// counter are absent from the result.
	Available(ctx context.Context, productStockIDs []int64) (map[int64]int64, error)
	// Initialize seeds a counter with a TTL, overwriting any existing value.
	Initialize(ctx context.Context, productStockID int64, quantity int, ttl time.Duration) error
}

// decrement only when the key exists and holds enough; -1 missing, -2 short.
var decrementScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if not current then
  return -1
end
if tonumber(current) < tonumber(ARGV[1]) then
  return -2
end
return redis.call('DECRBY', KEYS[1], ARGV[1])
`)

// increment only when the key exists; never resurrects an expired counter.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('INCRBY', KEYS[1], ARGV[1])
end
return -1
`)

// RedisCounter keeps one integer counter per SKU under stock:counter:{id}.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func counterKey(productStockID int64) string {
	return counterKeyPrefix + strconv.FormatInt(productStockID, 10)
}

func (c *RedisCounter) Decrement(ctx context.Context, productStockID int64, quantity int) (int64, error) {
	key := counterKey(productStockID)
	result, err := decrementScript.Run(ctx, c.client, []string{key}, quantity).Int64()
	if err != nil {
		return 0, fmt.Errorf("stock: decrement %s: %w", key, err)
	}
	switch result {
	case -1:
		return 0, fmt.Errorf("stock: sku %d: %w", productStockID, ErrCounterMissing)
	case -2:
		available, getErr := c.client.Get(ctx, key).Int64()
		if getErr != nil {
			available = 0
		}
		return 0, &InsufficientStockError{
			ProductStockID: productStockID,
			Requested:      quantity,
			Available:      int(available),
		}
	default:
		return result, nil
	}
}

func (c *RedisCounter) Increment(ctx context.Context, productStockID int64, quantity int) (int64, error) {
	key := counterKey(productStockID)
	result, err := incrementScript.Run(ctx, c.client, []string{key}, quantity).Int64()
	if err != nil {
		return 0, fmt.Errorf("stock: increment %s: %w", key, err)
	}
	if result == -1 {
		return 0, fmt.Errorf("stock: sku %d: %w", productStockID, ErrCounterMissing)
	}
	return result, nil
}

func (c *RedisCounter) Available(ctx context.Context, productStockIDs []int64) (map[int64]int64, error) {
	if len(productStockIDs) == 0 {
		return map[int64]int64{}, nil
	}
	keys := make([]string, len(productStockIDs))
	for i, id := range productStockIDs {
		keys[i] = counterKey(id)
	}
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("stock: batch read: %w", err)
	}
	out := make(map[int64]int64, len(productStockIDs))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("stock: counter %s holds %q: %w", keys[i], s, err)
		}
		out[productStockIDs[i]] = n
	}
	return out, nil
}

func (c *RedisCounter) Initialize(ctx context.Context, productStockID int64, quantity int, ttl time.Duration) error {
	if quantity < 0 {
		return fmt.Errorf("stock: initial quantity must not be negative, got %d", quantity)
	}
	if err := c.client.Set(ctx, counterKey(productStockID), quantity, ttl).Err(); err != nil {
		return fmt.Errorf("stock: initialize sku %d: %w", productStockID, err)
	}
	return nil
}
