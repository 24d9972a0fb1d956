package stock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/setof-commerce/order-core/internal/pkg/errs"
	"github.com/setof-commerce/order-core/internal/pkg/lock"
	"github.com/setof-commerce/order-core/internal/pkg/saga"
)

// Reserver coordinates multi-SKU reservations. Each SKU is decremented under
// its own lock; a failure part-way rolls back the SKUs already taken, in
// reverse order.
type Reserver struct {
	locker   lock.Locker
	counter  Counter
	lockWait time.Duration
	lease    time.Duration
}

func NewReserver(locker lock.Locker, counter Counter, lockWait, lease time.Duration) *Reserver {
	return &Reserver{locker: locker, counter: counter, lockWait: lockWait, lease: lease}
}

// Reserve decrements every SKU in requirements or none of them. SKUs are
// processed in ascending id order so concurrent reservations over overlapping
// SKU sets never deadlock. sagaID correlates log lines, typically the
// checkout id.
func (r *Reserver) Reserve(ctx context.Context, sagaID string, requirements map[int64]int) error {
	steps := make([]saga.Step, 0, len(requirements))
	for _, id := range sortedSKUs(requirements) {
		steps = append(steps, &reserveStep{r: r, productStockID: id, quantity: requirements[id]})
	}
	return saga.New(sagaID, steps).Run(ctx)
}

// Release restores previously reserved quantities, newest SKU first. Errors
// on individual SKUs are collected rather than aborting the remainder.
func (r *Reserver) Release(ctx context.Context, requirements map[int64]int) error {
	skus := sortedSKUs(requirements)
	var errList []error
	for i := len(skus) - 1; i >= 0; i-- {
		if _, err := r.counter.Increment(ctx, skus[i], requirements[skus[i]]); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

func sortedSKUs(requirements map[int64]int) []int64 {
	skus := make([]int64, 0, len(requirements))
	for id := range requirements {
		skus = append(skus, id)
	}
	sort.Slice(skus, func(i, j int) bool { return skus[i] < skus[j] })
	return skus
}

type reserveStep struct {
	r              *Reserver
	productStockID int64
	quantity       int
}

func (s *reserveStep) Name() string {
	return "reserve-sku-" + strconv.FormatInt(s.productStockID, 10)
}

func (s *reserveStep) Execute(ctx context.Context) error {
	key := lockKey(s.productStockID)
	acquired, err := s.r.locker.TryLock(ctx, key, s.r.lockWait, s.r.lease)
	if err != nil {
		return fmt.Errorf("stock: lock sku %d: %w", s.productStockID, err)
	}
	if !acquired {
		return errs.Newf(errs.CodeTimeout, "stock: sku %d busy, lock wait expired", s.productStockID)
	}
	defer func() {
		_ = s.r.locker.Unlock(ctx, key)
	}()

	_, err = s.r.counter.Decrement(ctx, s.productStockID, s.quantity)
	return err
}

func (s *reserveStep) Compensate(ctx context.Context) error {
	_, err := s.r.counter.Increment(ctx, s.productStockID, s.quantity)
	return err
}

func lockKey(productStockID int64) string {
	return "stock:" + strconv.FormatInt(productStockID, 10)
}
