package app

import (
	"context"
	"time"

	checkoutdomain "github.com/setof-commerce/order-core/internal/checkout/domain"
	orderdomain "github.com/setof-commerce/order-core/internal/order/domain"
	eventdomain "github.com/setof-commerce/order-core/internal/orderevent/domain"
	paymentdomain "github.com/setof-commerce/order-core/internal/payment/domain"
	"github.com/setof-commerce/order-core/internal/pkg/postgres"
)

// CheckoutRepository persists the checkout aggregate. Implementations take
// the Querier explicitly so a use case can span several repositories in one
// transaction.
type CheckoutRepository interface {
	Insert(ctx context.Context, q postgres.Querier, c checkoutdomain.Checkout) error
	Get(ctx context.Context, q postgres.Querier, id string) (checkoutdomain.Checkout, error)
	// GetByIdempotencyKey returns errs.CodeNotFound when no checkout carries
	// the key.
	GetByIdempotencyKey(ctx context.Context, q postgres.Querier, key string) (checkoutdomain.Checkout, error)
	// Update writes the aggregate conditionally on the stored row still
	// holding expectedVersion; a lost race returns errs.CodeConflict.
	Update(ctx context.Context, q postgres.Querier, c checkoutdomain.Checkout, expectedVersion int64) error
	// ListExpirable returns non-terminal checkouts whose deadline has passed.
	ListExpirable(ctx context.Context, q postgres.Querier, now time.Time, limit int) ([]checkoutdomain.Checkout, error)
}

type PaymentRepository interface {
	Insert(ctx context.Context, q postgres.Querier, p paymentdomain.Payment) error
	Get(ctx context.Context, q postgres.Querier, id string) (paymentdomain.Payment, error)
	GetByCheckoutID(ctx context.Context, q postgres.Querier, checkoutID string) (paymentdomain.Payment, error)
	Update(ctx context.Context, q postgres.Querier, p paymentdomain.Payment) error
}

type OrderRepository interface {
	Insert(ctx context.Context, q postgres.Querier, o *orderdomain.Order) error
	Get(ctx context.Context, q postgres.Querier, id string) (*orderdomain.Order, error)
	ListByCheckoutID(ctx context.Context, q postgres.Querier, checkoutID string) ([]*orderdomain.Order, error)
	Update(ctx context.Context, q postgres.Querier, o *orderdomain.Order, expectedVersion int64) error
}

// EventAppender writes a ledger entry plus its outbox row in the caller's
// transaction.
type EventAppender interface {
	Append(ctx context.Context, q postgres.Querier, cmd eventdomain.Command) (*eventdomain.Event, error)
}

// StockReserver reserves and restores available inventory.
type StockReserver interface {
	Reserve(ctx context.Context, sagaID string, requirements map[int64]int) error
	Release(ctx context.Context, requirements map[int64]int) error
}
