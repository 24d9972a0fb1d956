// Package app implements the checkout use cases: create with idempotent
// de-duplication and stock reservation, complete into payment and orders,
// and expire with stock restoration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/setof-commerce/order-core/internal/catalog"
	checkoutdomain "github.com/setof-commerce/order-core/internal/checkout/domain"
	orderdomain "github.com/setof-commerce/order-core/internal/order/domain"
	eventdomain "github.com/setof-commerce/order-core/internal/orderevent/domain"
	paymentdomain "github.com/setof-commerce/order-core/internal/payment/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	"github.com/setof-commerce/order-core/internal/pkg/lock"
	"github.com/setof-commerce/order-core/internal/pkg/metrics"
	"github.com/setof-commerce/order-core/internal/pkg/postgres"
	"github.com/setof-commerce/order-core/internal/stock"
)

const (
	createLockPrefix   = "checkout:create:"
	completeLockPrefix = "checkout:complete:"
)

// Service wires the checkout lifecycle to its collaborators.
type Service struct {
	checkouts CheckoutRepository
	payments  PaymentRepository
	orders    OrderRepository
	events    EventAppender
	catalog   catalog.Reader
	stock     StockReserver
	locker    lock.Locker
	db        postgres.Querier
	tx        postgres.TxRunner
	metrics   *metrics.Pipeline

	checkoutTTL time.Duration
	lockWait    time.Duration
	lockLease   time.Duration

	clock func() time.Time
}

type ServiceParams struct {
	Checkouts CheckoutRepository
	Payments  PaymentRepository
	Orders    OrderRepository
	Events    EventAppender
	Catalog   catalog.Reader
	Stock     StockReserver
	Locker    lock.Locker
	DB        postgres.Querier
	Tx        postgres.TxRunner
	Metrics   *metrics.Pipeline

	CheckoutTTL time.Duration
	LockWait    time.Duration
	LockLease   time.Duration
}

func NewService(p ServiceParams) *Service {
	return &Service{
		checkouts:   p.Checkouts,
		payments:    p.Payments,
		orders:      p.Orders,
		events:      p.Events,
		catalog:     p.Catalog,
		stock:       p.Stock,
		locker:      p.Locker,
		db:          p.DB,
		tx:          p.Tx,
		metrics:     p.Metrics,
		checkoutTTL: p.CheckoutTTL,
		lockWait:    p.LockWait,
		lockLease:   p.LockLease,
		clock:       time.Now,
	}
}

// CreateCommand is a purchase intent as the client states it. Prices are
// never taken from here; the catalog projection is authoritative.
type CreateCommand struct {
	MemberID       string
	IdempotencyKey string
	Items          []CreateItem
	PaymentMethod  string
	PgProvider     string
	Shipping       checkoutdomain.ShippingInfo
	ShippingFee    decimal.Decimal
}

type CreateItem struct {
	ProductStockID int64
	Quantity       int
}

// Create reserves stock and persists a PENDING_PAYMENT checkout. Retrying
// with the same idempotency key and payload returns the original checkout;
// reusing the key with a different payload is a conflict.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (checkoutdomain.Checkout, error) {
	if cmd.IdempotencyKey == "" {
		return checkoutdomain.Checkout{}, errs.New(errs.CodeValidation, "idempotency key required")
	}

	key := createLockPrefix + cmd.IdempotencyKey
	if err := s.acquire(ctx, key, "checkout_create"); err != nil {
		return checkoutdomain.Checkout{}, err
	}
	defer s.release(ctx, key)

	existing, err := s.checkouts.GetByIdempotencyKey(ctx, s.db, cmd.IdempotencyKey)
	switch {
	case err == nil:
		if !s.matchesExisting(existing, cmd) {
			return checkoutdomain.Checkout{}, errs.Newf(errs.CodeConflict,
				"idempotency key %s already used with a different payload", cmd.IdempotencyKey)
		}
		s.countDeduped()
		slog.InfoContext(ctx, "checkout creation deduped",
			"checkout_id", existing.ID, "idempotency_key", cmd.IdempotencyKey)
		return existing, nil
	case !errs.Is(err, errs.CodeNotFound):
		return checkoutdomain.Checkout{}, fmt.Errorf("checkout dedup lookup: %w", err)
	}

	items, err := s.priceItems(ctx, cmd.Items)
	if err != nil {
		return checkoutdomain.Checkout{}, err
	}

	chk, err := checkoutdomain.New(cmd.MemberID, cmd.IdempotencyKey, items,
		cmd.PaymentMethod, cmd.PgProvider, cmd.Shipping, cmd.ShippingFee,
		s.checkoutTTL, s.clock())
	if err != nil {
		return checkoutdomain.Checkout{}, wrapDomainErr(err)
	}

	requirements := chk.StockRequirements()
	if err := s.stock.Reserve(ctx, chk.ID, requirements); err != nil {
		var shortage *stock.InsufficientStockError
		if errors.As(err, &shortage) {
			s.countShortage()
			return checkoutdomain.Checkout{}, errs.Wrap(errs.CodeConflict, err, "stock reservation failed")
		}
		return checkoutdomain.Checkout{}, err
	}

	chk, err = chk.MarkPendingPayment(s.clock())
	if err != nil {
		_ = s.stock.Release(ctx, requirements)
		return checkoutdomain.Checkout{}, wrapDomainErr(err)
	}

	if err := s.tx.WithTx(ctx, func(q postgres.Querier) error {
		return s.checkouts.Insert(ctx, q, chk)
	}); err != nil {
		// the decrement is already durable in the counter store, undo it
		if relErr := s.stock.Release(ctx, requirements); relErr != nil {
			slog.ErrorContext(ctx, "CRITICAL: stock release after failed insert",
				"checkout_id", chk.ID, "error", relErr)
		}
		return checkoutdomain.Checkout{}, fmt.Errorf("persist checkout: %w", err)
	}

	s.countCreated()
	slog.InfoContext(ctx, "checkout created",
		"checkout_id", chk.ID, "member_id", chk.MemberID,
		"final_amount", chk.FinalAmount.String(), "expires_at", chk.ExpiresAt)
	return chk, nil
}

// CompletionResult is what a successful completion produced.
type CompletionResult struct {
	Checkout checkoutdomain.Checkout
	Payment  paymentdomain.Payment
	Orders   []*orderdomain.Order
}

// Complete verifies the gateway callback and, in one transaction, records
// the approved payment, fans the checkout out into one order per seller,
// and appends the ledger entries. Calling it again for a completed checkout
// returns the original result.
func (s *Service) Complete(ctx context.Context, checkoutID, pgTransactionID string, approvedAmount decimal.Decimal) (*CompletionResult, error) {
	if checkoutID == "" || pgTransactionID == "" {
		return nil, errs.New(errs.CodeValidation, "checkout id and pg transaction id required")
	}

	key := completeLockPrefix + checkoutID
	if err := s.acquire(ctx, key, "checkout_complete"); err != nil {
		return nil, err
	}
	defer s.release(ctx, key)

	chk, err := s.checkouts.Get(ctx, s.db, checkoutID)
	if err != nil {
		return nil, err
	}

	if chk.Status == checkoutdomain.StatusCompleted {
		return s.completedResult(ctx, chk)
	}
	if !chk.CanPay(s.clock()) {
		return nil, errs.Newf(errs.CodeConflict,
			"checkout %s is %s and cannot be paid", chk.ID, chk.Status)
	}
	if !approvedAmount.Equal(chk.FinalAmount) {
		recErr := &checkoutdomain.ReconciliationError{
			CheckoutID: chk.ID,
			Expected:   chk.FinalAmount.String(),
			Actual:     approvedAmount.String(),
		}
		slog.ErrorContext(ctx, "amount reconciliation failed",
			"checkout_id", chk.ID, "expected", chk.FinalAmount.String(),
			"approved", approvedAmount.String(), "pg_transaction_id", pgTransactionID)
		return nil, errs.Wrap(errs.CodeReconciliation, recErr, "approved amount mismatch")
	}

	now := s.clock()

	payment, err := paymentdomain.NewRequest(chk.ID, chk.PgProvider, chk.PaymentMethod, chk.FinalAmount, now)
	if err != nil {
		return nil, wrapDomainErr(err)
	}
	payment, err = payment.Approve(pgTransactionID, approvedAmount, now)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	completed, err := chk.Complete(now)
	if err != nil {
		return nil, wrapDomainErr(err)
	}

	orders, err := s.fanOutOrders(completed, now)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(q postgres.Querier) error {
		if err := s.checkouts.Update(ctx, q, completed, chk.Version); err != nil {
			return err
		}
		if err := s.payments.Insert(ctx, q, payment); err != nil {
			return err
		}
		for _, o := range orders {
			if err := s.orders.Insert(ctx, q, o); err != nil {
				return err
			}
			if _, err := s.events.Append(ctx, q, eventdomain.Command{
				OrderID:       o.ID,
				Type:          eventdomain.OrderCreated,
				CurrentStatus: string(o.Status),
				ActorType:     eventdomain.ActorSystem,
				Metadata:      map[string]string{"checkoutId": chk.ID, "orderNumber": o.OrderNumber},
			}); err != nil {
				return err
			}
			if _, err := s.events.Append(ctx, q, eventdomain.Command{
				OrderID:       o.ID,
				Type:          eventdomain.PaymentApproved,
				SourceID:      payment.ID,
				CurrentStatus: string(payment.Status),
				ActorType:     eventdomain.ActorSystem,
				Metadata:      map[string]string{"pgTransactionId": pgTransactionID},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("complete checkout %s: %w", chk.ID, err)
	}

	s.countCompleted()
	slog.InfoContext(ctx, "checkout completed",
		"checkout_id", chk.ID, "payment_id", payment.ID, "orders", len(orders))
	return &CompletionResult{Checkout: completed, Payment: payment, Orders: orders}, nil
}

// Expire transitions a stale checkout to EXPIRED and restores its stock.
// The payment deadline must have passed; losing the race against Complete
// is reported as a conflict and leaves all state untouched.
func (s *Service) Expire(ctx context.Context, checkoutID string) (checkoutdomain.Checkout, error) {
	chk, err := s.checkouts.Get(ctx, s.db, checkoutID)
	if err != nil {
		return checkoutdomain.Checkout{}, err
	}

	now := s.clock()
	expired, err := chk.Expire(now)
	if err != nil {
		return checkoutdomain.Checkout{}, wrapDomainErr(err)
	}
	if !chk.IsExpired(now) {
		return checkoutdomain.Checkout{}, errs.Newf(errs.CodeConflict,
			"checkout %s payment window is open until %s", chk.ID, chk.ExpiresAt.Format(time.RFC3339))
	}

	if err := s.tx.WithTx(ctx, func(q postgres.Querier) error {
		return s.checkouts.Update(ctx, q, expired, chk.Version)
	}); err != nil {
		return checkoutdomain.Checkout{}, err
	}

	// stock restore happens after the row transition won; a crash between
	// the two leaks reserved stock until the counter TTL reaps it
	if err := s.stock.Release(ctx, chk.StockRequirements()); err != nil {
		slog.ErrorContext(ctx, "CRITICAL: stock release on expiry",
			"checkout_id", chk.ID, "error", err)
	}

	s.countExpired()
	slog.InfoContext(ctx, "checkout expired", "checkout_id", chk.ID)
	return expired, nil
}

// Cancel is the customer-driven counterpart of Expire.
func (s *Service) Cancel(ctx context.Context, checkoutID string) (checkoutdomain.Checkout, error) {
	chk, err := s.checkouts.Get(ctx, s.db, checkoutID)
	if err != nil {
		return checkoutdomain.Checkout{}, err
	}

	cancelled, err := chk.Cancel(s.clock())
	if err != nil {
		return checkoutdomain.Checkout{}, wrapDomainErr(err)
	}

	if err := s.tx.WithTx(ctx, func(q postgres.Querier) error {
		return s.checkouts.Update(ctx, q, cancelled, chk.Version)
	}); err != nil {
		return checkoutdomain.Checkout{}, err
	}

	if err := s.stock.Release(ctx, chk.StockRequirements()); err != nil {
		slog.ErrorContext(ctx, "CRITICAL: stock release on cancel",
			"checkout_id", chk.ID, "error", err)
	}

	slog.InfoContext(ctx, "checkout cancelled", "checkout_id", chk.ID)
	return cancelled, nil
}

// Get loads one checkout.
func (s *Service) Get(ctx context.Context, checkoutID string) (checkoutdomain.Checkout, error) {
	return s.checkouts.Get(ctx, s.db, checkoutID)
}

func (s *Service) completedResult(ctx context.Context, chk checkoutdomain.Checkout) (*CompletionResult, error) {
	payment, err := s.payments.GetByCheckoutID(ctx, s.db, chk.ID)
	if err != nil {
		return nil, fmt.Errorf("load payment for completed checkout %s: %w", chk.ID, err)
	}
	orders, err := s.orders.ListByCheckoutID(ctx, s.db, chk.ID)
	if err != nil {
		return nil, fmt.Errorf("load orders for completed checkout %s: %w", chk.ID, err)
	}
	slog.InfoContext(ctx, "checkout completion replayed", "checkout_id", chk.ID)
	return &CompletionResult{Checkout: chk, Payment: payment, Orders: orders}, nil
}

// fanOutOrders builds one order per seller from the completed checkout.
func (s *Service) fanOutOrders(chk checkoutdomain.Checkout, now time.Time) ([]*orderdomain.Order, error) {
	bySeller := chk.ItemsBySeller()
	sellers := chk.SellerIDs()

	orders := make([]*orderdomain.Order, 0, len(bySeller))
	for i, sellerID := range sellers {
		items := make([]orderdomain.Item, 0, len(bySeller[sellerID]))
		for _, ci := range bySeller[sellerID] {
			item, err := orderdomain.NewItem(ci.ProductID, ci.ProductStockID, ci.Quantity, ci.UnitPrice,
				orderdomain.ProductSnapshot{
					Name:       ci.Snapshot.Name,
					ImageURL:   ci.Snapshot.ImageURL,
					OptionName: ci.Snapshot.OptionName,
					BrandName:  ci.Snapshot.BrandName,
					SellerName: ci.Snapshot.SellerName,
				})
			if err != nil {
				return nil, wrapDomainErr(err)
			}
			items = append(items, item)
		}
		// the checkout-level shipping fee is charged once, on the first
		// seller's order
		fee := decimal.Zero
		if i == 0 {
			fee = chk.ShippingFee
		}
		o, err := orderdomain.New(chk.ID, chk.MemberID, sellerID, items, fee,
			orderdomain.ShippingInfo{
				ReceiverName:  chk.Shipping.ReceiverName,
				ReceiverPhone: chk.Shipping.ReceiverPhone,
				ZipCode:       chk.Shipping.ZipCode,
				Address:       chk.Shipping.Address,
				AddressDetail: chk.Shipping.AddressDetail,
				Memo:          chk.Shipping.Memo,
			}, now)
		if err != nil {
			return nil, wrapDomainErr(err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// priceItems resolves every SKU against the catalog projection and builds
// priced, snapshotted checkout items.
func (s *Service) priceItems(ctx context.Context, items []CreateItem) ([]checkoutdomain.Item, error) {
	if len(items) == 0 {
		return nil, errs.New(errs.CodeValidation, "at least one item required")
	}
	skus := make([]int64, 0, len(items))
	for _, it := range items {
		skus = append(skus, it.ProductStockID)
	}
	products, err := s.catalog.Products(ctx, skus)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return nil, errs.Wrap(errs.CodeValidation, err, "unknown product in checkout")
		}
		return nil, err
	}

	out := make([]checkoutdomain.Item, 0, len(items))
	for _, it := range items {
		p := products[it.ProductStockID]
		out = append(out, checkoutdomain.Item{
			ProductStockID: p.ProductStockID,
			ProductID:      p.ProductID,
			SellerID:       p.SellerID,
			Quantity:       it.Quantity,
			UnitPrice:      p.Price,
			Snapshot: checkoutdomain.ProductSnapshot{
				Name:       p.Name,
				ImageURL:   p.ImageURL,
				OptionName: p.OptionName,
				BrandName:  p.BrandName,
				SellerName: p.SellerName,
			},
		})
	}
	return out, nil
}

// matchesExisting decides whether a replayed creation request is logically
// the same purchase intent. Every field of the payload counts; a reused key
// with a different destination or provider is a divergent request.
func (s *Service) matchesExisting(existing checkoutdomain.Checkout, cmd CreateCommand) bool {
	if existing.MemberID != cmd.MemberID || existing.PaymentMethod != cmd.PaymentMethod {
		return false
	}
	if existing.PgProvider != cmd.PgProvider || existing.Shipping != cmd.Shipping {
		return false
	}
	if !existing.ShippingFee.Equal(cmd.ShippingFee) {
		return false
	}
	want := map[int64]int{}
	for _, it := range cmd.Items {
		want[it.ProductStockID] += it.Quantity
	}
	have := existing.StockRequirements()
	if len(want) != len(have) {
		return false
	}
	for sku, qty := range want {
		if have[sku] != qty {
			return false
		}
	}
	return true
}

func (s *Service) acquire(ctx context.Context, key, resource string) error {
	start := s.clock()
	acquired, err := s.locker.TryLock(ctx, key, s.lockWait, s.lockLease)
	s.observeLockWait(resource, s.clock().Sub(start))
	if err != nil {
		if errors.Is(err, lock.ErrInterrupted) {
			return errs.Wrap(errs.CodeTimeout, err, "lock wait interrupted")
		}
		return err
	}
	if !acquired {
		s.countLockTimeout(resource)
		return errs.Newf(errs.CodeTimeout, "resource %s busy, retry with the same idempotency key", key)
	}
	return nil
}

func (s *Service) release(ctx context.Context, key string) {
	if err := s.locker.Unlock(ctx, key); err != nil {
		slog.WarnContext(ctx, "lock release failed", "key", key, "error", err)
	}
}

func wrapDomainErr(err error) error {
	var (
		validation *checkoutdomain.ValidationError
		illegal    *checkoutdomain.IllegalStateTransitionError
		payStatus  *paymentdomain.InvalidPaymentStatusError
	)
	switch {
	case errors.As(err, &validation):
		return errs.Wrap(errs.CodeValidation, err, "invalid checkout")
	case errors.As(err, &illegal):
		return errs.Wrap(errs.CodeConflict, err, "illegal state transition")
	case errors.As(err, &payStatus):
		return errs.Wrap(errs.CodeConflict, err, "illegal payment transition")
	default:
		return err
	}
}

func (s *Service) countCreated() {
	if s.metrics != nil {
		s.metrics.CheckoutsCreated.Inc()
	}
}

func (s *Service) countDeduped() {
	if s.metrics != nil {
		s.metrics.CheckoutsDeduped.Inc()
	}
}

func (s *Service) countCompleted() {
	if s.metrics != nil {
		s.metrics.CheckoutsCompleted.Inc()
	}
}

func (s *Service) countExpired() {
	if s.metrics != nil {
		s.metrics.CheckoutsExpired.Inc()
	}
}

func (s *Service) countShortage() {
	if s.metrics != nil {
		s.metrics.StockShortages.Inc()
	}
}

func (s *Service) countLockTimeout(resource string) {
	if s.metrics != nil {
		s.metrics.LockTimeouts.WithLabelValues(resource).Inc()
	}
}

func (s *Service) observeLockWait(resource string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.LockWaitMS.WithLabelValues(resource).Observe(float64(d.Milliseconds()))
	}
}
