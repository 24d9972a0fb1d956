package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setof-commerce/order-core/internal/claim/domain"
	orderdomain "github.com/setof-commerce/order-core/internal/order/domain"
	eventdomain "github.com/setof-commerce/order-core/internal/orderevent/domain"
	paymentdomain "github.com/setof-commerce/order-core/internal/payment/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	"github.com/setof-commerce/order-core/internal/pkg/postgres"
)

type fakeClaims struct {
	mu   sync.Mutex
	byID map[string]*domain.Claim
}

func (f *fakeClaims) Insert(_ context.Context, _ postgres.Querier, c *domain.Claim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.ID] = c
	return nil
}

func (f *fakeClaims) Get(_ context.Context, _ postgres.Querier, id string) (*domain.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "claim %s not found", id)
	}
	return c, nil
}

func (f *fakeClaims) Update(_ context.Context, _ postgres.Querier, c *domain.Claim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[c.ID] = c
	return nil
}

func (f *fakeClaims) ListByOrder(_ context.Context, _ postgres.Querier, orderID string) ([]*domain.Claim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Claim
	for _, c := range f.byID {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeOrders struct {
	mu   sync.Mutex
	byID map[string]*orderdomain.Order
}

func (f *fakeOrders) Get(_ context.Context, _ postgres.Querier, id string) (*orderdomain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.byID[id]
	if !ok {
		return nil, errs.Newf(errs.CodeNotFound, "order %s not found", id)
	}
	return o, nil
}

func (f *fakeOrders) Update(_ context.Context, _ postgres.Querier, o *orderdomain.Order, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID[o.ID].Version != expectedVersion {
		return errs.Newf(errs.CodeConflict, "order %s version moved", o.ID)
	}
	f.byID[o.ID] = o
	return nil
}

type fakePayments struct {
	mu         sync.Mutex
	byCheckout map[string]paymentdomain.Payment
}

func (f *fakePayments) GetByCheckoutID(_ context.Context, _ postgres.Querier, checkoutID string) (paymentdomain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byCheckout[checkoutID]
	if !ok {
		return paymentdomain.Payment{}, errs.Newf(errs.CodeNotFound, "no payment for checkout %s", checkoutID)
	}
	return p, nil
}

func (f *fakePayments) Update(_ context.Context, _ postgres.Querier, p paymentdomain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byCheckout[p.CheckoutID] = p
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*eventdomain.Event
}

func (f *fakeEvents) Append(_ context.Context, _ postgres.Querier, cmd eventdomain.Command) (*eventdomain.Event, error) {
	ev, err := eventdomain.NewEvent(cmd, time.Now())
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return ev, nil
}

func (f *fakeEvents) types() []eventdomain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]eventdomain.EventType, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type fakeStock struct {
	mu       sync.Mutex
	restored map[int64]int
}

func (f *fakeStock) Release(_ context.Context, requirements map[int64]int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restored == nil {
		f.restored = map[int64]int{}
	}
	for sku, qty := range requirements {
		f.restored[sku] += qty
	}
	return nil
}

type fakeTx struct{}

func (fakeTx) WithTx(_ context.Context, fn func(q postgres.Querier) error) error {
	return fn(nil)
}

type fixture struct {
	service  *Service
	claims   *fakeClaims
	orders   *fakeOrders
	payments *fakePayments
	events   *fakeEvents
	stock    *fakeStock
	order    *orderdomain.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	itemA, err := orderdomain.NewItem(1, 101, 2, decimal.NewFromInt(10000), orderdomain.ProductSnapshot{Name: "hoodie"})
	require.NoError(t, err)
	itemB, err := orderdomain.NewItem(2, 102, 1, decimal.NewFromInt(5000), orderdomain.ProductSnapshot{Name: "cap"})
	require.NoError(t, err)
	order, err := orderdomain.New("01CHK", "member-1", 11, []orderdomain.Item{itemA, itemB},
		decimal.NewFromInt(3000), orderdomain.ShippingInfo{}, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	payment, err := paymentdomain.NewRequest("01CHK", "TOSS", "CARD", decimal.NewFromInt(28000), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	payment, err = payment.Approve("pg-tx-1", decimal.NewFromInt(28000), time.Now().Add(-time.Hour))
	require.NoError(t, err)

	fx := &fixture{
		claims:   &fakeClaims{byID: map[string]*domain.Claim{}},
		orders:   &fakeOrders{byID: map[string]*orderdomain.Order{order.ID: order}},
		payments: &fakePayments{byCheckout: map[string]paymentdomain.Payment{"01CHK": payment}},
		events:   &fakeEvents{},
		stock:    &fakeStock{},
		order:    order,
	}
	fx.service = NewService(fx.claims, fx.orders, fx.payments, fx.events, fx.stock, nil, fakeTx{})
	return fx
}

func TestRequestItemClaim(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[0].ID,
		MemberID:     "member-1",
		Type:         domain.TypeReturn,
		Reason:       "wrong size",
		Quantity:     1,
		RefundAmount: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRequested, claim.Status)
	assert.Equal(t, []eventdomain.EventType{eventdomain.ClaimRequested}, fx.events.types())
}

func TestRequestRejectsForeignMember(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[0].ID,
		MemberID:     "someone-else",
		Type:         domain.TypeReturn,
		Reason:       "wrong size",
		Quantity:     1,
		RefundAmount: decimal.NewFromInt(10000),
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeNotFound, errs.CodeOf(err))
}

func TestRequestRejectsExcessQuantity(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[0].ID,
		MemberID:     "member-1",
		Type:         domain.TypeCancel,
		Reason:       "too many",
		Quantity:     3,
		RefundAmount: decimal.NewFromInt(30000),
	})
	require.Error(t, err)
	assert.Equal(t, errs.CodeConflict, errs.CodeOf(err))
}

func TestApproveCancelItemClaim(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[0].ID,
		MemberID:     "member-1",
		Type:         domain.TypeCancel,
		Reason:       "changed my mind",
		Quantity:     1,
		RefundAmount: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)

	approved, err := fx.service.Approve(context.Background(), claim.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, approved.Status, "money-only claims close immediately")

	o := fx.orders.byID[fx.order.ID]
	item, _ := o.Item(fx.order.Items[0].ID)
	assert.Equal(t, 1, item.CancelledQuantity)
	assert.Equal(t, 1, item.EffectiveQuantity())
	assert.Equal(t, orderdomain.ItemPartiallyCancelled, item.Status())

	p := fx.payments.byCheckout["01CHK"]
	assert.Equal(t, paymentdomain.StatusPartialRefunded, p.Status)
	assert.True(t, p.RefundedAmount.Equal(decimal.NewFromInt(10000)))

	assert.Equal(t, 1, fx.stock.restored[101], "cancelled goods re-enter stock")
	assert.Contains(t, fx.events.types(), eventdomain.ClaimApproved)
	assert.Contains(t, fx.events.types(), eventdomain.PaymentPartialRefunded)
}

func TestApproveReturnClaimStaysInProgress(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[1].ID,
		MemberID:     "member-1",
		Type:         domain.TypeReturn,
		Reason:       "defective",
		Quantity:     1,
		RefundAmount: decimal.NewFromInt(5000),
	})
	require.NoError(t, err)

	approved, err := fx.service.Approve(context.Background(), claim.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, approved.Status)

	completed, err := fx.service.Complete(context.Background(), claim.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Contains(t, fx.events.types(), eventdomain.ClaimCompleted)

	o := fx.orders.byID[fx.order.ID]
	item, _ := o.Item(fx.order.Items[1].ID)
	assert.Equal(t, 1, item.RefundedQuantity)
	assert.Equal(t, orderdomain.ItemRefunded, item.Status())
}

func TestApproveWholeOrderCancel(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		MemberID:     "member-1",
		Type:         domain.TypeCancel,
		Reason:       "ordered twice",
		Quantity:     3,
		RefundAmount: decimal.NewFromInt(28000),
	})
	require.NoError(t, err)

	_, err = fx.service.Approve(context.Background(), claim.ID, "admin-1")
	require.NoError(t, err)

	o := fx.orders.byID[fx.order.ID]
	assert.Equal(t, orderdomain.StatusCancelled, o.Status)
	for _, it := range o.Items {
		assert.Equal(t, 0, it.EffectiveQuantity())
	}

	p := fx.payments.byCheckout["01CHK"]
	assert.Equal(t, paymentdomain.StatusRefunded, p.Status)

	assert.Equal(t, 2, fx.stock.restored[101])
	assert.Equal(t, 1, fx.stock.restored[102])
	assert.Contains(t, fx.events.types(), eventdomain.OrderCancelled)
	assert.Contains(t, fx.events.types(), eventdomain.PaymentRefunded)
}

func TestApproveRefundKeepsGoods(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[0].ID,
		MemberID:     "member-1",
		Type:         domain.TypeRefund,
		Reason:       "arrived damaged, discount agreed",
		Quantity:     1,
		RefundAmount: decimal.NewFromInt(4000),
	})
	require.NoError(t, err)

	_, err = fx.service.Approve(context.Background(), claim.ID, "admin-1")
	require.NoError(t, err)

	assert.Empty(t, fx.stock.restored, "goods stay with the customer")
	p := fx.payments.byCheckout["01CHK"]
	assert.True(t, p.RefundedAmount.Equal(decimal.NewFromInt(4000)))
}

func TestApproveRejectsOverRefund(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[0].ID,
		MemberID:     "member-1",
		Type:         domain.TypeRefund,
		Reason:       "overcharge",
		Quantity:     1,
		RefundAmount: decimal.NewFromInt(99999),
	})
	require.NoError(t, err)

	_, err = fx.service.Approve(context.Background(), claim.ID, "admin-1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeConflict, errs.CodeOf(err))
}

func TestRejectClaim(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:      fx.order.ID,
		OrderItemID:  fx.order.Items[0].ID,
		MemberID:     "member-1",
		Type:         domain.TypeReturn,
		Reason:       "no longer wanted",
		Quantity:     1,
		RefundAmount: decimal.NewFromInt(10000),
	})
	require.NoError(t, err)

	rejected, err := fx.service.Reject(context.Background(), claim.ID, "outside return window", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)

	// no side effects
	o := fx.orders.byID[fx.order.ID]
	item, _ := o.Item(fx.order.Items[0].ID)
	assert.Equal(t, 2, item.EffectiveQuantity())
	assert.Empty(t, fx.stock.restored)
	p := fx.payments.byCheckout["01CHK"]
	assert.True(t, p.RefundedAmount.IsZero())

	_, err = fx.service.Approve(context.Background(), claim.ID, "admin-1")
	require.Error(t, err)
	assert.Equal(t, errs.CodeConflict, errs.CodeOf(err))
}

func TestExchangeClaimTouchesNothing(t *testing.T) {
	fx := newFixture(t)

	claim, err := fx.service.Request(context.Background(), RequestCommand{
		OrderID:     fx.order.ID,
		OrderItemID: fx.order.Items[0].ID,
		MemberID:    "member-1",
		Type:        domain.TypeExchange,
		Reason:      "need a bigger size",
		Quantity:    1,
	})
	require.NoError(t, err)

	approved, err := fx.service.Approve(context.Background(), claim.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, approved.Status)

	o := fx.orders.byID[fx.order.ID]
	item, _ := o.Item(fx.order.Items[0].ID)
	assert.Equal(t, 2, item.EffectiveQuantity())
	p := fx.payments.byCheckout["01CHK"]
	assert.True(t, p.RefundedAmount.IsZero())
}
