package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder(t *testing.T) *Order {
	t.Helper()
	item, err := NewItem(100, 200, 3, decimal.NewFromInt(10000), ProductSnapshot{Name: "sneaker", SellerName: "acme"})
	require.NoError(t, err)
	o, err := New("01CHECKOUT", "member-7", 42, []Item{item}, decimal.NewFromInt(3000), ShippingInfo{ReceiverName: "kim"}, time.Now())
	require.NoError(t, err)
	return o
}

func TestNewOrderComputesAmounts(t *testing.T) {
	a, err := NewItem(1, 11, 2, decimal.NewFromInt(5000), ProductSnapshot{})
	require.NoError(t, err)
	b, err := NewItem(2, 22, 1, decimal.RequireFromString("1999.50"), ProductSnapshot{})
	require.NoError(t, err)

	o, err := New("01CHECKOUT", "member-7", 42, []Item{a, b}, decimal.NewFromInt(2500), ShippingInfo{}, time.Now())
	require.NoError(t, err)

	assert.True(t, o.TotalItemAmount.Equal(decimal.RequireFromString("11999.50")), "got %s", o.TotalItemAmount)
	assert.True(t, o.FinalAmount.Equal(decimal.RequireFromString("14499.50")), "got %s", o.FinalAmount)
	assert.Equal(t, StatusOrdered, o.Status)
	assert.False(t, o.OrderedAt.IsZero())
	assert.Contains(t, o.OrderNumber, "ORD-")
}

func TestOrderLifecycle(t *testing.T) {
	o := testOrder(t)
	now := o.OrderedAt

	o, err := o.Confirm(now.Add(time.Minute))
	require.NoError(t, err)
	o, err = o.Ship(now.Add(2 * time.Minute))
	require.NoError(t, err)
	o, err = o.Deliver(now.Add(3 * time.Minute))
	require.NoError(t, err)
	o, err = o.Complete(now.Add(4 * time.Minute))
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, o.Status)
	assert.True(t, o.IsTerminal())
	assert.Equal(t, int64(5), o.Version)
}

func TestOrderTransitionRejectedWhenTimestampSet(t *testing.T) {
	o := testOrder(t)
	confirmed, err := o.Confirm(o.OrderedAt.Add(time.Minute))
	require.NoError(t, err)

	_, err = confirmed.Confirm(o.OrderedAt.Add(2 * time.Minute))
	var tre *StatusTransitionError
	require.ErrorAs(t, err, &tre)
	assert.Equal(t, StatusConfirmed, tre.From)

	// original value untouched
	assert.Equal(t, StatusOrdered, o.Status)
	assert.True(t, o.ConfirmedAt.IsZero())
}

func TestOrderTransitionsAreForwardOnly(t *testing.T) {
	o := testOrder(t)

	_, err := o.Ship(o.OrderedAt.Add(time.Minute))
	assert.Error(t, err, "ship before confirm")

	_, err = o.Deliver(o.OrderedAt.Add(time.Minute))
	assert.Error(t, err, "deliver before ship")

	_, err = o.Complete(o.OrderedAt.Add(time.Minute))
	assert.Error(t, err, "complete before deliver")
}

func TestOrderClockMonotonic(t *testing.T) {
	o := testOrder(t)
	_, err := o.Confirm(o.OrderedAt.Add(-time.Second))
	assert.ErrorContains(t, err, "precedes")
}

func TestOrderCancelOnlyBeforeShipping(t *testing.T) {
	o := testOrder(t)

	cancelled, err := o.Cancel(o.OrderedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 0, cancelled.Items[0].EffectiveQuantity())
	assert.Equal(t, ItemCancelled, cancelled.Items[0].Status())

	confirmed, err := o.Confirm(o.OrderedAt.Add(time.Minute))
	require.NoError(t, err)
	_, err = confirmed.Cancel(o.OrderedAt.Add(2 * time.Minute))
	assert.NoError(t, err, "cancel from CONFIRMED allowed")

	shipped, err := confirmed.Ship(o.OrderedAt.Add(2 * time.Minute))
	require.NoError(t, err)
	_, err = shipped.Cancel(o.OrderedAt.Add(3 * time.Minute))
	var tre *StatusTransitionError
	assert.ErrorAs(t, err, &tre)
}

func TestItemQuantityAccounting(t *testing.T) {
	o := testOrder(t)
	itemID := o.Items[0].ID

	o, err := o.CancelItem(itemID, 1)
	require.NoError(t, err)
	it, _ := o.Item(itemID)
	assert.Equal(t, 2, it.EffectiveQuantity())
	assert.Equal(t, ItemPartiallyCancelled, it.Status())

	o, err = o.RefundItem(itemID, 1)
	require.NoError(t, err)
	it, _ = o.Item(itemID)
	assert.Equal(t, 1, it.EffectiveQuantity())
	assert.Equal(t, ItemPartiallyRefunded, it.Status())

	// consuming the last unit can never go negative
	_, err = o.RefundItem(itemID, 2)
	var qe *QuantityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 1, qe.Effective)

	o, err = o.RefundItem(itemID, 1)
	require.NoError(t, err)
	it, _ = o.Item(itemID)
	assert.Equal(t, 0, it.EffectiveQuantity())
	assert.Equal(t, ItemRefunded, it.Status(), "refund wins when fully consumed")
}

func TestItemFullCancelStatus(t *testing.T) {
	item, err := NewItem(1, 11, 2, decimal.NewFromInt(100), ProductSnapshot{})
	require.NoError(t, err)

	item, err = item.CancelQuantity(2)
	require.NoError(t, err)
	assert.Equal(t, ItemCancelled, item.Status())
}

func TestItemTotalPriceFixedAtOrderTime(t *testing.T) {
	item, err := NewItem(1, 11, 4, decimal.RequireFromString("2500.25"), ProductSnapshot{})
	require.NoError(t, err)
	assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("10001.00")))

	item, err = item.CancelQuantity(3)
	require.NoError(t, err)
	assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("10001.00")), "total price does not follow counters")
}
