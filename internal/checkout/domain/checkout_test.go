package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func testItems() []Item {
	return []Item{
		{ProductStockID: 100, ProductID: 10, SellerID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(2500)},
		{ProductStockID: 200, ProductID: 20, SellerID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(10000)},
	}
}

func newCheckout(t *testing.T) Checkout {
	t.Helper()
	c, err := New("member-1", "K1", testItems(), "CARD", "portone",
		ShippingInfo{ReceiverName: "Kim", Address: "Seoul"}, decimal.NewFromInt(3000), 30*time.Minute, now)
	require.NoError(t, err)
	return c
}

func TestNewComputesTotalsServerSide(t *testing.T) {
	c := newCheckout(t)

	assert.True(t, c.TotalItemAmount.Equal(decimal.NewFromInt(15000)), "2*2500 + 1*10000")
	assert.True(t, c.FinalAmount.Equal(c.TotalItemAmount.Add(c.ShippingFee)))
	assert.Equal(t, StatusCreated, c.Status)
	assert.Equal(t, now.Add(30*time.Minute), c.ExpiresAt)
	assert.Len(t, c.ID, 26)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*[]Item, *string, *decimal.Decimal)
	}{
		{"empty items", func(items *[]Item, _ *string, _ *decimal.Decimal) { *items = nil }},
		{"zero quantity", func(items *[]Item, _ *string, _ *decimal.Decimal) { (*items)[0].Quantity = 0 }},
		{"negative price", func(items *[]Item, _ *string, _ *decimal.Decimal) {
			(*items)[0].UnitPrice = decimal.NewFromInt(-1)
		}},
		{"missing key", func(_ *[]Item, key *string, _ *decimal.Decimal) { *key = "" }},
		{"negative shipping fee", func(_ *[]Item, _ *string, fee *decimal.Decimal) {
			*fee = decimal.NewFromInt(-100)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := testItems()
			key := "K1"
			fee := decimal.NewFromInt(3000)
			tt.mutate(&items, &key, &fee)

			_, err := New("member-1", key, items, "CARD", "portone", ShippingInfo{}, fee, time.Minute, now)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestLifecycleTransitions(t *testing.T) {
	c := newCheckout(t)

	pending, err := c.MarkPendingPayment(now)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPayment, pending.Status)
	assert.Equal(t, c.Version+1, pending.Version)

	completed, err := pending.Complete(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Terminal states reject every further transition.
	_, err = completed.Expire(now)
	var ill *IllegalStateTransitionError
	require.ErrorAs(t, err, &ill)
	assert.Equal(t, string(StatusCompleted), ill.From)

	_, err = completed.Cancel(now)
	require.ErrorAs(t, err, &ill)
}

func TestExpireOnlyFromPendingPayment(t *testing.T) {
	c := newCheckout(t)

	_, err := c.Expire(now)
	var ill *IllegalStateTransitionError
	require.ErrorAs(t, err, &ill)

	pending, err := c.MarkPendingPayment(now)
	require.NoError(t, err)
	expired, err := pending.Expire(now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, expired.Status)

	// A late complete loses the race.
	_, err = expired.Complete(now.Add(2 * time.Hour))
	require.ErrorAs(t, err, &ill)
}

func TestIsExpiredAndCanPay(t *testing.T) {
	c := newCheckout(t)
	pending, err := c.MarkPendingPayment(now)
	require.NoError(t, err)

	assert.True(t, pending.CanPay(now.Add(time.Minute)))
	assert.False(t, pending.CanPay(now.Add(time.Hour)))
	assert.True(t, pending.IsExpired(now.Add(time.Hour)))

	completed, err := pending.Complete(now)
	require.NoError(t, err)
	assert.False(t, completed.IsExpired(now.Add(time.Hour)), "terminal checkouts never expire")
}

func TestStockRequirementsSumDuplicateSKUs(t *testing.T) {
	items := testItems()
	items = append(items, Item{ProductStockID: 100, ProductID: 10, SellerID: 1, Quantity: 3, UnitPrice: decimal.NewFromInt(2500)})
	c, err := New("member-1", "K1", items, "CARD", "portone", ShippingInfo{}, decimal.Zero, time.Minute, now)
	require.NoError(t, err)

	req := c.StockRequirements()
	assert.Equal(t, map[int64]int{100: 5, 200: 1}, req)
}

func TestItemsBySeller(t *testing.T) {
	c := newCheckout(t)
	groups := c.ItemsBySeller()
	require.Len(t, groups, 2)
	assert.Len(t, groups[1], 1)
	assert.Len(t, groups[2], 1)
	assert.Equal(t, []int64{1, 2}, c.SellerIDs())
}
