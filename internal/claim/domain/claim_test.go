package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClaim(t *testing.T, claimType Type) *Claim {
	t.Helper()
	amount := decimal.NewFromInt(10000)
	if claimType == TypeExchange {
		amount = decimal.Zero
	}
	c, err := New("01ORDER", "01ITEM", "member-7", claimType, "changed my mind", 1, amount, time.Now())
	require.NoError(t, err)
	return c
}

func TestNewClaimValidation(t *testing.T) {
	now := time.Now()
	amount := decimal.NewFromInt(5000)

	cases := []struct {
		name         string
		orderID      string
		memberID     string
		claimType    Type
		reason       string
		quantity     int
		refundAmount decimal.Decimal
		wantErr      string
	}{
		{"missing order", "", "m1", TypeCancel, "r", 1, amount, "order id"},
		{"missing member", "01ORDER", "", TypeCancel, "r", 1, amount, "member id"},
		{"bad type", "01ORDER", "m1", Type("TELEPORT"), "r", 1, amount, "unknown type"},
		{"missing reason", "01ORDER", "m1", TypeReturn, "", 1, amount, "reason required"},
		{"zero quantity", "01ORDER", "m1", TypeReturn, "r", 0, amount, "quantity"},
		{"refund without amount", "01ORDER", "m1", TypeRefund, "r", 1, decimal.Zero, "refund amount required"},
		{"exchange with amount", "01ORDER", "m1", TypeExchange, "r", 1, amount, "no refund amount"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.orderID, "01ITEM", tc.memberID, tc.claimType, tc.reason, tc.quantity, tc.refundAmount, now)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestClaimNumberPrefix(t *testing.T) {
	c := testClaim(t, TypeCancel)
	assert.Contains(t, c.ClaimNumber, "CLM-")
	assert.Equal(t, StatusRequested, c.Status)
}

func TestClaimApprovalFlow(t *testing.T) {
	c := testClaim(t, TypeReturn)
	now := time.Now()

	c, err := c.Approve(now)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, c.Status)
	assert.False(t, c.ApprovedAt.IsZero())

	c, err = c.Start(now)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, c.Status)

	c, err = c.Complete(now)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
	assert.True(t, c.IsTerminal())
}

func TestClaimCompleteDirectlyFromApproved(t *testing.T) {
	c := testClaim(t, TypeCancel)
	c, err := c.Approve(time.Now())
	require.NoError(t, err)

	c, err = c.Complete(time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)
}

func TestClaimReject(t *testing.T) {
	c := testClaim(t, TypeRefund)

	_, err := c.Reject("", time.Now())
	assert.ErrorContains(t, err, "reject reason")

	rejected, err := c.Reject("outside return window", time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.True(t, rejected.IsTerminal())

	_, err = rejected.Approve(time.Now())
	var tre *StatusTransitionError
	require.ErrorAs(t, err, &tre)
	assert.Equal(t, StatusRejected, tre.From)
}

func TestClaimTransitionsGuarded(t *testing.T) {
	c := testClaim(t, TypeCancel)

	_, err := c.Start(time.Now())
	assert.Error(t, err, "start before approval")

	_, err = c.Complete(time.Now())
	assert.Error(t, err, "complete before approval")

	approved, err := c.Approve(time.Now())
	require.NoError(t, err)
	_, err = approved.Approve(time.Now())
	assert.Error(t, err, "double approval")
	_, err = approved.Reject("late", time.Now())
	assert.Error(t, err, "reject after approval")
}

func TestRequiresRefund(t *testing.T) {
	assert.True(t, TypeCancel.RequiresRefund())
	assert.True(t, TypeReturn.RequiresRefund())
	assert.True(t, TypeRefund.RequiresRefund())
	assert.False(t, TypeExchange.RequiresRefund())
}
