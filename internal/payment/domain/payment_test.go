package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func approvedPayment(t *testing.T, amount int64) Payment {
	t.Helper()
	p, err := NewRequest("chk-1", "portone", "CARD", decimal.NewFromInt(amount), now)
	require.NoError(t, err)
	p, err = p.Approve("pg-tx-1", decimal.NewFromInt(amount), now)
	require.NoError(t, err)
	return p
}

func TestApprove(t *testing.T) {
	p, err := NewRequest("chk-1", "portone", "CARD", decimal.NewFromInt(18000), now)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, p.Status)

	approved, err := p.Approve("pg-tx-1", decimal.NewFromInt(18000), now)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "pg-tx-1", approved.PgTransactionID)
	assert.True(t, approved.ApprovedAmount.Equal(decimal.NewFromInt(18000)))

	// Approving twice is a backward transition.
	_, err = approved.Approve("pg-tx-2", decimal.NewFromInt(18000), now)
	var invalid *InvalidPaymentStatusError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusApproved, invalid.Current)
	assert.Equal(t, StatusApproved, invalid.Target)
}

func TestRefundPartialThenFull(t *testing.T) {
	p := approvedPayment(t, 10000)

	p, err := p.Refund(decimal.NewFromInt(4000), now)
	require.NoError(t, err)
	assert.Equal(t, StatusPartialRefunded, p.Status)
	assert.True(t, p.RefundableAmount().Equal(decimal.NewFromInt(6000)))

	p, err = p.Refund(decimal.NewFromInt(6000), now)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.Status)
	assert.True(t, p.RefundedAmount.Equal(p.ApprovedAmount))

	// Fully refunded payments accept no further refunds.
	_, err = p.Refund(decimal.NewFromInt(1), now)
	var invalid *InvalidPaymentStatusError
	require.ErrorAs(t, err, &invalid)
}

func TestRefundExceedingRefundable(t *testing.T) {
	p := approvedPayment(t, 10000)

	_, err := p.Refund(decimal.NewFromInt(10001), now)
	var amountErr *RefundAmountError
	require.ErrorAs(t, err, &amountErr)
	assert.True(t, amountErr.Refundable.Equal(decimal.NewFromInt(10000)))

	// refundedAmount never exceeds approvedAmount even across partials.
	p, err = p.Refund(decimal.NewFromInt(9999), now)
	require.NoError(t, err)
	_, err = p.Refund(decimal.NewFromInt(2), now)
	require.ErrorAs(t, err, &amountErr)
}

func TestOnlyForwardTransitions(t *testing.T) {
	p, err := NewRequest("chk-1", "portone", "CARD", decimal.NewFromInt(5000), now)
	require.NoError(t, err)

	// REQUESTED cannot be refunded or cancelled.
	var invalid *InvalidPaymentStatusError
	_, err = p.Refund(decimal.NewFromInt(1000), now)
	require.ErrorAs(t, err, &invalid)
	_, err = p.Cancel(now)
	require.ErrorAs(t, err, &invalid)

	failed, err := p.Fail(now)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)

	// FAILED is terminal.
	_, err = failed.Approve("pg-tx", decimal.NewFromInt(5000), now)
	require.ErrorAs(t, err, &invalid)
}

func TestCancelAfterApproval(t *testing.T) {
	p := approvedPayment(t, 5000)
	cancelled, err := p.Cancel(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, now.Add(time.Minute), cancelled.CancelledAt)

	// Once partially refunded, direct cancel is no longer legal.
	p2 := approvedPayment(t, 5000)
	p2, err = p2.Refund(decimal.NewFromInt(1000), now)
	require.NoError(t, err)
	_, err = p2.Cancel(now)
	var invalid *InvalidPaymentStatusError
	require.ErrorAs(t, err, &invalid)
}

func TestDecimalExactness(t *testing.T) {
	p, err := NewRequest("chk-1", "portone", "CARD", decimal.RequireFromString("0.30"), now)
	require.NoError(t, err)
	p, err = p.Approve("pg-tx", decimal.RequireFromString("0.30"), now)
	require.NoError(t, err)

	// 0.1 + 0.2 == 0.3 exactly under decimal arithmetic.
	p, err = p.Refund(decimal.RequireFromString("0.10"), now)
	require.NoError(t, err)
	p, err = p.Refund(decimal.RequireFromString("0.20"), now)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, p.Status)
}
