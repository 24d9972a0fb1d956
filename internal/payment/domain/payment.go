// Package domain holds the Payment aggregate: the monetary transaction tied
// 1:1 to a checkout. All amount math uses exact decimal arithmetic.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/setof-commerce/order-core/internal/pkg/ids"
)

// Status is the payment lifecycle state. Only forward transitions are legal.
type Status string

const (
	StatusRequested       Status = "REQUESTED"
	StatusApproved        Status = "APPROVED"
	StatusCancelled       Status = "CANCELLED"
	StatusPartialRefunded Status = "PARTIAL_REFUNDED"
	StatusRefunded        Status = "REFUNDED"
	StatusFailed          Status = "FAILED"
)

// InvalidPaymentStatusError rejects a backward or skip transition, naming
// the current and target states.
type InvalidPaymentStatusError struct {
	PaymentID string
	Current   Status
	Target    Status
}

func (e *InvalidPaymentStatusError) Error() string {
	return fmt.Sprintf("payment %s: cannot transition %s -> %s", e.PaymentID, e.Current, e.Target)
}

// RefundAmountError rejects a refund exceeding the remaining refundable
// amount.
type RefundAmountError struct {
	PaymentID  string
	Requested  decimal.Decimal
	Refundable decimal.Decimal
}

func (e *RefundAmountError) Error() string {
	return fmt.Sprintf("payment %s: refund %s exceeds refundable %s",
		e.PaymentID, e.Requested, e.Refundable)
}

// Payment is the aggregate root for one monetary transaction.
type Payment struct {
	ID              string
	CheckoutID      string
	PgProvider      string
	PgTransactionID string
	Method          string
	Status          Status
	RequestedAmount decimal.Decimal
	ApprovedAmount  decimal.Decimal
	RefundedAmount  decimal.Decimal
	Currency        string
	ApprovedAt      time.Time
	CancelledAt     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewRequest creates a payment in REQUESTED state, before the gateway round
// trip. The PG transaction id is set on approval.
func NewRequest(checkoutID, pgProvider, method string, requestedAmount decimal.Decimal, now time.Time) (Payment, error) {
	if checkoutID == "" || pgProvider == "" || method == "" {
		return Payment{}, fmt.Errorf("payment: checkout id, provider and method are required")
	}
	if !requestedAmount.IsPositive() {
		return Payment{}, fmt.Errorf("payment: requested amount must be positive, got %s", requestedAmount)
	}
	return Payment{
		ID:              ids.NewULID(),
		CheckoutID:      checkoutID,
		PgProvider:      pgProvider,
		Method:          method,
		Status:          StatusRequested,
		RequestedAmount: requestedAmount,
		ApprovedAmount:  decimal.Zero,
		RefundedAmount:  decimal.Zero,
		Currency:        "KRW",
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Approve transitions REQUESTED → APPROVED with the gateway correlation id.
func (p Payment) Approve(pgTransactionID string, approvedAmount decimal.Decimal, now time.Time) (Payment, error) {
	if p.Status != StatusRequested {
		return Payment{}, &InvalidPaymentStatusError{PaymentID: p.ID, Current: p.Status, Target: StatusApproved}
	}
	if pgTransactionID == "" {
		return Payment{}, fmt.Errorf("payment %s: pg transaction id required", p.ID)
	}
	if !approvedAmount.IsPositive() {
		return Payment{}, fmt.Errorf("payment %s: approved amount must be positive", p.ID)
	}
	p.Status = StatusApproved
	p.PgTransactionID = pgTransactionID
	p.ApprovedAmount = approvedAmount
	p.ApprovedAt = now
	p.UpdatedAt = now
	return p, nil
}

// Fail transitions REQUESTED → FAILED (gateway declined or timed out).
func (p Payment) Fail(now time.Time) (Payment, error) {
	if p.Status != StatusRequested {
		return Payment{}, &InvalidPaymentStatusError{PaymentID: p.ID, Current: p.Status, Target: StatusFailed}
	}
	p.Status = StatusFailed
	p.UpdatedAt = now
	return p, nil
}

// Cancel transitions APPROVED → CANCELLED (full void before any refund).
func (p Payment) Cancel(now time.Time) (Payment, error) {
	if p.Status != StatusApproved {
		return Payment{}, &InvalidPaymentStatusError{PaymentID: p.ID, Current: p.Status, Target: StatusCancelled}
	}
	p.Status = StatusCancelled
	p.CancelledAt = now
	p.UpdatedAt = now
	return p, nil
}

// Refund applies a partial or full refund. The resulting status is
// PARTIAL_REFUNDED until the cumulative refunds reach the approved amount,
// then REFUNDED.
func (p Payment) Refund(amount decimal.Decimal, now time.Time) (Payment, error) {
	if p.Status != StatusApproved && p.Status != StatusPartialRefunded {
		return Payment{}, &InvalidPaymentStatusError{PaymentID: p.ID, Current: p.Status, Target: StatusRefunded}
	}
	if !amount.IsPositive() {
		return Payment{}, fmt.Errorf("payment %s: refund amount must be positive", p.ID)
	}
	refundable := p.RefundableAmount()
	if amount.GreaterThan(refundable) {
		return Payment{}, &RefundAmountError{PaymentID: p.ID, Requested: amount, Refundable: refundable}
	}

	p.RefundedAmount = p.RefundedAmount.Add(amount)
	if p.RefundedAmount.Equal(p.ApprovedAmount) {
		p.Status = StatusRefunded
	} else {
		p.Status = StatusPartialRefunded
	}
	p.UpdatedAt = now
	return p, nil
}

// RefundableAmount is approved minus already refunded.
func (p Payment) RefundableAmount() decimal.Decimal {
	if p.ApprovedAmount.IsZero() {
		return decimal.Zero
	}
	return p.ApprovedAmount.Sub(p.RefundedAmount)
}

// IsSuccess reports whether money was captured and not fully returned.
func (p Payment) IsSuccess() bool {
	return p.Status == StatusApproved || p.Status == StatusPartialRefunded
}
