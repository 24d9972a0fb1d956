package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/setof-commerce/order-core/internal/pkg/ids"
)

type Type string

const (
	TypeCancel   Type = "CANCEL"
	TypeReturn   Type = "RETURN"
	TypeExchange Type = "EXCHANGE"
	TypeRefund   Type = "REFUND"
)

type Status string

const (
	StatusRequested  Status = "REQUESTED"
	StatusApproved   Status = "APPROVED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
)

// StatusTransitionError rejects a move the claim workflow does not allow.
type StatusTransitionError struct {
	ClaimID string
	From    Status
	To      Status
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("claim %s: cannot transition from %s to %s", e.ClaimID, e.From, e.To)
}

// Claim is a post-order customer request processed against an existing order.
// An empty OrderItemID targets the whole order (full cancel).
type Claim struct {
	ID          string
	ClaimNumber string
	OrderID     string
	OrderItemID string
	MemberID    string
	Type        Type
	Status      Status
	Reason      string
	Quantity    int
	// RefundAmount is the money to return on approval. Zero for exchanges.
	RefundAmount decimal.Decimal
	RejectReason string

	RequestedAt time.Time
	ApprovedAt  time.Time
	RejectedAt  time.Time
	CompletedAt time.Time
}

func (t Type) valid() bool {
	switch t {
	case TypeCancel, TypeReturn, TypeExchange, TypeRefund:
		return true
	}
	return false
}

// RequiresRefund reports whether approving this claim moves money back.
func (t Type) RequiresRefund() bool {
	return t != TypeExchange
}

// New builds a REQUESTED claim.
func New(orderID, orderItemID, memberID string, claimType Type, reason string, quantity int, refundAmount decimal.Decimal, now time.Time) (*Claim, error) {
	if orderID == "" {
		return nil, fmt.Errorf("claim: order id required")
	}
	if memberID == "" {
		return nil, fmt.Errorf("claim: member id required")
	}
	if !claimType.valid() {
		return nil, fmt.Errorf("claim: unknown type %q", claimType)
	}
	if reason == "" {
		return nil, fmt.Errorf("claim: reason required")
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("claim: quantity must be positive, got %d", quantity)
	}
	if refundAmount.IsNegative() {
		return nil, fmt.Errorf("claim: refund amount must not be negative")
	}
	if claimType.RequiresRefund() && refundAmount.IsZero() {
		return nil, fmt.Errorf("claim: refund amount required for %s", claimType)
	}
	if !claimType.RequiresRefund() && !refundAmount.IsZero() {
		return nil, fmt.Errorf("claim: exchange claims carry no refund amount")
	}
	return &Claim{
		ID:           ids.NewULID(),
		ClaimNumber:  ids.NewClaimNumber(now),
		OrderID:      orderID,
		OrderItemID:  orderItemID,
		MemberID:     memberID,
		Type:         claimType,
		Status:       StatusRequested,
		Reason:       reason,
		Quantity:     quantity,
		RefundAmount: refundAmount,
		RequestedAt:  now,
	}, nil
}

// Approve moves REQUESTED to APPROVED.
func (c *Claim) Approve(now time.Time) (*Claim, error) {
	if c.Status != StatusRequested {
		return nil, &StatusTransitionError{ClaimID: c.ID, From: c.Status, To: StatusApproved}
	}
	n := *c
	n.Status = StatusApproved
	n.ApprovedAt = now
	return &n, nil
}

// Reject terminates a REQUESTED claim with a reason.
func (c *Claim) Reject(reason string, now time.Time) (*Claim, error) {
	if c.Status != StatusRequested {
		return nil, &StatusTransitionError{ClaimID: c.ID, From: c.Status, To: StatusRejected}
	}
	if reason == "" {
		return nil, fmt.Errorf("claim %s: reject reason required", c.ID)
	}
	n := *c
	n.Status = StatusRejected
	n.RejectReason = reason
	n.RejectedAt = now
	return &n, nil
}

// Start marks an APPROVED claim as being worked (return pickup, exchange
// shipment).
func (c *Claim) Start(now time.Time) (*Claim, error) {
	if c.Status != StatusApproved {
		return nil, &StatusTransitionError{ClaimID: c.ID, From: c.Status, To: StatusInProgress}
	}
	n := *c
	n.Status = StatusInProgress
	return &n, nil
}

// Complete closes an APPROVED or IN_PROGRESS claim.
func (c *Claim) Complete(now time.Time) (*Claim, error) {
	if c.Status != StatusApproved && c.Status != StatusInProgress {
		return nil, &StatusTransitionError{ClaimID: c.ID, From: c.Status, To: StatusCompleted}
	}
	n := *c
	n.Status = StatusCompleted
	n.CompletedAt = now
	return &n, nil
}

// IsTerminal reports whether the workflow is finished.
func (c *Claim) IsTerminal() bool {
	return c.Status == StatusCompleted || c.Status == StatusRejected
}
