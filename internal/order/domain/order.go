package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/setof-commerce/order-core/internal/pkg/ids"
)

type Status string

const (
	StatusOrdered   Status = "ORDERED"
	StatusConfirmed Status = "CONFIRMED"
	StatusShipped   Status = "SHIPPED"
	StatusDelivered Status = "DELIVERED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// StatusTransitionError rejects a transition the lifecycle does not allow,
// including re-applying one whose timestamp is already set.
type StatusTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s", e.OrderID, e.From, e.To)
}

// ShippingInfo is the destination captured at checkout completion.
type ShippingInfo struct {
	ReceiverName  string
	ReceiverPhone string
	ZipCode       string
	Address       string
	AddressDetail string
	Memo          string
}

// Order is the per-seller aggregate produced by completing a checkout.
// Transitions return a new value; each one stamps exactly one timestamp
// field and is rejected when that field is already set.
type Order struct {
	ID          string
	OrderNumber string
	CheckoutID  string
	MemberID    string
	SellerID    int64
	Status      Status

	Items []Item

	TotalItemAmount decimal.Decimal
	ShippingFee     decimal.Decimal
	FinalAmount     decimal.Decimal

	Shipping ShippingInfo

	OrderedAt   time.Time
	ConfirmedAt time.Time
	ShippedAt   time.Time
	DeliveredAt time.Time
	CompletedAt time.Time
	CancelledAt time.Time

	Version int64
}

// New builds an ORDERED aggregate for one seller's share of a checkout.
func New(checkoutID, memberID string, sellerID int64, items []Item, shippingFee decimal.Decimal, shipping ShippingInfo, now time.Time) (*Order, error) {
	if checkoutID == "" {
		return nil, fmt.Errorf("order: checkout id required")
	}
	if memberID == "" || sellerID <= 0 {
		return nil, fmt.Errorf("order: member and seller ids required")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("order: at least one item required")
	}
	if shippingFee.IsNegative() {
		return nil, fmt.Errorf("order: shipping fee must not be negative")
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}

	return &Order{
		ID:              ids.NewULID(),
		OrderNumber:     ids.NewOrderNumber(now),
		CheckoutID:      checkoutID,
		MemberID:        memberID,
		SellerID:        sellerID,
		Status:          StatusOrdered,
		Items:           items,
		TotalItemAmount: total,
		ShippingFee:     shippingFee,
		FinalAmount:     total.Add(shippingFee),
		Shipping:        shipping,
		OrderedAt:       now,
		Version:         1,
	}, nil
}

func (o *Order) Confirm(now time.Time) (*Order, error) {
	return o.transition(StatusOrdered, StatusConfirmed, o.ConfirmedAt, now, func(n *Order) {
		n.ConfirmedAt = now
	})
}

func (o *Order) Ship(now time.Time) (*Order, error) {
	return o.transition(StatusConfirmed, StatusShipped, o.ShippedAt, now, func(n *Order) {
		n.ShippedAt = now
	})
}

func (o *Order) Deliver(now time.Time) (*Order, error) {
	return o.transition(StatusShipped, StatusDelivered, o.DeliveredAt, now, func(n *Order) {
		n.DeliveredAt = now
	})
}

func (o *Order) Complete(now time.Time) (*Order, error) {
	return o.transition(StatusDelivered, StatusCompleted, o.CompletedAt, now, func(n *Order) {
		n.CompletedAt = now
	})
}

// Cancel is reachable only before shipping starts.
func (o *Order) Cancel(now time.Time) (*Order, error) {
	if o.Status != StatusOrdered && o.Status != StatusConfirmed {
		return nil, &StatusTransitionError{OrderID: o.ID, From: o.Status, To: StatusCancelled}
	}
	if !o.CancelledAt.IsZero() {
		return nil, &StatusTransitionError{OrderID: o.ID, From: o.Status, To: StatusCancelled}
	}
	if err := o.checkClock(now); err != nil {
		return nil, err
	}
	n := o.clone()
	n.Status = StatusCancelled
	n.CancelledAt = now
	for i, it := range n.Items {
		if it.EffectiveQuantity() > 0 {
			cancelled, err := it.CancelQuantity(it.EffectiveQuantity())
			if err != nil {
				return nil, err
			}
			n.Items[i] = cancelled
		}
	}
	n.Version++
	return n, nil
}

// CancelItem reduces the effective quantity of one line. The order status is
// untouched; full cancellation of every line still goes through Cancel.
func (o *Order) CancelItem(itemID string, quantity int) (*Order, error) {
	return o.mutateItem(itemID, func(it Item) (Item, error) { return it.CancelQuantity(quantity) })
}

// RefundItem records a refunded quantity on one line.
func (o *Order) RefundItem(itemID string, quantity int) (*Order, error) {
	return o.mutateItem(itemID, func(it Item) (Item, error) { return it.RefundQuantity(quantity) })
}

// Item returns the line with the given id.
func (o *Order) Item(itemID string) (Item, bool) {
	for _, it := range o.Items {
		if it.ID == itemID {
			return it, true
		}
	}
	return Item{}, false
}

// IsTerminal reports whether no further lifecycle transitions apply.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusCompleted || o.Status == StatusCancelled
}

func (o *Order) transition(from, to Status, stamp, now time.Time, apply func(*Order)) (*Order, error) {
	if o.Status != from || !stamp.IsZero() {
		return nil, &StatusTransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	if err := o.checkClock(now); err != nil {
		return nil, err
	}
	n := o.clone()
	n.Status = to
	apply(n)
	n.Version++
	return n, nil
}

// checkClock keeps the timestamp chain monotonic.
func (o *Order) checkClock(now time.Time) error {
	last := o.OrderedAt
	for _, t := range []time.Time{o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.CompletedAt, o.CancelledAt} {
		if t.After(last) {
			last = t
		}
	}
	if now.Before(last) {
		return fmt.Errorf("order %s: transition time %s precedes %s", o.ID, now.Format(time.RFC3339), last.Format(time.RFC3339))
	}
	return nil
}

func (o *Order) clone() *Order {
	n := *o
	n.Items = make([]Item, len(o.Items))
	copy(n.Items, o.Items)
	return &n
}

func (o *Order) mutateItem(itemID string, fn func(Item) (Item, error)) (*Order, error) {
	for idx, it := range o.Items {
		if it.ID != itemID {
			continue
		}
		updated, err := fn(it)
		if err != nil {
			return nil, err
		}
		n := o.clone()
		n.Items[idx] = updated
		n.Version++
		return n, nil
	}
	return nil, fmt.Errorf("order %s: item %s not found", o.ID, itemID)
}
