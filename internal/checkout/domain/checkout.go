// Package domain holds the Checkout aggregate: a single purchase intent from
// cart to payment confirmation.
//
// Aggregates here are plain immutable values. Every state change goes through
// a transition method returning a new value; persistence mapping is an
// adapter concern outside this package.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/setof-commerce/order-core/internal/pkg/ids"
)

// Status is the checkout lifecycle state.
type Status string

const (
	StatusCreated        Status = "CREATED"
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusCompleted      Status = "COMPLETED"
	StatusExpired        Status = "EXPIRED"
	StatusCancelled      Status = "CANCELLED"
)

// terminal reports whether no further transition is allowed.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusCancelled
}

// ProductSnapshot is the display state of a product at checkout time,
// denormalized so later catalog edits do not rewrite history.
type ProductSnapshot struct {
	Name       string
	ImageURL   string
	OptionName string
	BrandName  string
	SellerName string
}

// Item is one line of a checkout.
type Item struct {
	ProductStockID int64
	ProductID      int64
	SellerID       int64
	Quantity       int
	UnitPrice      decimal.Decimal
	Snapshot       ProductSnapshot
}

// Subtotal is unit price times quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ShippingInfo is the destination snapshot taken at checkout time.
type ShippingInfo struct {
	ReceiverName  string
	ReceiverPhone string
	Address       string
	AddressDetail string
	ZipCode       string
	Memo          string
}

// Checkout is the aggregate root for a purchase intent.
type Checkout struct {
	ID             string
	MemberID       string
	IdempotencyKey string
	Items          []Item
	PaymentMethod  string
	PgProvider     string
	Shipping       ShippingInfo

	TotalItemAmount decimal.Decimal
	ShippingFee     decimal.Decimal
	FinalAmount     decimal.Decimal

	Status Status

	// Version guards the expire/complete race: conditional updates compare
	// it so exactly one concurrent transition wins.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// New validates the purchase intent and computes totals from the supplied
// items. Prices on items must already come from the authoritative catalog;
// totals are always recomputed here, never trusted from the client.
func New(memberID, idempotencyKey string, items []Item, paymentMethod, pgProvider string,
	shipping ShippingInfo, shippingFee decimal.Decimal, ttl time.Duration, now time.Time) (Checkout, error) {

	if memberID == "" {
		return Checkout{}, &ValidationError{Field: "memberId", Reason: "required"}
	}
	if idempotencyKey == "" {
		return Checkout{}, &ValidationError{Field: "idempotencyKey", Reason: "required"}
	}
	if len(items) == 0 {
		return Checkout{}, &ValidationError{Field: "items", Reason: "at least one item required"}
	}
	if paymentMethod == "" || pgProvider == "" {
		return Checkout{}, &ValidationError{Field: "payment", Reason: "method and provider required"}
	}
	if shippingFee.IsNegative() {
		return Checkout{}, &ValidationError{Field: "shippingFee", Reason: "must not be negative"}
	}
	for _, it := range items {
		if it.ProductStockID <= 0 || it.ProductID <= 0 || it.SellerID <= 0 {
			return Checkout{}, &ValidationError{Field: "items", Reason: "product, stock and seller ids required"}
		}
		if it.Quantity <= 0 {
			return Checkout{}, &ValidationError{Field: "items", Reason: "quantity must be positive"}
		}
		if it.UnitPrice.IsNegative() {
			return Checkout{}, &ValidationError{Field: "items", Reason: "unit price must not be negative"}
		}
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}

	copied := make([]Item, len(items))
	copy(copied, items)

	return Checkout{
		ID:              ids.NewULID(),
		MemberID:        memberID,
		IdempotencyKey:  idempotencyKey,
		Items:           copied,
		PaymentMethod:   paymentMethod,
		PgProvider:      pgProvider,
		Shipping:        shipping,
		TotalItemAmount: total,
		ShippingFee:     shippingFee,
		FinalAmount:     total.Add(shippingFee),
		Status:          StatusCreated,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}, nil
}

// MarkPendingPayment transitions CREATED → PENDING_PAYMENT once stock has
// been reserved.
func (c Checkout) MarkPendingPayment(now time.Time) (Checkout, error) {
	if c.Status != StatusCreated {
		return Checkout{}, c.illegal(StatusPendingPayment)
	}
	return c.transition(StatusPendingPayment, now), nil
}

// Complete transitions PENDING_PAYMENT → COMPLETED.
func (c Checkout) Complete(now time.Time) (Checkout, error) {
	if c.Status != StatusPendingPayment {
		return Checkout{}, c.illegal(StatusCompleted)
	}
	return c.transition(StatusCompleted, now), nil
}

// Expire transitions PENDING_PAYMENT → EXPIRED.
func (c Checkout) Expire(now time.Time) (Checkout, error) {
	if c.Status != StatusPendingPayment {
		return Checkout{}, c.illegal(StatusExpired)
	}
	return c.transition(StatusExpired, now), nil
}

// Cancel transitions CREATED/PENDING_PAYMENT → CANCELLED.
func (c Checkout) Cancel(now time.Time) (Checkout, error) {
	if c.Status.terminal() {
		return Checkout{}, c.illegal(StatusCancelled)
	}
	return c.transition(StatusCancelled, now), nil
}

func (c Checkout) transition(to Status, now time.Time) Checkout {
	c.Status = to
	c.Version++
	c.UpdatedAt = now
	return c
}

func (c Checkout) illegal(to Status) error {
	return &IllegalStateTransitionError{Aggregate: "checkout", ID: c.ID, From: string(c.Status), To: string(to)}
}

// IsExpired reports whether the payment deadline has passed for a
// non-terminal checkout.
func (c Checkout) IsExpired(now time.Time) bool {
	return !c.Status.terminal() && now.After(c.ExpiresAt)
}

// CanPay reports whether the checkout still accepts a payment result.
func (c Checkout) CanPay(now time.Time) bool {
	return c.Status == StatusPendingPayment && !c.IsExpired(now)
}

// StockRequirements aggregates required quantity per SKU. Duplicate SKUs in
// the item list sum.
func (c Checkout) StockRequirements() map[int64]int {
	req := make(map[int64]int, len(c.Items))
	for _, it := range c.Items {
		req[it.ProductStockID] += it.Quantity
	}
	return req
}

// ItemsBySeller groups the line items by seller for per-seller order fan-out.
func (c Checkout) ItemsBySeller() map[int64][]Item {
	groups := make(map[int64][]Item)
	for _, it := range c.Items {
		groups[it.SellerID] = append(groups[it.SellerID], it)
	}
	return groups
}

// SellerIDs returns the distinct seller ids in first-appearance order.
func (c Checkout) SellerIDs() []int64 {
	seen := make(map[int64]bool, len(c.Items))
	var out []int64
	for _, it := range c.Items {
		if !seen[it.SellerID] {
			seen[it.SellerID] = true
			out = append(out, it.SellerID)
		}
	}
	return out
}
