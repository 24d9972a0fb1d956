package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/setof-commerce/order-core/internal/pkg/ids"
)

// ItemStatus is derived from the three quantity counters, never set directly.
type ItemStatus string

const (
	ItemOrdered            ItemStatus = "ORDERED"
	ItemPartiallyCancelled ItemStatus = "PARTIALLY_CANCELLED"
	ItemCancelled          ItemStatus = "CANCELLED"
	ItemPartiallyRefunded  ItemStatus = "PARTIALLY_REFUNDED"
	ItemRefunded           ItemStatus = "REFUNDED"
)

// QuantityError rejects a cancel/refund exceeding the effective quantity.
type QuantityError struct {
	OrderItemID string
	Requested   int
	Effective   int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("order item %s: requested %d exceeds effective quantity %d",
		e.OrderItemID, e.Requested, e.Effective)
}

// ProductSnapshot is the immutable display state captured at order time.
type ProductSnapshot struct {
	Name       string
	ImageURL   string
	OptionName string
	BrandName  string
	SellerName string
}

// Item is one product line inside an order.
type Item struct {
	ID                string
	ProductID         int64
	ProductStockID    int64
	OrderedQuantity   int
	CancelledQuantity int
	RefundedQuantity  int
	UnitPrice         decimal.Decimal
	TotalPrice        decimal.Decimal
	Snapshot          ProductSnapshot
}

// NewItem builds an ordered line. TotalPrice is always unit price times the
// ordered quantity; later cancels/refunds adjust the counters, not the price.
func NewItem(productID, productStockID int64, quantity int, unitPrice decimal.Decimal, snapshot ProductSnapshot) (Item, error) {
	if productID <= 0 || productStockID <= 0 {
		return Item{}, fmt.Errorf("order item: product and stock ids required")
	}
	if quantity <= 0 {
		return Item{}, fmt.Errorf("order item: quantity must be positive, got %d", quantity)
	}
	if unitPrice.IsNegative() {
		return Item{}, fmt.Errorf("order item: unit price must not be negative")
	}
	return Item{
		ID:              ids.NewULID(),
		ProductID:       productID,
		ProductStockID:  productStockID,
		OrderedQuantity: quantity,
		UnitPrice:       unitPrice,
		TotalPrice:      unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		Snapshot:        snapshot,
	}, nil
}

// EffectiveQuantity is the portion neither cancelled nor refunded.
func (i Item) EffectiveQuantity() int {
	return i.OrderedQuantity - i.CancelledQuantity - i.RefundedQuantity
}

// Status derives the item state from the counters. When nothing effective
// remains and both counters are non-zero, the larger one wins (refund on a
// tie, since money moved).
func (i Item) Status() ItemStatus {
	switch {
	case i.EffectiveQuantity() == 0 && i.RefundedQuantity >= i.CancelledQuantity:
		return ItemRefunded
	case i.EffectiveQuantity() == 0:
		return ItemCancelled
	case i.RefundedQuantity > 0:
		return ItemPartiallyRefunded
	case i.CancelledQuantity > 0:
		return ItemPartiallyCancelled
	default:
		return ItemOrdered
	}
}

// CancelQuantity moves quantity units from effective to cancelled.
func (i Item) CancelQuantity(quantity int) (Item, error) {
	if err := i.checkQuantity(quantity); err != nil {
		return Item{}, err
	}
	i.CancelledQuantity += quantity
	return i, nil
}

// RefundQuantity moves quantity units from effective to refunded.
func (i Item) RefundQuantity(quantity int) (Item, error) {
	if err := i.checkQuantity(quantity); err != nil {
		return Item{}, err
	}
	i.RefundedQuantity += quantity
	return i, nil
}

func (i Item) checkQuantity(quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("order item %s: quantity must be positive, got %d", i.ID, quantity)
	}
	if quantity > i.EffectiveQuantity() {
		return &QuantityError{OrderItemID: i.ID, Requested: quantity, Effective: i.EffectiveQuantity()}
	}
	return nil
}
