package httpx

import (
	"time"

	checkoutdomain "github.com/setof-commerce/order-core/internal/checkout/domain"
	claimdomain "github.com/setof-commerce/order-core/internal/claim/domain"
	orderdomain "github.com/setof-commerce/order-core/internal/order/domain"
	eventdomain "github.com/setof-commerce/order-core/internal/orderevent/domain"
	paymentdomain "github.com/setof-commerce/order-core/internal/payment/domain"
)

// Amounts travel as strings so clients never see float rounding.

type CreateCheckoutRequest struct {
	MemberID       string                `json:"member_id"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
	Items          []CheckoutItemRequest `json:"items"`
	PaymentMethod  string                `json:"payment_method"`
	PgProvider     string                `json:"pg_provider"`
	ShippingFee    string                `json:"shipping_fee"`
	Shipping       ShippingDTO           `json:"shipping"`
}

type CheckoutItemRequest struct {
	ProductStockID int64 `json:"product_stock_id"`
	Quantity       int   `json:"quantity"`
}

type ShippingDTO struct {
	ReceiverName  string `json:"receiver_name"`
	ReceiverPhone string `json:"receiver_phone"`
	ZipCode       string `json:"zip_code"`
	Address       string `json:"address"`
	AddressDetail string `json:"address_detail,omitempty"`
	Memo          string `json:"memo,omitempty"`
}

type CompleteCheckoutRequest struct {
	PgTransactionID string `json:"pg_transaction_id"`
	ApprovedAmount  string `json:"approved_amount"`
}

type CheckoutResponse struct {
	ID              string                 `json:"id"`
	MemberID        string                 `json:"member_id"`
	Status          string                 `json:"status"`
	Items           []CheckoutItemResponse `json:"items"`
	TotalItemAmount string                 `json:"total_item_amount"`
	ShippingFee     string                 `json:"shipping_fee"`
	FinalAmount     string                 `json:"final_amount"`
	ExpiresAt       time.Time              `json:"expires_at"`
	CreatedAt       time.Time              `json:"created_at"`
}

type CheckoutItemResponse struct {
	ProductStockID int64  `json:"product_stock_id"`
	ProductID      int64  `json:"product_id"`
	SellerID       int64  `json:"seller_id"`
	Quantity       int    `json:"quantity"`
	UnitPrice      string `json:"unit_price"`
	Name           string `json:"name"`
}

type CompletionResponse struct {
	Checkout CheckoutResponse `json:"checkout"`
	Payment  PaymentResponse  `json:"payment"`
	Orders   []OrderResponse  `json:"orders"`
}

type PaymentResponse struct {
	ID              string     `json:"id"`
	CheckoutID      string     `json:"checkout_id"`
	Status          string     `json:"status"`
	PgProvider      string     `json:"pg_provider"`
	PgTransactionID string     `json:"pg_transaction_id,omitempty"`
	ApprovedAmount  string     `json:"approved_amount"`
	RefundedAmount  string     `json:"refunded_amount"`
	Currency        string     `json:"currency"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
}

type OrderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"order_number"`
	CheckoutID      string              `json:"checkout_id"`
	MemberID        string              `json:"member_id"`
	SellerID        int64               `json:"seller_id"`
	Status          string              `json:"status"`
	Items           []OrderItemResponse `json:"items"`
	TotalItemAmount string              `json:"total_item_amount"`
	ShippingFee     string              `json:"shipping_fee"`
	FinalAmount     string              `json:"final_amount"`
	OrderedAt       time.Time           `json:"ordered_at"`
}

type OrderItemResponse struct {
	ID                string `json:"id"`
	ProductID         int64  `json:"product_id"`
	ProductStockID    int64  `json:"product_stock_id"`
	Name              string `json:"name"`
	OrderedQuantity   int    `json:"ordered_quantity"`
	CancelledQuantity int    `json:"cancelled_quantity"`
	RefundedQuantity  int    `json:"refunded_quantity"`
	EffectiveQuantity int    `json:"effective_quantity"`
	Status            string `json:"status"`
	UnitPrice         string `json:"unit_price"`
	TotalPrice        string `json:"total_price"`
}

type RequestClaimRequest struct {
	OrderItemID  string `json:"order_item_id,omitempty"`
	MemberID     string `json:"member_id"`
	ClaimType    string `json:"claim_type"`
	Reason       string `json:"reason"`
	Quantity     int    `json:"quantity"`
	RefundAmount string `json:"refund_amount,omitempty"`
}

type RejectClaimRequest struct {
	Reason  string `json:"reason"`
	ActorID string `json:"actor_id"`
}

type ClaimResponse struct {
	ID           string    `json:"id"`
	ClaimNumber  string    `json:"claim_number"`
	OrderID      string    `json:"order_id"`
	OrderItemID  string    `json:"order_item_id,omitempty"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason"`
	Quantity     int       `json:"quantity"`
	RefundAmount string    `json:"refund_amount"`
	RejectReason string    `json:"reject_reason,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

type RecordEventRequest struct {
	EventType   string            `json:"event_type"`
	SourceID    string            `json:"source_id,omitempty"`
	ActorType   string            `json:"actor_type"`
	ActorID     string            `json:"actor_id,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	OccurredAt  *time.Time        `json:"occurred_at,omitempty"`
}

type EventResponse struct {
	ID             string            `json:"id"`
	OrderID        string            `json:"order_id"`
	EventType      string            `json:"event_type"`
	Source         string            `json:"source"`
	SourceID       string            `json:"source_id,omitempty"`
	PreviousStatus string            `json:"previous_status,omitempty"`
	CurrentStatus  string            `json:"current_status,omitempty"`
	Description    string            `json:"description"`
	ActorType      string            `json:"actor_type"`
	ActorID        string            `json:"actor_id,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
	RecordedAt     time.Time         `json:"recorded_at"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func mapCheckout(c checkoutdomain.Checkout) CheckoutResponse {
	items := make([]CheckoutItemResponse, len(c.Items))
	for i, it := range c.Items {
		items[i] = CheckoutItemResponse{
			ProductStockID: it.ProductStockID,
			ProductID:      it.ProductID,
			SellerID:       it.SellerID,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice.String(),
			Name:           it.Snapshot.Name,
		}
	}
	return CheckoutResponse{
		ID:              c.ID,
		MemberID:        c.MemberID,
		Status:          string(c.Status),
		Items:           items,
		TotalItemAmount: c.TotalItemAmount.String(),
		ShippingFee:     c.ShippingFee.String(),
		FinalAmount:     c.FinalAmount.String(),
		ExpiresAt:       c.ExpiresAt,
		CreatedAt:       c.CreatedAt,
	}
}

func mapPayment(p paymentdomain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:              p.ID,
		CheckoutID:      p.CheckoutID,
		Status:          string(p.Status),
		PgProvider:      p.PgProvider,
		PgTransactionID: p.PgTransactionID,
		ApprovedAmount:  p.ApprovedAmount.String(),
		RefundedAmount:  p.RefundedAmount.String(),
		Currency:        p.Currency,
	}
	if !p.ApprovedAt.IsZero() {
		t := p.ApprovedAt
		resp.ApprovedAt = &t
	}
	return resp
}

func mapOrder(o *orderdomain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = OrderItemResponse{
			ID:                it.ID,
			ProductID:         it.ProductID,
			ProductStockID:    it.ProductStockID,
			Name:              it.Snapshot.Name,
			OrderedQuantity:   it.OrderedQuantity,
			CancelledQuantity: it.CancelledQuantity,
			RefundedQuantity:  it.RefundedQuantity,
			EffectiveQuantity: it.EffectiveQuantity(),
			Status:            string(it.Status()),
			UnitPrice:         it.UnitPrice.String(),
			TotalPrice:        it.TotalPrice.String(),
		}
	}
	return OrderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		CheckoutID:      o.CheckoutID,
		MemberID:        o.MemberID,
		SellerID:        o.SellerID,
		Status:          string(o.Status),
		Items:           items,
		TotalItemAmount: o.TotalItemAmount.String(),
		ShippingFee:     o.ShippingFee.String(),
		FinalAmount:     o.FinalAmount.String(),
		OrderedAt:       o.OrderedAt,
	}
}

func mapOrders(orders []*orderdomain.Order) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = mapOrder(o)
	}
	return out
}

func mapClaim(c *claimdomain.Claim) ClaimResponse {
	return ClaimResponse{
		ID:           c.ID,
		ClaimNumber:  c.ClaimNumber,
		OrderID:      c.OrderID,
		OrderItemID:  c.OrderItemID,
		Type:         string(c.Type),
		Status:       string(c.Status),
		Reason:       c.Reason,
		Quantity:     c.Quantity,
		RefundAmount: c.RefundAmount.String(),
		RejectReason: c.RejectReason,
		RequestedAt:  c.RequestedAt,
	}
}

func mapEvent(ev *eventdomain.Event) EventResponse {
	return EventResponse{
		ID:             ev.ID,
		OrderID:        ev.OrderID,
		EventType:      string(ev.Type),
		Source:         string(ev.Source),
		SourceID:       ev.SourceID,
		PreviousStatus: ev.PreviousStatus,
		CurrentStatus:  ev.CurrentStatus,
		Description:    ev.Description,
		ActorType:      string(ev.ActorType),
		ActorID:        ev.ActorID,
		Metadata:       ev.Metadata,
		OccurredAt:     ev.OccurredAt,
		RecordedAt:     ev.RecordedAt,
	}
}

func mapEvents(events []*eventdomain.Event) []EventResponse {
	out := make([]EventResponse, len(events))
	for i, ev := range events {
		out[i] = mapEvent(ev)
	}
	return out
}
