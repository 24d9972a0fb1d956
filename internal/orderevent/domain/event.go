package domain

import (
	"fmt"
	"time"

	"github.com/setof-commerce/order-core/internal/pkg/ids"
)

// EventType enumerates every fact the ledger records.
type EventType string

const (
	OrderCreated   EventType = "ORDER_CREATED"
	OrderConfirmed EventType = "ORDER_CONFIRMED"
	OrderShipped   EventType = "ORDER_SHIPPED"
	OrderDelivered EventType = "ORDER_DELIVERED"
	OrderCompleted EventType = "ORDER_COMPLETED"
	OrderCancelled EventType = "ORDER_CANCELLED"

	PaymentApproved        EventType = "PAYMENT_APPROVED"
	PaymentCancelled       EventType = "PAYMENT_CANCELLED"
	PaymentPartialRefunded EventType = "PAYMENT_PARTIAL_REFUNDED"
	PaymentRefunded        EventType = "PAYMENT_REFUNDED"

	ShippingStarted   EventType = "SHIPPING_STARTED"
	ShippingDelivered EventType = "SHIPPING_DELIVERED"

	ClaimRequested EventType = "CLAIM_REQUESTED"
	ClaimApproved  EventType = "CLAIM_APPROVED"
	ClaimRejected  EventType = "CLAIM_REJECTED"
	ClaimCompleted EventType = "CLAIM_COMPLETED"
)

// Source groups event types by the subsystem that emits them.
type Source string

const (
	SourceOrder    Source = "ORDER"
	SourcePayment  Source = "PAYMENT"
	SourceShipping Source = "SHIPPING"
	SourceClaim    Source = "CLAIM"
)

// ActorType identifies who triggered the event.
type ActorType string

const (
	ActorCustomer ActorType = "CUSTOMER"
	ActorSeller   ActorType = "SELLER"
	ActorAdmin    ActorType = "ADMIN"
	ActorSystem   ActorType = "SYSTEM"
)

type eventMeta struct {
	source      Source
	description string
}

var eventCatalog = map[EventType]eventMeta{
	OrderCreated:   {SourceOrder, "order created"},
	OrderConfirmed: {SourceOrder, "order confirmed by seller"},
	OrderShipped:   {SourceOrder, "order shipped"},
	OrderDelivered: {SourceOrder, "order delivered"},
	OrderCompleted: {SourceOrder, "order completed"},
	OrderCancelled: {SourceOrder, "order cancelled"},

	PaymentApproved:        {SourcePayment, "payment approved"},
	PaymentCancelled:       {SourcePayment, "payment cancelled"},
	PaymentPartialRefunded: {SourcePayment, "payment partially refunded"},
	PaymentRefunded:        {SourcePayment, "payment fully refunded"},

	ShippingStarted:   {SourceShipping, "shipping started"},
	ShippingDelivered: {SourceShipping, "shipment delivered"},

	ClaimRequested: {SourceClaim, "claim requested"},
	ClaimApproved:  {SourceClaim, "claim approved"},
	ClaimRejected:  {SourceClaim, "claim rejected"},
	ClaimCompleted: {SourceClaim, "claim completed"},
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	_, ok := eventCatalog[t]
	return ok
}

// Source returns the subsystem that owns this event type.
func (t EventType) Source() Source {
	return eventCatalog[t].source
}

// DefaultDescription is used when the caller supplies no description.
func (t EventType) DefaultDescription() string {
	return eventCatalog[t].description
}

func (a ActorType) valid() bool {
	switch a {
	case ActorCustomer, ActorSeller, ActorAdmin, ActorSystem:
		return true
	}
	return false
}

// Event is one append-only ledger entry. Events are never updated or
// deleted once written.
type Event struct {
	ID             string
	OrderID        string
	Type           EventType
	Source         Source
	SourceID       string
	PreviousStatus string
	CurrentStatus  string
	Description    string
	ActorType      ActorType
	ActorID        string
	Metadata       map[string]string
	OccurredAt     time.Time
	RecordedAt     time.Time
}

// Command carries everything a caller may supply when appending an entry.
// OrderID, Type and ActorType are mandatory; the rest is optional context.
type Command struct {
	OrderID        string
	Type           EventType
	SourceID       string
	PreviousStatus string
	CurrentStatus  string
	Description    string
	ActorType      ActorType
	ActorID        string
	Metadata       map[string]string
	OccurredAt     time.Time
}

// NewEvent validates and builds a ledger entry. An empty description falls
// back to the type's default; a zero occurredAt falls back to now.
func NewEvent(cmd Command, now time.Time) (*Event, error) {
	if cmd.OrderID == "" {
		return nil, fmt.Errorf("order event: order id required")
	}
	if !cmd.Type.Valid() {
		return nil, fmt.Errorf("order event: unknown event type %q", cmd.Type)
	}
	if !cmd.ActorType.valid() {
		return nil, fmt.Errorf("order event: unknown actor type %q", cmd.ActorType)
	}
	if cmd.ActorType != ActorSystem && cmd.ActorID == "" {
		return nil, fmt.Errorf("order event: actor id required for %s", cmd.ActorType)
	}
	description := cmd.Description
	if description == "" {
		description = cmd.Type.DefaultDescription()
	}
	occurredAt := cmd.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	return &Event{
		ID:             ids.NewULID(),
		OrderID:        cmd.OrderID,
		Type:           cmd.Type,
		Source:         cmd.Type.Source(),
		SourceID:       cmd.SourceID,
		PreviousStatus: cmd.PreviousStatus,
		CurrentStatus:  cmd.CurrentStatus,
		Description:    description,
		ActorType:      cmd.ActorType,
		ActorID:        cmd.ActorID,
		Metadata:       cmd.Metadata,
		OccurredAt:     occurredAt,
		RecordedAt:     now,
	}, nil
}
