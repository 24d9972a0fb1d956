// Package app implements the ledger use cases: appending entries (with
// their outbox rows), applying lifecycle entries to the order aggregate,
// and the read side.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	orderdomain "github.com/setof-commerce/order-core/internal/order/domain"
	"github.com/setof-commerce/order-core/internal/orderevent/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	"github.com/setof-commerce/order-core/internal/pkg/postgres"
)

// EventRepository persists ledger entries. There is no update or delete.
type EventRepository interface {
	Insert(ctx context.Context, q postgres.Querier, ev *domain.Event) error
	// ListByOrder returns entries for one order ordered by time, insertion
	// id breaking ties. desc reverses the order.
	ListByOrder(ctx context.Context, q postgres.Querier, orderID string, desc bool) ([]*domain.Event, error)
	ListBySource(ctx context.Context, q postgres.Querier, source domain.Source, sourceID string) ([]*domain.Event, error)
}

// OrderRepository is the slice of order persistence the recorder needs to
// apply lifecycle transitions.
type OrderRepository interface {
	Get(ctx context.Context, q postgres.Querier, id string) (*orderdomain.Order, error)
	Update(ctx context.Context, q postgres.Querier, o *orderdomain.Order, expectedVersion int64) error
}

// OutboxWriter enqueues an event reference in the caller's transaction.
// Satisfied by outbox.Store.
type OutboxWriter interface {
	Insert(ctx context.Context, q postgres.Querier, eventID, topic, key string, payload any) error
}

// OutboxPayload is what the relay publishes for each appended entry:
// a reference, not the full event, so consumers read back through the API.
type OutboxPayload struct {
	EventID   string `json:"eventId"`
	OrderID   string `json:"orderId"`
	EventType string `json:"eventType"`
	Source    string `json:"source"`
}

// Recorder appends ledger entries. Lifecycle entry types additionally drive
// the order state machine in the same unit of work, so the ledger and the
// aggregate can never disagree.
type Recorder struct {
	events EventRepository
	orders OrderRepository
	outbox OutboxWriter
	db     postgres.Querier
	tx     postgres.TxRunner
	topic  string

	clock func() time.Time
}

func NewRecorder(events EventRepository, orders OrderRepository, ob OutboxWriter, db postgres.Querier, tx postgres.TxRunner, topic string) *Recorder {
	return &Recorder{
		events: events,
		orders: orders,
		outbox: ob,
		db:     db,
		tx:     tx,
		topic:  topic,
		clock:  time.Now,
	}
}

// Append writes the entry and its outbox row using the caller's querier.
// Use cases that already run a transaction call this directly.
func (r *Recorder) Append(ctx context.Context, q postgres.Querier, cmd domain.Command) (*domain.Event, error) {
	ev, err := domain.NewEvent(cmd, r.clock())
	if err != nil {
		return nil, errs.Wrap(errs.CodeValidation, err, "invalid order event")
	}
	if err := r.events.Insert(ctx, q, ev); err != nil {
		return nil, fmt.Errorf("append order event: %w", err)
	}
	payload := OutboxPayload{
		EventID:   ev.ID,
		OrderID:   ev.OrderID,
		EventType: string(ev.Type),
		Source:    string(ev.Source),
	}
	if err := r.outbox.Insert(ctx, q, ev.ID, r.topic, ev.OrderID, payload); err != nil {
		return nil, fmt.Errorf("enqueue order event %s: %w", ev.ID, err)
	}
	return ev, nil
}

// Record is the inbound append operation used by external collaborators
// (shipping tracker, claim workflow, admin tooling). Lifecycle event types
// transition the order aggregate inside the same transaction; the entry then
// carries the previous and current status.
func (r *Recorder) Record(ctx context.Context, cmd domain.Command) (*domain.Event, error) {
	// cancellation restores stock and refunds the payment; only the claim
	// workflow carries those collaborators, so it owns this entry type
	if cmd.Type == domain.OrderCancelled {
		return nil, errs.New(errs.CodeConflict, "order cancellation goes through the claim workflow")
	}

	var recorded *domain.Event

	err := r.tx.WithTx(ctx, func(q postgres.Querier) error {
		o, err := r.orders.Get(ctx, q, cmd.OrderID)
		if err != nil {
			return err
		}

		if transition := lifecycleTransition(cmd.Type); transition != nil {
			previous := o.Status
			updated, err := transition(o, r.clock())
			if err != nil {
				var tre *orderdomain.StatusTransitionError
				if errors.As(err, &tre) {
					return errs.Wrap(errs.CodeConflict, err, "order transition rejected")
				}
				return err
			}
			if err := r.orders.Update(ctx, q, updated, o.Version); err != nil {
				return err
			}
			cmd.PreviousStatus = string(previous)
			cmd.CurrentStatus = string(updated.Status)
		}

		recorded, err = r.Append(ctx, q, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "order event recorded",
		"event_id", recorded.ID, "order_id", recorded.OrderID, "type", recorded.Type)
	return recorded, nil
}

// GetOrder loads one order for the read side.
func (r *Recorder) GetOrder(ctx context.Context, orderID string) (*orderdomain.Order, error) {
	return r.orders.Get(ctx, r.db, orderID)
}

// ListByOrder is the read side for one order's history.
func (r *Recorder) ListByOrder(ctx context.Context, orderID string, desc bool) ([]*domain.Event, error) {
	return r.events.ListByOrder(ctx, r.db, orderID, desc)
}

// ListBySource returns all entries tied to one originating record, e.g.
// every entry a claim produced.
func (r *Recorder) ListBySource(ctx context.Context, source domain.Source, sourceID string) ([]*domain.Event, error) {
	return r.events.ListBySource(ctx, r.db, source, sourceID)
}

// lifecycleTransition maps ledger entry types onto order transitions.
// Shipping entries arrive from the carrier integration and double as the
// SHIPPED/DELIVERED transitions.
func lifecycleTransition(t domain.EventType) func(*orderdomain.Order, time.Time) (*orderdomain.Order, error) {
	switch t {
	case domain.OrderConfirmed:
		return (*orderdomain.Order).Confirm
	case domain.OrderShipped, domain.ShippingStarted:
		return (*orderdomain.Order).Ship
	case domain.OrderDelivered, domain.ShippingDelivered:
		return (*orderdomain.Order).Deliver
	case domain.OrderCompleted:
		return (*orderdomain.Order).Complete
	default:
		return nil
	}
}
