// Package app implements the claim workflow: request, approve with its
// monetary and inventory effects, reject, complete.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/setof-commerce/order-core/internal/claim/domain"
	orderdomain "github.com/setof-commerce/order-core/internal/order/domain"
	eventdomain "github.com/setof-commerce/order-core/internal/orderevent/domain"
	paymentdomain "github.com/setof-commerce/order-core/internal/payment/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	"github.com/setof-commerce/order-core/internal/pkg/postgres"
)

type ClaimRepository interface {
	Insert(ctx context.Context, q postgres.Querier, c *domain.Claim) error
	Get(ctx context.Context, q postgres.Querier, id string) (*domain.Claim, error)
	Update(ctx context.Context, q postgres.Querier, c *domain.Claim) error
	ListByOrder(ctx context.Context, q postgres.Querier, orderID string) ([]*domain.Claim, error)
}

type OrderRepository interface {
	Get(ctx context.Context, q postgres.Querier, id string) (*orderdomain.Order, error)
	Update(ctx context.Context, q postgres.Querier, o *orderdomain.Order, expectedVersion int64) error
}

type PaymentRepository interface {
	GetByCheckoutID(ctx context.Context, q postgres.Querier, checkoutID string) (paymentdomain.Payment, error)
	Update(ctx context.Context, q postgres.Querier, p paymentdomain.Payment) error
}

type EventAppender interface {
	Append(ctx context.Context, q postgres.Querier, cmd eventdomain.Command) (*eventdomain.Event, error)
}

// StockReleaser restores reserved inventory when goods re-enter stock.
type StockReleaser interface {
	Release(ctx context.Context, requirements map[int64]int) error
}

// Service drives the claim workflow. All mutations of the order, payment
// and ledger happen in one transaction per operation.
type Service struct {
	claims   ClaimRepository
	orders   OrderRepository
	payments PaymentRepository
	events   EventAppender
	stock    StockReleaser
	db       postgres.Querier
	tx       postgres.TxRunner

	clock func() time.Time
}

func NewService(claims ClaimRepository, orders OrderRepository, payments PaymentRepository,
	events EventAppender, stock StockReleaser, db postgres.Querier, tx postgres.TxRunner) *Service {
	return &Service{
		claims:   claims,
		orders:   orders,
		payments: payments,
		events:   events,
		stock:    stock,
		db:       db,
		tx:       tx,
		clock:    time.Now,
	}
}

// RequestCommand opens a claim. An empty OrderItemID with type CANCEL
// targets the whole order.
type RequestCommand struct {
	OrderID      string
	OrderItemID  string
	MemberID     string
	Type         domain.Type
	Reason       string
	Quantity     int
	RefundAmount decimal.Decimal
}

// Request validates the claim against the live order state and persists it
// as REQUESTED with its ledger entry.
func (s *Service) Request(ctx context.Context, cmd RequestCommand) (*domain.Claim, error) {
	var claim *domain.Claim

	err := s.tx.WithTx(ctx, func(q postgres.Querier) error {
		o, err := s.orders.Get(ctx, q, cmd.OrderID)
		if err != nil {
			return err
		}
		if o.MemberID != cmd.MemberID {
			return errs.Newf(errs.CodeNotFound, "order %s not found for member", cmd.OrderID)
		}
		if cmd.OrderItemID != "" {
			item, ok := o.Item(cmd.OrderItemID)
			if !ok {
				return errs.Newf(errs.CodeNotFound, "order item %s not found", cmd.OrderItemID)
			}
			if cmd.Quantity > item.EffectiveQuantity() {
				return errs.Newf(errs.CodeConflict,
					"claim quantity %d exceeds effective quantity %d", cmd.Quantity, item.EffectiveQuantity())
			}
		} else if cmd.Type != domain.TypeCancel {
			return errs.New(errs.CodeValidation, "order item required for item-level claims")
		} else if o.Status != orderdomain.StatusOrdered && o.Status != orderdomain.StatusConfirmed {
			return errs.Newf(errs.CodeConflict, "order %s is %s and cannot be cancelled", o.ID, o.Status)
		}

		claim, err = domain.New(cmd.OrderID, cmd.OrderItemID, cmd.MemberID, cmd.Type,
			cmd.Reason, cmd.Quantity, cmd.RefundAmount, s.clock())
		if err != nil {
			return errs.Wrap(errs.CodeValidation, err, "invalid claim")
		}
		if err := s.claims.Insert(ctx, q, claim); err != nil {
			return err
		}
		_, err = s.events.Append(ctx, q, eventdomain.Command{
			OrderID:       claim.OrderID,
			Type:          eventdomain.ClaimRequested,
			SourceID:      claim.ID,
			CurrentStatus: string(claim.Status),
			ActorType:     eventdomain.ActorCustomer,
			ActorID:       claim.MemberID,
			Description:   claim.Reason,
			Metadata:      map[string]string{"claimType": string(claim.Type), "claimNumber": claim.ClaimNumber},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "claim requested",
		"claim_id", claim.ID, "order_id", claim.OrderID, "type", claim.Type)
	return claim, nil
}

// Approve applies the claim's effects in one transaction: quantity counters
// on the order items, the payment refund, the stock restore, and the ledger
// entries. Cancel and refund claims complete immediately; returns and
// exchanges stay in progress until the goods move.
func (s *Service) Approve(ctx context.Context, claimID, actorID string) (*domain.Claim, error) {
	var approved *domain.Claim

	err := s.tx.WithTx(ctx, func(q postgres.Querier) error {
		claim, err := s.claims.Get(ctx, q, claimID)
		if err != nil {
			return err
		}
		approved, err = claim.Approve(s.clock())
		if err != nil {
			return wrapClaimErr(err)
		}

		o, err := s.orders.Get(ctx, q, claim.OrderID)
		if err != nil {
			return err
		}
		restock, updatedOrder, err := s.applyOrderEffects(o, claim)
		if err != nil {
			return err
		}
		if err := s.orders.Update(ctx, q, updatedOrder, o.Version); err != nil {
			return err
		}

		var refundEvent *eventdomain.EventType
		if claim.Type.RequiresRefund() {
			payment, err := s.payments.GetByCheckoutID(ctx, q, o.CheckoutID)
			if err != nil {
				return err
			}
			refunded, err := payment.Refund(claim.RefundAmount, s.clock())
			if err != nil {
				return wrapPaymentErr(err)
			}
			if err := s.payments.Update(ctx, q, refunded); err != nil {
				return err
			}
			evType := eventdomain.PaymentPartialRefunded
			if refunded.Status == paymentdomain.StatusRefunded {
				evType = eventdomain.PaymentRefunded
			}
			refundEvent = &evType
		}

		// terminal for money-only claims; returns and exchanges wait for
		// the physical goods
		switch claim.Type {
		case domain.TypeCancel, domain.TypeRefund:
			approved, err = approved.Complete(s.clock())
		default:
			approved, err = approved.Start(s.clock())
		}
		if err != nil {
			return wrapClaimErr(err)
		}
		if err := s.claims.Update(ctx, q, approved); err != nil {
			return err
		}

		if _, err := s.events.Append(ctx, q, eventdomain.Command{
			OrderID:        claim.OrderID,
			Type:           eventdomain.ClaimApproved,
			SourceID:       claim.ID,
			PreviousStatus: string(domain.StatusRequested),
			CurrentStatus:  string(approved.Status),
			ActorType:      eventdomain.ActorAdmin,
			ActorID:        actorID,
		}); err != nil {
			return err
		}
		if refundEvent != nil {
			if _, err := s.events.Append(ctx, q, eventdomain.Command{
				OrderID:   claim.OrderID,
				Type:      *refundEvent,
				SourceID:  claim.ID,
				ActorType: eventdomain.ActorSystem,
				Metadata:  map[string]string{"refundAmount": claim.RefundAmount.String()},
			}); err != nil {
				return err
			}
		}
		if updatedOrder.Status == orderdomain.StatusCancelled && o.Status != orderdomain.StatusCancelled {
			if _, err := s.events.Append(ctx, q, eventdomain.Command{
				OrderID:        o.ID,
				Type:           eventdomain.OrderCancelled,
				SourceID:       claim.ID,
				PreviousStatus: string(o.Status),
				CurrentStatus:  string(orderdomain.StatusCancelled),
				ActorType:      eventdomain.ActorSystem,
			}); err != nil {
				return err
			}
		}

		// redis restock runs last; a rollback of this transaction after it
		// would leak restored stock until reconciliation
		if len(restock) > 0 {
			if err := s.stock.Release(ctx, restock); err != nil {
				slog.ErrorContext(ctx, "CRITICAL: stock restore on claim approval",
					"claim_id", claim.ID, "error", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "claim approved", "claim_id", approved.ID, "status", approved.Status)
	return approved, nil
}

// Reject closes a REQUESTED claim without side effects.
func (s *Service) Reject(ctx context.Context, claimID, reason, actorID string) (*domain.Claim, error) {
	var rejected *domain.Claim

	err := s.tx.WithTx(ctx, func(q postgres.Querier) error {
		claim, err := s.claims.Get(ctx, q, claimID)
		if err != nil {
			return err
		}
		rejected, err = claim.Reject(reason, s.clock())
		if err != nil {
			return wrapClaimErr(err)
		}
		if err := s.claims.Update(ctx, q, rejected); err != nil {
			return err
		}
		_, err = s.events.Append(ctx, q, eventdomain.Command{
			OrderID:        claim.OrderID,
			Type:           eventdomain.ClaimRejected,
			SourceID:       claim.ID,
			PreviousStatus: string(domain.StatusRequested),
			CurrentStatus:  string(domain.StatusRejected),
			ActorType:      eventdomain.ActorAdmin,
			ActorID:        actorID,
			Description:    reason,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "claim rejected", "claim_id", rejected.ID)
	return rejected, nil
}

// Complete closes an IN_PROGRESS return or exchange once the goods moved.
func (s *Service) Complete(ctx context.Context, claimID, actorID string) (*domain.Claim, error) {
	var completed *domain.Claim

	err := s.tx.WithTx(ctx, func(q postgres.Querier) error {
		claim, err := s.claims.Get(ctx, q, claimID)
		if err != nil {
			return err
		}
		completed, err = claim.Complete(s.clock())
		if err != nil {
			return wrapClaimErr(err)
		}
		if err := s.claims.Update(ctx, q, completed); err != nil {
			return err
		}
		_, err = s.events.Append(ctx, q, eventdomain.Command{
			OrderID:        claim.OrderID,
			Type:           eventdomain.ClaimCompleted,
			SourceID:       claim.ID,
			PreviousStatus: string(claim.Status),
			CurrentStatus:  string(domain.StatusCompleted),
			ActorType:      eventdomain.ActorAdmin,
			ActorID:        actorID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "claim completed", "claim_id", completed.ID)
	return completed, nil
}

// Get loads one claim.
func (s *Service) Get(ctx context.Context, claimID string) (*domain.Claim, error) {
	return s.claims.Get(ctx, s.db, claimID)
}

// ListByOrder returns every claim raised against an order.
func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]*domain.Claim, error) {
	return s.claims.ListByOrder(ctx, s.db, orderID)
}

// applyOrderEffects mutates the order per claim type and reports which SKUs
// re-enter stock.
func (s *Service) applyOrderEffects(o *orderdomain.Order, claim *domain.Claim) (map[int64]int, *orderdomain.Order, error) {
	restock := map[int64]int{}

	// whole-order cancel
	if claim.OrderItemID == "" {
		cancelled, err := o.Cancel(s.clock())
		if err != nil {
			return nil, nil, wrapOrderErr(err)
		}
		for _, it := range o.Items {
			if qty := it.EffectiveQuantity(); qty > 0 {
				restock[it.ProductStockID] += qty
			}
		}
		return restock, cancelled, nil
	}

	item, ok := o.Item(claim.OrderItemID)
	if !ok {
		return nil, nil, errs.Newf(errs.CodeNotFound, "order item %s not found", claim.OrderItemID)
	}

	var (
		updated *orderdomain.Order
		err     error
	)
	switch claim.Type {
	case domain.TypeCancel:
		updated, err = o.CancelItem(claim.OrderItemID, claim.Quantity)
		restock[item.ProductStockID] = claim.Quantity
	case domain.TypeReturn:
		updated, err = o.RefundItem(claim.OrderItemID, claim.Quantity)
		restock[item.ProductStockID] = claim.Quantity
	case domain.TypeRefund:
		// money moves back, the goods stay with the customer
		updated, err = o.RefundItem(claim.OrderItemID, claim.Quantity)
	case domain.TypeExchange:
		// quantities and money are untouched; the swap is tracked by the
		// claim status alone
		updated = o
	default:
		return nil, nil, errs.Newf(errs.CodeValidation, "unknown claim type %q", claim.Type)
	}
	if err != nil {
		return nil, nil, wrapOrderErr(err)
	}
	return restock, updated, nil
}

func wrapClaimErr(err error) error {
	var tre *domain.StatusTransitionError
	if errors.As(err, &tre) {
		return errs.Wrap(errs.CodeConflict, err, "claim transition rejected")
	}
	return errs.Wrap(errs.CodeValidation, err, "invalid claim operation")
}

func wrapOrderErr(err error) error {
	var (
		tre *orderdomain.StatusTransitionError
		qe  *orderdomain.QuantityError
	)
	switch {
	case errors.As(err, &tre), errors.As(err, &qe):
		return errs.Wrap(errs.CodeConflict, err, "order mutation rejected")
	default:
		return fmt.Errorf("order mutation: %w", err)
	}
}

func wrapPaymentErr(err error) error {
	var (
		statusErr *paymentdomain.InvalidPaymentStatusError
		amountErr *paymentdomain.RefundAmountError
	)
	switch {
	case errors.As(err, &statusErr), errors.As(err, &amountErr):
		return errs.Wrap(errs.CodeConflict, err, "refund rejected")
	default:
		return fmt.Errorf("refund: %w", err)
	}
}
