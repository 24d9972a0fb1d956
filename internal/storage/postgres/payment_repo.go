package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/setof-commerce/order-core/internal/payment/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	db "github.com/setof-commerce/order-core/internal/pkg/postgres"
)

type PaymentRepo struct{}

func NewPaymentRepo() *PaymentRepo {
	return &PaymentRepo{}
}

const paymentColumns = `id, checkout_id, pg_provider, pg_transaction_id, method, status,
	requested_amount::text, approved_amount::text, refunded_amount::text, currency,
	approved_at, cancelled_at, created_at, updated_at`

// Insert relies on the checkout_id unique constraint: a second payment for
// the same checkout is a conflict, which is what makes completion retries
// double-charge safe.
func (r *PaymentRepo) Insert(ctx context.Context, q db.Querier, p domain.Payment) error {
	_, err := q.Exec(ctx, `
		INSERT INTO payments (id, checkout_id, pg_provider, pg_transaction_id, method, status,
			requested_amount, approved_amount, refunded_amount, currency,
			approved_at, cancelled_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.CheckoutID, p.PgProvider, nullString(p.PgTransactionID), p.Method, string(p.Status),
		p.RequestedAmount.String(), p.ApprovedAmount.String(), p.RefundedAmount.String(), p.Currency,
		nullTime(p.ApprovedAt), nullTime(p.CancelledAt), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errs.Newf(errs.CodeConflict, "payment already exists for checkout %s", p.CheckoutID)
		}
		return fmt.Errorf("payment repo: insert %s: %w", p.ID, err)
	}
	return nil
}

func (r *PaymentRepo) Get(ctx context.Context, q db.Querier, id string) (domain.Payment, error) {
	row := q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, errs.Newf(errs.CodeNotFound, "payment %s not found", id)
	}
	return p, err
}

func (r *PaymentRepo) GetByCheckoutID(ctx context.Context, q db.Querier, checkoutID string) (domain.Payment, error) {
	row := q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE checkout_id = $1`, checkoutID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, errs.Newf(errs.CodeNotFound, "no payment for checkout %s", checkoutID)
	}
	return p, err
}

func (r *PaymentRepo) Update(ctx context.Context, q db.Querier, p domain.Payment) error {
	tag, err := q.Exec(ctx, `
		UPDATE payments SET status = $1, pg_transaction_id = $2, approved_amount = $3,
			refunded_amount = $4, approved_at = $5, cancelled_at = $6, updated_at = $7
		 WHERE id = $8`,
		string(p.Status), nullString(p.PgTransactionID), p.ApprovedAmount.String(),
		p.RefundedAmount.String(), nullTime(p.ApprovedAt), nullTime(p.CancelledAt), p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("payment repo: update %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.CodeNotFound, "payment %s not found", p.ID)
	}
	return nil
}

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		p                             domain.Payment
		pgTxID                        *string
		status                        string
		requested, approved, refunded string
		approvedAt, cancelledAt       *time.Time
	)
	err := row.Scan(&p.ID, &p.CheckoutID, &p.PgProvider, &pgTxID, &p.Method, &status,
		&requested, &approved, &refunded, &p.Currency,
		&approvedAt, &cancelledAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Payment{}, err
	}
	p.PgTransactionID = fromNullString(pgTxID)
	p.Status = domain.Status(status)
	p.ApprovedAt = fromNull(approvedAt)
	p.CancelledAt = fromNull(cancelledAt)
	if p.RequestedAmount, err = parseAmount(requested); err != nil {
		return domain.Payment{}, fmt.Errorf("payment repo: requested amount: %w", err)
	}
	if p.ApprovedAmount, err = parseAmount(approved); err != nil {
		return domain.Payment{}, fmt.Errorf("payment repo: approved amount: %w", err)
	}
	if p.RefundedAmount, err = parseAmount(refunded); err != nil {
		return domain.Payment{}, fmt.Errorf("payment repo: refunded amount: %w", err)
	}
	return p, nil
}
