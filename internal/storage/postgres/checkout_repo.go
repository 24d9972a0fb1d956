package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/setof-commerce/order-core/internal/checkout/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	db "github.com/setof-commerce/order-core/internal/pkg/postgres"
)

// CheckoutRepo persists the checkout aggregate. Items and shipping info are
// written whole as JSONB; they never change after creation.
type CheckoutRepo struct{}

func NewCheckoutRepo() *CheckoutRepo {
	return &CheckoutRepo{}
}

const checkoutColumns = `id, member_id, idempotency_key, items, payment_method, pg_provider,
	shipping, total_item_amount::text, shipping_fee::text, final_amount::text,
	status, version, created_at, updated_at, expires_at`

func (r *CheckoutRepo) Insert(ctx context.Context, q db.Querier, c domain.Checkout) error {
	items, err := json.Marshal(c.Items)
	if err != nil {
		return fmt.Errorf("checkout repo: encode items: %w", err)
	}
	shipping, err := json.Marshal(c.Shipping)
	if err != nil {
		return fmt.Errorf("checkout repo: encode shipping: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO checkouts (id, member_id, idempotency_key, items, payment_method, pg_provider,
			shipping, total_item_amount, shipping_fee, final_amount, status, version,
			created_at, updated_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.MemberID, c.IdempotencyKey, items, c.PaymentMethod, c.PgProvider,
		shipping, c.TotalItemAmount.String(), c.ShippingFee.String(), c.FinalAmount.String(),
		string(c.Status), c.Version, c.CreatedAt, c.UpdatedAt, c.ExpiresAt)
	if err != nil {
		return fmt.Errorf("checkout repo: insert %s: %w", c.ID, err)
	}
	return nil
}

func (r *CheckoutRepo) Get(ctx context.Context, q db.Querier, id string) (domain.Checkout, error) {
	row := q.QueryRow(ctx, `SELECT `+checkoutColumns+` FROM checkouts WHERE id = $1`, id)
	c, err := scanCheckout(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Checkout{}, errs.Newf(errs.CodeNotFound, "checkout %s not found", id)
	}
	return c, err
}

func (r *CheckoutRepo) GetByIdempotencyKey(ctx context.Context, q db.Querier, key string) (domain.Checkout, error) {
	row := q.QueryRow(ctx, `SELECT `+checkoutColumns+` FROM checkouts WHERE idempotency_key = $1`, key)
	c, err := scanCheckout(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Checkout{}, errs.Newf(errs.CodeNotFound, "no checkout for idempotency key %s", key)
	}
	return c, err
}

// Update writes the lifecycle fields conditionally on the stored version.
// A row that moved under us (expire vs complete race) is a conflict.
func (r *CheckoutRepo) Update(ctx context.Context, q db.Querier, c domain.Checkout, expectedVersion int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE checkouts SET status = $1, version = $2, updated_at = $3
		 WHERE id = $4 AND version = $5`,
		string(c.Status), c.Version, c.UpdatedAt, c.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("checkout repo: update %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.CodeConflict, "checkout %s moved past version %d", c.ID, expectedVersion)
	}
	return nil
}

func (r *CheckoutRepo) ListExpirable(ctx context.Context, q db.Querier, now time.Time, limit int) ([]domain.Checkout, error) {
	rows, err := q.Query(ctx, `
		SELECT `+checkoutColumns+` FROM checkouts
		 WHERE status = $1 AND expires_at <= $2
		 ORDER BY expires_at LIMIT $3`,
		string(domain.StatusPendingPayment), now, limit)
	if err != nil {
		return nil, fmt.Errorf("checkout repo: list expirable: %w", err)
	}
	defer rows.Close()

	var out []domain.Checkout
	for rows.Next() {
		c, err := scanCheckout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCheckout(row pgx.Row) (domain.Checkout, error) {
	var (
		c               domain.Checkout
		items, shipping []byte
		total, fee, fin string
		status          string
	)
	err := row.Scan(&c.ID, &c.MemberID, &c.IdempotencyKey, &items, &c.PaymentMethod, &c.PgProvider,
		&shipping, &total, &fee, &fin, &status, &c.Version, &c.CreatedAt, &c.UpdatedAt, &c.ExpiresAt)
	if err != nil {
		return domain.Checkout{}, err
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return domain.Checkout{}, fmt.Errorf("checkout repo: decode items: %w", err)
	}
	if err := json.Unmarshal(shipping, &c.Shipping); err != nil {
		return domain.Checkout{}, fmt.Errorf("checkout repo: decode shipping: %w", err)
	}
	c.Status = domain.Status(status)
	if c.TotalItemAmount, err = parseAmount(total); err != nil {
		return domain.Checkout{}, fmt.Errorf("checkout repo: total amount: %w", err)
	}
	if c.ShippingFee, err = parseAmount(fee); err != nil {
		return domain.Checkout{}, fmt.Errorf("checkout repo: shipping fee: %w", err)
	}
	if c.FinalAmount, err = parseAmount(fin); err != nil {
		return domain.Checkout{}, fmt.Errorf("checkout repo: final amount: %w", err)
	}
	return c, nil
}
