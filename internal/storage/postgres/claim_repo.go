package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/setof-commerce/order-core/internal/claim/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	db "github.com/setof-commerce/order-core/internal/pkg/postgres"
)

type ClaimRepo struct{}

func NewClaimRepo() *ClaimRepo {
	return &ClaimRepo{}
}

const claimColumns = `id, claim_number, order_id, order_item_id, member_id, type, status,
	reason, quantity, refund_amount::text, reject_reason,
	requested_at, approved_at, rejected_at, completed_at`

func (r *ClaimRepo) Insert(ctx context.Context, q db.Querier, c *domain.Claim) error {
	_, err := q.Exec(ctx, `
		INSERT INTO claims (id, claim_number, order_id, order_item_id, member_id, type, status,
			reason, quantity, refund_amount, reject_reason,
			requested_at, approved_at, rejected_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		c.ID, c.ClaimNumber, c.OrderID, nullString(c.OrderItemID), c.MemberID,
		string(c.Type), string(c.Status), c.Reason, c.Quantity, c.RefundAmount.String(),
		nullString(c.RejectReason), c.RequestedAt,
		nullTime(c.ApprovedAt), nullTime(c.RejectedAt), nullTime(c.CompletedAt))
	if err != nil {
		return fmt.Errorf("claim repo: insert %s: %w", c.ID, err)
	}
	return nil
}

func (r *ClaimRepo) Get(ctx context.Context, q db.Querier, id string) (*domain.Claim, error) {
	row := q.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.Newf(errs.CodeNotFound, "claim %s not found", id)
	}
	return c, err
}

func (r *ClaimRepo) Update(ctx context.Context, q db.Querier, c *domain.Claim) error {
	tag, err := q.Exec(ctx, `
		UPDATE claims SET status = $1, reject_reason = $2, approved_at = $3,
			rejected_at = $4, completed_at = $5
		 WHERE id = $6`,
		string(c.Status), nullString(c.RejectReason), nullTime(c.ApprovedAt),
		nullTime(c.RejectedAt), nullTime(c.CompletedAt), c.ID)
	if err != nil {
		return fmt.Errorf("claim repo: update %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.CodeNotFound, "claim %s not found", c.ID)
	}
	return nil
}

func (r *ClaimRepo) ListByOrder(ctx context.Context, q db.Querier, orderID string) ([]*domain.Claim, error) {
	rows, err := q.Query(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE order_id = $1 ORDER BY requested_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("claim repo: list by order %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []*domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanClaim(row pgx.Row) (*domain.Claim, error) {
	var (
		c                               domain.Claim
		orderItemID, rejectReason       *string
		claimType, status, refund       string
		approved, rejected, completed   *time.Time
	)
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.OrderID, &orderItemID, &c.MemberID,
		&claimType, &status, &c.Reason, &c.Quantity, &refund, &rejectReason,
		&c.RequestedAt, &approved, &rejected, &completed)
	if err != nil {
		return nil, err
	}
	c.OrderItemID = fromNullString(orderItemID)
	c.RejectReason = fromNullString(rejectReason)
	c.Type = domain.Type(claimType)
	c.Status = domain.Status(status)
	c.ApprovedAt = fromNull(approved)
	c.RejectedAt = fromNull(rejected)
	c.CompletedAt = fromNull(completed)
	if c.RefundAmount, err = parseAmount(refund); err != nil {
		return nil, fmt.Errorf("claim repo: refund amount: %w", err)
	}
	return &c, nil
}
