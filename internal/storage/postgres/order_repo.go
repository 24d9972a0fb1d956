package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/setof-commerce/order-core/internal/order/domain"
	"github.com/setof-commerce/order-core/internal/pkg/errs"
	db "github.com/setof-commerce/order-core/internal/pkg/postgres"
)

// OrderRepo persists orders and their items. Items live in their own table
// because claims mutate their counters after creation.
type OrderRepo struct{}

func NewOrderRepo() *OrderRepo {
	return &OrderRepo{}
}

const orderColumns = `id, order_number, checkout_id, member_id, seller_id, status,
	total_item_amount::text, shipping_fee::text, final_amount::text, shipping,
	ordered_at, confirmed_at, shipped_at, delivered_at, completed_at, cancelled_at, version`

func (r *OrderRepo) Insert(ctx context.Context, q db.Querier, o *domain.Order) error {
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("order repo: encode shipping: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO orders (id, order_number, checkout_id, member_id, seller_id, status,
			total_item_amount, shipping_fee, final_amount, shipping,
			ordered_at, confirmed_at, shipped_at, delivered_at, completed_at, cancelled_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.OrderNumber, o.CheckoutID, o.MemberID, o.SellerID, string(o.Status),
		o.TotalItemAmount.String(), o.ShippingFee.String(), o.FinalAmount.String(), shipping,
		o.OrderedAt, nullTime(o.ConfirmedAt), nullTime(o.ShippedAt), nullTime(o.DeliveredAt),
		nullTime(o.CompletedAt), nullTime(o.CancelledAt), o.Version)
	if err != nil {
		return fmt.Errorf("order repo: insert %s: %w", o.ID, err)
	}
	for _, it := range o.Items {
		if err := r.insertItem(ctx, q, o.ID, it); err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepo) insertItem(ctx context.Context, q db.Querier, orderID string, it domain.Item) error {
	snapshot, err := json.Marshal(it.Snapshot)
	if err != nil {
		return fmt.Errorf("order repo: encode snapshot: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO order_items (id, order_id, product_id, product_stock_id,
			ordered_quantity, cancelled_quantity, refunded_quantity, unit_price, total_price, snapshot)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		it.ID, orderID, it.ProductID, it.ProductStockID,
		it.OrderedQuantity, it.CancelledQuantity, it.RefundedQuantity,
		it.UnitPrice.String(), it.TotalPrice.String(), snapshot)
	if err != nil {
		return fmt.Errorf("order repo: insert item %s: %w", it.ID, err)
	}
	return nil
}

func (r *OrderRepo) Get(ctx context.Context, q db.Querier, id string) (*domain.Order, error) {
	row := q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.Newf(errs.CodeNotFound, "order %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.listItems(ctx, q, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *OrderRepo) ListByCheckoutID(ctx context.Context, q db.Querier, checkoutID string) ([]*domain.Order, error) {
	rows, err := q.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE checkout_id = $1 ORDER BY seller_id`, checkoutID)
	if err != nil {
		return nil, fmt.Errorf("order repo: list by checkout %s: %w", checkoutID, err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if o.Items, err = r.listItems(ctx, q, o.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Update writes the lifecycle fields and item counters conditionally on the
// stored version.
func (r *OrderRepo) Update(ctx context.Context, q db.Querier, o *domain.Order, expectedVersion int64) error {
	tag, err := q.Exec(ctx, `
		UPDATE orders SET status = $1, confirmed_at = $2, shipped_at = $3, delivered_at = $4,
			completed_at = $5, cancelled_at = $6, version = $7
		 WHERE id = $8 AND version = $9`,
		string(o.Status), nullTime(o.ConfirmedAt), nullTime(o.ShippedAt), nullTime(o.DeliveredAt),
		nullTime(o.CompletedAt), nullTime(o.CancelledAt), o.Version, o.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("order repo: update %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.Newf(errs.CodeConflict, "order %s moved past version %d", o.ID, expectedVersion)
	}
	for _, it := range o.Items {
		if _, err := q.Exec(ctx, `
			UPDATE order_items SET cancelled_quantity = $1, refunded_quantity = $2 WHERE id = $3`,
			it.CancelledQuantity, it.RefundedQuantity, it.ID); err != nil {
			return fmt.Errorf("order repo: update item %s: %w", it.ID, err)
		}
	}
	return nil
}

func (r *OrderRepo) listItems(ctx context.Context, q db.Querier, orderID string) ([]domain.Item, error) {
	rows, err := q.Query(ctx, `
		SELECT id, product_id, product_stock_id, ordered_quantity, cancelled_quantity,
		       refunded_quantity, unit_price::text, total_price::text, snapshot
		  FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order repo: list items for %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		var (
			it                  domain.Item
			unit, total         string
			snapshot            []byte
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductStockID, &it.OrderedQuantity,
			&it.CancelledQuantity, &it.RefundedQuantity, &unit, &total, &snapshot); err != nil {
			return nil, fmt.Errorf("order repo: scan item: %w", err)
		}
		if it.UnitPrice, err = parseAmount(unit); err != nil {
			return nil, fmt.Errorf("order repo: unit price: %w", err)
		}
		if it.TotalPrice, err = parseAmount(total); err != nil {
			return nil, fmt.Errorf("order repo: total price: %w", err)
		}
		if err := json.Unmarshal(snapshot, &it.Snapshot); err != nil {
			return nil, fmt.Errorf("order repo: decode snapshot: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o                                                      domain.Order
		status                                                 string
		total, fee, fin                                        string
		shipping                                               []byte
		confirmed, shipped, delivered, completed, cancelledAt  *time.Time
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CheckoutID, &o.MemberID, &o.SellerID, &status,
		&total, &fee, &fin, &shipping,
		&o.OrderedAt, &confirmed, &shipped, &delivered, &completed, &cancelledAt, &o.Version)
	if err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	o.ConfirmedAt = fromNull(confirmed)
	o.ShippedAt = fromNull(shipped)
	o.DeliveredAt = fromNull(delivered)
	o.CompletedAt = fromNull(completed)
	o.CancelledAt = fromNull(cancelledAt)
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return nil, fmt.Errorf("order repo: decode shipping: %w", err)
	}
	if o.TotalItemAmount, err = parseAmount(total); err != nil {
		return nil, fmt.Errorf("order repo: total amount: %w", err)
	}
	if o.ShippingFee, err = parseAmount(fee); err != nil {
		return nil, fmt.Errorf("order repo: shipping fee: %w", err)
	}
	if o.FinalAmount, err = parseAmount(fin); err != nil {
		return nil, fmt.Errorf("order repo: final amount: %w", err)
	}
	return &o, nil
}
