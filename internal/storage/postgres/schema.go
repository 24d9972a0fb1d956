// Package postgres implements the repository ports on pgx. All methods take
// the Querier explicitly so use cases can group writes into one transaction.
package postgres

import (
	"context"
	"fmt"

	db "github.com/setof-commerce/order-core/internal/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkouts (
    id                TEXT PRIMARY KEY,
    member_id         TEXT NOT NULL,
    idempotency_key   TEXT NOT NULL UNIQUE,
    items             JSONB NOT NULL,
    payment_method    TEXT NOT NULL,
    pg_provider       TEXT NOT NULL,
    shipping          JSONB NOT NULL,
    total_item_amount NUMERIC(18,2) NOT NULL,
    shipping_fee      NUMERIC(18,2) NOT NULL,
    final_amount      NUMERIC(18,2) NOT NULL,
    status            TEXT NOT NULL,
    version           BIGINT NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL,
    expires_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkouts_expirable
    ON checkouts (expires_at) WHERE status = 'PENDING_PAYMENT';

CREATE TABLE IF NOT EXISTS payments (
    id                TEXT PRIMARY KEY,
    checkout_id       TEXT NOT NULL UNIQUE REFERENCES checkouts (id),
    pg_provider       TEXT NOT NULL,
    pg_transaction_id TEXT,
    method            TEXT NOT NULL,
    status            TEXT NOT NULL,
    requested_amount  NUMERIC(18,2) NOT NULL,
    approved_amount   NUMERIC(18,2) NOT NULL,
    refunded_amount   NUMERIC(18,2) NOT NULL,
    currency          TEXT NOT NULL,
    approved_at       TIMESTAMPTZ,
    cancelled_at      TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
    id                TEXT PRIMARY KEY,
    order_number      TEXT NOT NULL UNIQUE,
    checkout_id       TEXT NOT NULL REFERENCES checkouts (id),
    member_id         TEXT NOT NULL,
    seller_id         BIGINT NOT NULL,
    status            TEXT NOT NULL,
    total_item_amount NUMERIC(18,2) NOT NULL,
    shipping_fee      NUMERIC(18,2) NOT NULL,
    final_amount      NUMERIC(18,2) NOT NULL,
    shipping          JSONB NOT NULL,
    ordered_at        TIMESTAMPTZ NOT NULL,
    confirmed_at      TIMESTAMPTZ,
    shipped_at        TIMESTAMPTZ,
    delivered_at      TIMESTAMPTZ,
    completed_at      TIMESTAMPTZ,
    cancelled_at      TIMESTAMPTZ,
    version           BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_checkout ON orders (checkout_id);

CREATE TABLE IF NOT EXISTS order_items (
    id                 TEXT PRIMARY KEY,
    order_id           TEXT NOT NULL REFERENCES orders (id),
    product_id         BIGINT NOT NULL,
    product_stock_id   BIGINT NOT NULL,
    ordered_quantity   INT NOT NULL,
    cancelled_quantity INT NOT NULL,
    refunded_quantity  INT NOT NULL,
    unit_price         NUMERIC(18,2) NOT NULL,
    total_price        NUMERIC(18,2) NOT NULL,
    snapshot           JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);

CREATE TABLE IF NOT EXISTS order_events (
    id              TEXT PRIMARY KEY,
    seq             BIGSERIAL,
    order_id        TEXT NOT NULL REFERENCES orders (id),
    event_type      TEXT NOT NULL,
    event_source    TEXT NOT NULL,
    source_id       TEXT,
    previous_status TEXT,
    current_status  TEXT,
    description     TEXT NOT NULL,
    actor_type      TEXT NOT NULL,
    actor_id        TEXT,
    metadata        JSONB,
    occurred_at     TIMESTAMPTZ NOT NULL,
    recorded_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events (order_id, recorded_at, seq);
CREATE INDEX IF NOT EXISTS idx_order_events_source ON order_events (event_source, source_id);

CREATE TABLE IF NOT EXISTS claims (
    id            TEXT PRIMARY KEY,
    claim_number  TEXT NOT NULL UNIQUE,
    order_id      TEXT NOT NULL REFERENCES orders (id),
    order_item_id TEXT,
    member_id     TEXT NOT NULL,
    type          TEXT NOT NULL,
    status        TEXT NOT NULL,
    reason        TEXT NOT NULL,
    quantity      INT NOT NULL,
    refund_amount NUMERIC(18,2) NOT NULL,
    reject_reason TEXT,
    requested_at  TIMESTAMPTZ NOT NULL,
    approved_at   TIMESTAMPTZ,
    rejected_at   TIMESTAMPTZ,
    completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_claims_order ON claims (order_id);

CREATE TABLE IF NOT EXISTS outbox (
    id         BIGSERIAL PRIMARY KEY,
    event_id   TEXT NOT NULL,
    topic      TEXT NOT NULL,
    key        TEXT NOT NULL,
    payload    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    sent_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (id) WHERE sent_at IS NULL;
`

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, q db.Querier) error {
	if _, err := q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
