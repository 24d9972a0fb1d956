// Package outbox persists event references in the same transaction as the
// ledger append and relays them to Kafka afterwards, so external collaborators
// (notification, CMS, admin) learn of state changes without the core blocking
// on their consumption.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/setof-commerce/order-core/internal/pkg/postgres"
)

// Record is one row in the outbox table.
type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// Store is the SQL-backed outbox, injectable behind a small interface where
// callers need a fake.
type Store struct{}

func (Store) Insert(ctx context.Context, q postgres.Querier, eventID, topic, key string, payload any) error {
	return Insert(ctx, q, eventID, topic, key, payload)
}

// Insert appends a pending record. Call it with the same Querier (transaction)
// that writes the business rows so the two commit atomically.
func Insert(ctx context.Context, q postgres.Querier, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO outbox (event_id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		eventID, topic, key, data)
	if err != nil {
		return fmt.Errorf("outbox: insert: %w", err)
	}
	return nil
}

// FetchPending returns up to limit unsent records in insertion order.
func FetchPending(ctx context.Context, q postgres.Querier, limit int) ([]Record, error) {
	rows, err := q.Query(ctx,
		`SELECT id, event_id, topic, key, payload, created_at, sent_at
		   FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: fetch pending: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkSent stamps a record as delivered.
func MarkSent(ctx context.Context, q postgres.Querier, id int64) error {
	_, err := q.Exec(ctx, `UPDATE outbox SET sent_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("outbox: mark sent: %w", err)
	}
	return nil
}
