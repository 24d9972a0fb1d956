package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/setof-commerce/order-core/internal/orderevent/domain"
	db "github.com/setof-commerce/order-core/internal/pkg/postgres"
)

// EventRepo persists ledger entries. Append-only: there is deliberately no
// update or delete statement in this file.
type EventRepo struct{}

func NewEventRepo() *EventRepo {
	return &EventRepo{}
}

const eventColumns = `id, order_id, event_type, event_source, source_id, previous_status,
	current_status, description, actor_type, actor_id, metadata, occurred_at, recorded_at`

func (r *EventRepo) Insert(ctx context.Context, q db.Querier, ev *domain.Event) error {
	var metadata any
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("event repo: encode metadata: %w", err)
		}
		metadata = data
	}
	_, err := q.Exec(ctx, `
		INSERT INTO order_events (id, order_id, event_type, event_source, source_id,
			previous_status, current_status, description, actor_type, actor_id,
			metadata, occurred_at, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		ev.ID, ev.OrderID, string(ev.Type), string(ev.Source), nullString(ev.SourceID),
		nullString(ev.PreviousStatus), nullString(ev.CurrentStatus), ev.Description,
		string(ev.ActorType), nullString(ev.ActorID), metadata, ev.OccurredAt, ev.RecordedAt)
	if err != nil {
		return fmt.Errorf("event repo: insert %s: %w", ev.ID, err)
	}
	return nil
}

func (r *EventRepo) ListByOrder(ctx context.Context, q db.Querier, orderID string, desc bool) ([]*domain.Event, error) {
	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	// seq breaks ties between entries recorded in the same instant
	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+` FROM order_events
		 WHERE order_id = $1
		 ORDER BY recorded_at `+direction+`, seq `+direction, orderID)
	if err != nil {
		return nil, fmt.Errorf("event repo: list by order %s: %w", orderID, err)
	}
	return collectEvents(rows)
}

func (r *EventRepo) ListBySource(ctx context.Context, q db.Querier, source domain.Source, sourceID string) ([]*domain.Event, error) {
	rows, err := q.Query(ctx, `
		SELECT `+eventColumns+` FROM order_events
		 WHERE event_source = $1 AND source_id = $2
		 ORDER BY recorded_at, seq`, string(source), sourceID)
	if err != nil {
		return nil, fmt.Errorf("event repo: list by source %s/%s: %w", source, sourceID, err)
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]*domain.Event, error) {
	defer rows.Close()

	var out []*domain.Event
	for rows.Next() {
		var (
			ev                             domain.Event
			typ, source, actorType         string
			sourceID, prev, curr, actorID  *string
			metadata                       []byte
		)
		if err := rows.Scan(&ev.ID, &ev.OrderID, &typ, &source, &sourceID, &prev, &curr,
			&ev.Description, &actorType, &actorID, &metadata, &ev.OccurredAt, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("event repo: scan: %w", err)
		}
		ev.Type = domain.EventType(typ)
		ev.Source = domain.Source(source)
		ev.SourceID = fromNullString(sourceID)
		ev.PreviousStatus = fromNullString(prev)
		ev.CurrentStatus = fromNullString(curr)
		ev.ActorType = domain.ActorType(actorType)
		ev.ActorID = fromNullString(actorID)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("event repo: decode metadata: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
