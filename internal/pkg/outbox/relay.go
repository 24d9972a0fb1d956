package outbox

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/setof-commerce/order-core/internal/pkg/postgres"
)

// Relay polls the outbox and publishes pending records to Kafka. Delivery is
// at-least-once: a record is marked sent only after the broker acknowledges,
// so consumers must de-duplicate on event_id.
type Relay struct {
	q        postgres.Querier
	writer   *kafka.Writer
	interval time.Duration
	batch    int
}

// NewRelay builds a relay for the given brokers and topic. Returns nil if
// brokersCSV is empty: the relay is optional and the core never depends on it.
func NewRelay(q postgres.Querier, brokersCSV, topic string) *Relay {
	var brokers []string
	for _, b := range strings.Split(brokersCSV, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil
	}
	return &Relay{
		q: q,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		interval: time.Second,
		batch:    100,
	}
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick; the outbox row stays pending.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.writer.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	records, err := FetchPending(ctx, r.q, r.batch)
	if err != nil {
		slog.ErrorContext(ctx, "outbox fetch failed", "error", err)
		return
	}
	for _, rec := range records {
		msg := kafka.Message{Key: []byte(rec.Key), Value: rec.Payload, Time: time.Now().UTC()}
		if err := r.writer.WriteMessages(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "outbox publish failed", "event_id", rec.EventID, "error", err)
			return
		}
		if err := MarkSent(ctx, r.q, rec.ID); err != nil {
			slog.ErrorContext(ctx, "outbox mark sent failed", "event_id", rec.EventID, "error", err)
			return
		}
	}
}
