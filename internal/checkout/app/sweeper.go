package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/setof-commerce/order-core/internal/pkg/errs"
)

const sweepBatchSize = 100

// Sweeper expires checkouts whose payment window has closed, restoring
// their reserved stock. It is the background counterpart of the manual
// expire endpoint.
type Sweeper struct {
	service  *Service
	interval time.Duration
}

func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	return &Sweeper{service: service, interval: interval}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "checkout sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "checkout sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep expires one batch. A checkout that completes concurrently loses
// its expirable status mid-flight; that conflict is expected and skipped.
func (s *Sweeper) sweep(ctx context.Context) {
	stale, err := s.service.checkouts.ListExpirable(ctx, s.service.db, s.service.clock(), sweepBatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "sweep: list expirable checkouts", "error", err)
		return
	}
	for _, chk := range stale {
		if _, err := s.service.Expire(ctx, chk.ID); err != nil {
			if errs.Is(err, errs.CodeConflict) {
				slog.InfoContext(ctx, "sweep: checkout completed concurrently, skipping",
					"checkout_id", chk.ID)
				continue
			}
			slog.ErrorContext(ctx, "sweep: expire checkout", "checkout_id", chk.ID, "error", err)
		}
	}
	if len(stale) > 0 {
		slog.InfoContext(ctx, "sweep finished", "expired_candidates", len(stale))
	}
}
