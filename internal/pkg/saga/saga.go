// Package saga runs a sequence of steps with compensating actions.
//
// The checkout pipeline uses it wherever a multi-resource mutation cannot be
// covered by one database transaction, most notably multi-SKU stock
// reservation: a shortage on the Nth SKU must undo the first N-1 decrements
// in reverse order.
package saga

import (
	"context"
	"log/slog"
)

// Step is a single unit of work with an action that undoes its effects.
type Step interface {
	Name() string
	Execute(ctx context.Context) error
	Compensate(ctx context.Context) error
}

// Orchestrator executes steps sequentially; on failure it compensates the
// previously successful steps in LIFO order.
type Orchestrator struct {
	id    string
	steps []Step
}

// New builds an orchestrator. id correlates log lines with business data
// (typically the checkout id).
func New(id string, steps []Step) *Orchestrator {
	return &Orchestrator{id: id, steps: steps}
}

// Run executes the steps in order and returns the first step error after
// rolling back. Compensation failures are logged but do not mask the
// original error.
func (o *Orchestrator) Run(ctx context.Context) error {
	var done []Step

	for _, step := range o.steps {
		if err := step.Execute(ctx); err != nil {
			slog.WarnContext(ctx, "saga step failed, rolling back",
				"saga_id", o.id, "step", step.Name(), "error", err)
			o.rollback(ctx, done)
			return err
		}
		done = append(done, step)
	}
	return nil
}

func (o *Orchestrator) rollback(ctx context.Context, steps []Step) {
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.Compensate(ctx); err != nil {
			// A failed compensation leaves a resource leaked; it must be
			// reconciled out of band, so log it loudly.
			slog.ErrorContext(ctx, "CRITICAL: saga compensation failed",
				"saga_id", o.id, "step", step.Name(), "error", err)
		}
	}
}
