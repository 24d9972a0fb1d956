package domain

import "fmt"

// ValidationError rejects malformed input before any lock is taken.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IllegalStateTransitionError rejects a transition not allowed from the
// aggregate's current state. The loser of the expire/complete race receives
// this instead of corrupting state.
type IllegalStateTransitionError struct {
	Aggregate string
	ID        string
	From      string
	To        string
}

func (e *IllegalStateTransitionError) Error() string {
	return fmt.Sprintf("%s %s: illegal transition %s -> %s", e.Aggregate, e.ID, e.From, e.To)
}

// ReconciliationError marks an amount mismatch between the gateway and the
// checkout. It is fatal: never silently accepted, never silently corrected.
type ReconciliationError struct {
	CheckoutID string
	Expected   string
	Actual     string
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("checkout %s: approved amount %s does not match final amount %s",
		e.CheckoutID, e.Actual, e.Expected)
}
