package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// nullTime maps the domain's zero time onto SQL NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// fromNull maps a scanned nullable timestamp back to the zero time.
func fromNull(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// nullString maps "" onto SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromNullString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// parseAmount converts a NUMERIC selected as text.
func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}
