// Package ids generates the identifiers used across the pipeline: ULIDs for
// aggregate ids (globally unique and time-sortable, so storage ordering
// follows creation order) and human-readable order numbers.
package ids

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a lexicographically sortable unique id for the current time.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// NewOrderNumber builds the immutable, human-readable order number shown to
// customers and sellers, e.g. ORD-20260831-01HZXKQJ.
func NewOrderNumber(now time.Time) string {
	suffix := NewULID()
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), suffix[len(suffix)-8:])
}

// NewClaimNumber builds the claim counterpart, e.g. CLM-20260831-01HZXKQJ.
func NewClaimNumber(now time.Time) string {
	suffix := NewULID()
	return fmt.Sprintf("CLM-%s-%s", now.UTC().Format("20060102"), suffix[len(suffix)-8:])
}
