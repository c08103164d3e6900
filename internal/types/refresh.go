// ABOUTME: RefreshResult type describing a completed signature store refresh
// ABOUTME: Reports the new entry count, delta against the prior set, and timing

package types

import (
	"fmt"
	"strings"
	"time"
)

// RefreshResult contains the outcome of a successful refresh.
type RefreshResult struct {
	// Count is the number of entries in the store after the refresh.
	Count int64 `json:"count"`

	// Added is the number of digests not present before the refresh.
	Added int64 `json:"added"`

	// Removed is the number of digests no longer present.
	Removed int64 `json:"removed"`

	// Generation is the newly active store generation.
	Generation uint64 `json:"generation"`

	// Source names the feed that was read.
	Source string `json:"source,omitempty"`

	// Duration is how long the refresh took.
	Duration time.Duration `json:"duration"`

	// CompletedAt is when the new generation became active.
	CompletedAt time.Time `json:"completed_at"`
}

// String returns a human-readable summary of the refresh result.
func (r *RefreshResult) String() string {
	parts := []string{
		fmt.Sprintf("count=%d", r.Count),
		fmt.Sprintf("added=%d", r.Added),
		fmt.Sprintf("removed=%d", r.Removed),
		fmt.Sprintf("generation=%d", r.Generation),
	}

	if r.Source != "" {
		parts = append(parts, fmt.Sprintf("source=%s", r.Source))
	}

	parts = append(parts, fmt.Sprintf("duration=%v", r.Duration.Round(time.Millisecond)))

	return strings.Join(parts, " ")
}
