// ABOUTME: ScanReport type summarising one directory scan
// ABOUTME: Holds matched paths in walk order, per-verdict counters, and timing

package types

import (
	"time"
)

// Match is a file whose digest was found in the signature store.
type Match struct {
	Path   string `json:"path"`
	Digest Digest `json:"digest"`
	Size   int64  `json:"size"`

	// FileType is the detected content type (e.g., "exe"), empty if unknown.
	FileType string `json:"file_type,omitempty"`
}

// ScanStats counts files and bytes by outcome.
type ScanStats struct {
	// Files is the number of regular files visited.
	Files int64 `json:"files"`
	// Hashed is the number of files digested and looked up.
	Hashed int64 `json:"hashed"`
	// Skipped covers empty, unreadable and false-positive files.
	Skipped int64 `json:"skipped"`
	// FalsePositives is the subset of Skipped suppressed by the false-positive list.
	FalsePositives int64 `json:"false_positives"`
	// QueryFailures is the subset of Hashed whose lookup failed.
	QueryFailures int64 `json:"query_failures"`
	// Matched is the number of infected files.
	Matched int64 `json:"matched"`

	BytesTotal   int64 `json:"bytes_total"`
	BytesScanned int64 `json:"bytes_scanned"`
}

// Record counts a file verdict.
func (s *ScanStats) Record(v Verdict) {
	s.Files++
	switch v {
	case VerdictClean:
		s.Hashed++
	case VerdictInfected:
		s.Hashed++
		s.Matched++
	case VerdictQueryFailed:
		s.Hashed++
		s.QueryFailures++
	case VerdictFalsePositive:
		s.Skipped++
		s.FalsePositives++
	default:
		s.Skipped++
	}
}

// ScanReport is the result of scanning one root.
type ScanReport struct {
	Root string `json:"root"`

	// Matches in walk order.
	Matches []Match `json:"matches"`

	// QueryFailures lists paths whose store lookup failed.
	QueryFailures []string `json:"query_failures,omitempty"`

	Stats ScanStats `json:"stats"`

	// StoppedEarly is set when the scan ended at the first match.
	StoppedEarly bool `json:"stopped_early,omitempty"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// NewScanReport creates an empty report for root.
func NewScanReport(root string) *ScanReport {
	return &ScanReport{
		Root:      root,
		Matches:   []Match{},
		StartedAt: time.Now().UTC(),
	}
}

// Infected reports whether any file matched.
func (r *ScanReport) Infected() bool {
	return len(r.Matches) > 0
}

// Incomplete reports whether some lookups failed, so files went unchecked.
func (r *ScanReport) Incomplete() bool {
	return len(r.QueryFailures) > 0
}

// IsClean returns true only if every hashed file was looked up and
// none matched.
func (r *ScanReport) IsClean() bool {
	return !r.Infected() && !r.Incomplete()
}

// MatchedPaths returns the matched file paths in walk order.
func (r *ScanReport) MatchedPaths() []string {
	paths := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		paths[i] = m.Path
	}
	return paths
}

// Duration returns the elapsed scan time.
func (r *ScanReport) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
