// ABOUTME: Verdict type describing the outcome of checking a single file
// ABOUTME: Distinguishes clean, infected, skipped, false-positive and failed lookups

package types

// Verdict represents the outcome of checking one file against the signature store.
type Verdict int

const (
	// VerdictClean indicates the digest was not found in the store.
	VerdictClean Verdict = iota
	// VerdictInfected indicates the digest matches a known signature.
	VerdictInfected
	// VerdictSkipped indicates the file was not hashed (empty or unreadable).
	VerdictSkipped
	// VerdictFalsePositive indicates the digest is on the false-positive list.
	VerdictFalsePositive
	// VerdictQueryFailed indicates the store lookup itself failed.
	VerdictQueryFailed
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictClean:
		return "clean"
	case VerdictInfected:
		return "infected"
	case VerdictSkipped:
		return "skipped"
	case VerdictFalsePositive:
		return "false-positive"
	case VerdictQueryFailed:
		return "query-failed"
	default:
		return "unknown"
	}
}

// IsInfected returns true if the verdict indicates a match.
func (v Verdict) IsInfected() bool {
	return v == VerdictInfected
}

// WasHashed returns true if the file content was digested and looked up.
// A false positive is digested but never looked up, so it counts as skipped.
func (v Verdict) WasHashed() bool {
	return v == VerdictClean || v == VerdictInfected || v == VerdictQueryFailed
}
