// ABOUTME: Tests for Verdict and ScanReport types
// ABOUTME: Validates verdict strings and that counters partition visited files

package types

import (
	"testing"
	"time"
)

func TestVerdict_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		verdict Verdict
		want    string
	}{
		{VerdictClean, "clean"},
		{VerdictInfected, "infected"},
		{VerdictSkipped, "skipped"},
		{VerdictFalsePositive, "false-positive"},
		{VerdictQueryFailed, "query-failed"},
		{Verdict(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			if got := tt.verdict.String(); got != tt.want {
				t.Errorf("Verdict.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanStats_Record(t *testing.T) {
	t.Parallel()

	var s ScanStats
	verdicts := []Verdict{
		VerdictClean, VerdictClean, VerdictInfected,
		VerdictSkipped, VerdictFalsePositive, VerdictQueryFailed,
	}
	for _, v := range verdicts {
		s.Record(v)
	}

	if s.Files != int64(len(verdicts)) {
		t.Errorf("Files = %d, want %d", s.Files, len(verdicts))
	}
	if s.Hashed+s.Skipped != s.Files {
		t.Errorf("Hashed(%d) + Skipped(%d) != Files(%d)", s.Hashed, s.Skipped, s.Files)
	}
	if s.Hashed != 4 {
		t.Errorf("Hashed = %d, want 4", s.Hashed)
	}
	if s.Matched != 1 {
		t.Errorf("Matched = %d, want 1", s.Matched)
	}
	if s.FalsePositives != 1 {
		t.Errorf("FalsePositives = %d, want 1", s.FalsePositives)
	}
	if s.QueryFailures != 1 {
		t.Errorf("QueryFailures = %d, want 1", s.QueryFailures)
	}
}

func TestVerdict_WasHashed(t *testing.T) {
	t.Parallel()

	if VerdictFalsePositive.WasHashed() {
		t.Error("false positives count as skipped")
	}
	if !VerdictQueryFailed.WasHashed() {
		t.Error("query failures count as hashed")
	}
}

func TestScanReport_Verdicts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		matches        []Match
		failures       []string
		wantClean      bool
		wantInfected   bool
		wantIncomplete bool
	}{
		{name: "empty", wantClean: true},
		{name: "match", matches: []Match{{Path: "/root/a"}}, wantInfected: true},
		{name: "failed lookup", failures: []string{"/root/b"}, wantIncomplete: true},
		{name: "both", matches: []Match{{Path: "/root/a"}}, failures: []string{"/root/b"}, wantInfected: true, wantIncomplete: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewScanReport("/root")
			r.Matches = append(r.Matches, tt.matches...)
			r.QueryFailures = tt.failures

			if r.IsClean() != tt.wantClean || r.Infected() != tt.wantInfected || r.Incomplete() != tt.wantIncomplete {
				t.Errorf("IsClean=%v Infected=%v Incomplete=%v, want %v %v %v",
					r.IsClean(), r.Infected(), r.Incomplete(), tt.wantClean, tt.wantInfected, tt.wantIncomplete)
			}
		})
	}
}

func TestScanReport_MatchedPaths(t *testing.T) {
	t.Parallel()

	r := NewScanReport("/root")
	if !r.IsClean() {
		t.Error("new report should be clean")
	}

	r.Matches = append(r.Matches,
		Match{Path: "/root/a"},
		Match{Path: "/root/b"},
	)

	got := r.MatchedPaths()
	if len(got) != 2 || got[0] != "/root/a" || got[1] != "/root/b" {
		t.Errorf("MatchedPaths() = %v, want [/root/a /root/b]", got)
	}
	if r.IsClean() {
		t.Error("report with matches should not be clean")
	}
}

func TestScanReport_Duration(t *testing.T) {
	t.Parallel()

	r := NewScanReport("/")
	r.CompletedAt = r.StartedAt.Add(3 * time.Second)
	if got := r.Duration(); got != 3*time.Second {
		t.Errorf("Duration() = %v, want 3s", got)
	}
}
