// ABOUTME: Percentage tracker that emits rounded progress only when it changes
// ABOUTME: Keeps events within one job non-decreasing and capped at 100

package progress

import (
	"math"
)

// Tracker converts a done/total byte count into whole-percent events.
// It is not safe for concurrent use; each job owns one.
type Tracker struct {
	sink  Sink
	total int64
	done  int64
	last  float64
}

// NewTracker creates a tracker for total units reporting to sink.
func NewTracker(sink Sink, total int64) *Tracker {
	return &Tracker{
		sink:  OrDiscard(sink),
		total: total,
		last:  -1,
	}
}

// Advance adds n completed units and emits the rounded percentage if it changed.
// It returns the current percentage.
func (t *Tracker) Advance(n int64) float64 {
	t.done += n
	pct := Percent(t.done, t.total)
	if pct != t.last {
		t.last = pct
		t.sink.Send(pct)
	}
	return pct
}

// Complete marks every unit done and emits 100 if it was not yet reported.
// Used when files shrank between the size pass and the walk.
func (t *Tracker) Complete() float64 {
	if t.done < t.total {
		t.done = t.total
	}
	return t.Advance(0)
}

// Last returns the last emitted percentage, or -1 if none was emitted.
func (t *Tracker) Last() float64 {
	return t.last
}

// Done returns the completed unit count.
func (t *Tracker) Done() int64 {
	return t.done
}

// Percent returns round(done/total*100) clamped to [0, 100].
func Percent(done, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := math.Round(float64(done) / float64(total) * 100)
	return math.Max(0, math.Min(100, pct))
}
