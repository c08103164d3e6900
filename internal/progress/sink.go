// ABOUTME: Send-side interface for progress percentages emitted by long-running jobs
// ABOUTME: Producers hold only a Sink; the receiving end stays with the caller

package progress

// Sink receives progress percentages in the range [0, 100].
// Send must not block and must not fail; a sink that can no longer
// deliver events drops them silently.
type Sink interface {
	Send(pct float64)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(pct float64)

// Send calls f(pct).
func (f SinkFunc) Send(pct float64) {
	f(pct)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(float64) {})

// OrDiscard returns s, or Discard if s is nil.
func OrDiscard(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return s
}

// Scaled maps fractions in [0, 1] from a sub-step onto [lo, hi] of parent.
// Used to fold per-source progress into a single refresh percentage.
func Scaled(parent Sink, lo, hi float64) func(fraction float64) {
	parent = OrDiscard(parent)
	return func(fraction float64) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		parent.Send(lo + (hi-lo)*fraction)
	}
}
