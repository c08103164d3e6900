// ABOUTME: Source interface for digest feeds consumed by the signature store
// ABOUTME: Defines parse statistics and the progress adapter shared by all feeds

package feeds

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Source streams the complete digest set of one feed.
type Source interface {
	// Name returns the name of the feed.
	Name() string

	// Stream calls emit once per digest and reports completion
	// fractions in [0, 1]. Any error aborts the stream.
	Stream(ctx context.Context, emit func(types.Digest) error, progress func(fraction float64)) error
}

// ParseStats contains statistics about a parsed hash list.
type ParseStats struct {
	// Lines is the number of lines read, including comments.
	Lines int64

	// Digests is the number of digests emitted.
	Digests int64

	// Invalid is the number of non-comment lines that did not hold a digest.
	Invalid int64
}

// Add accumulates other into s.
func (s *ParseStats) Add(other ParseStats) {
	s.Lines += other.Lines
	s.Digests += other.Digests
	s.Invalid += other.Invalid
}

// progressReader reports the fraction of size bytes read so far.
type progressReader struct {
	r      io.Reader
	size   int64
	read   atomic.Int64
	report func(fraction float64)
}

// newProgressReader wraps r. Progress is only reported when size is known.
func newProgressReader(r io.Reader, size int64, report func(float64)) *progressReader {
	return &progressReader{r: r, size: size, report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.size > 0 && p.report != nil {
		read := p.read.Add(int64(n))
		fraction := float64(read) / float64(p.size)
		if fraction > 1 {
			fraction = 1
		}
		p.report(fraction)
	}
	return n, err
}

// report calls fn if it is set.
func report(fn func(float64), fraction float64) {
	if fn != nil {
		fn(fraction)
	}
}

// scaled maps a [0, 1] fraction into [lo, hi] of parent.
func scaled(parent func(float64), lo, hi float64) func(float64) {
	return func(fraction float64) {
		report(parent, lo+(hi-lo)*fraction)
	}
}
