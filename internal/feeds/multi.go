// ABOUTME: Composite source concatenating several feeds into one digest stream
// ABOUTME: Fails fast on the first feed error and splits progress evenly

package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// MultiSource streams each of its sources in order.
type MultiSource struct {
	sources []Source
	closers []io.Closer
}

// NewMultiSource creates a composite of sources.
func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

// Name joins the names of the sources with "+".
func (m *MultiSource) Name() string {
	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Sources returns the underlying sources.
func (m *MultiSource) Sources() []Source {
	return m.sources
}

// Stream streams every source. The first error aborts the whole stream.
func (m *MultiSource) Stream(ctx context.Context, emit func(types.Digest) error, progress func(float64)) error {
	if len(m.sources) == 0 {
		return errors.New("no feed sources configured")
	}

	n := float64(len(m.sources))
	for i, s := range m.sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Stream(ctx, emit, scaled(progress, float64(i)/n, float64(i+1)/n)); err != nil {
			return fmt.Errorf("feed %s: %w", s.Name(), err)
		}
	}

	report(progress, 1)
	return nil
}

// Close releases resources held on behalf of the sources.
func (m *MultiSource) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
