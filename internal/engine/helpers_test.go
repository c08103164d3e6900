// ABOUTME: Shared fixtures for engine tests
// ABOUTME: Provides deterministic digests and an in-memory feed source

package engine_test

import (
	"context"
	"crypto/md5"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/hikmaai-io/hikmaai-warden/internal/engine"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// digestFromInt returns a deterministic valid digest for i.
func digestFromInt(i int) types.Digest {
	sum := md5.Sum([]byte(fmt.Sprintf("sample-%d", i)))
	return types.DigestFromSum(sum[:])
}

func digestRange(from, to int) []types.Digest {
	out := make([]types.Digest, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, digestFromInt(i))
	}
	return out
}

// fakeSource is a FeedSource serving a fixed digest list.
type fakeSource struct {
	digests atomic.Pointer[[]types.Digest]

	// failAfter aborts the stream after this many digests; negative never fails.
	failAfter atomic.Int64

	// block, if set, is waited on before streaming.
	block chan struct{}

	calls atomic.Int32
}

func newFakeSource(digests []types.Digest) *fakeSource {
	s := &fakeSource{}
	s.set(digests)
	s.failAfter.Store(-1)
	return s
}

func (s *fakeSource) set(digests []types.Digest) {
	s.digests.Store(&digests)
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Stream(ctx context.Context, emit func(types.Digest) error, progress func(float64)) error {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	digests := *s.digests.Load()
	failAfter := s.failAfter.Load()
	for i, d := range digests {
		if failAfter >= 0 && int64(i) >= failAfter {
			return fmt.Errorf("connection reset after %d records", i)
		}
		if err := emit(d); err != nil {
			return err
		}
		progress(float64(i+1) / float64(len(digests)))
	}
	return nil
}

// newTestSignatureStore opens an in-memory store over source.
func newTestSignatureStore(t *testing.T, source engine.FeedSource) *engine.SignatureStore {
	t.Helper()

	s, err := engine.Open(engine.Config{
		Store:  engine.StoreConfig{InMemory: true},
		Bloom:  engine.BloomConfig{ExpectedItems: 10000, FalsePositiveRate: 0.01},
		Source: source,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func mustContain(t *testing.T, s *engine.SignatureStore, d types.Digest, want bool) {
	t.Helper()

	got, err := s.Contains(context.Background(), d)
	if err != nil {
		t.Fatalf("Contains(%s) error = %v", d, err)
	}
	if got != want {
		t.Errorf("Contains(%s) = %v, want %v", d, got, want)
	}
}
