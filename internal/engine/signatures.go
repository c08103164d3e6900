// ABOUTME: SignatureStore combining a Bloom filter and BadgerDB generations
// ABOUTME: Serves concurrent membership checks and atomic whole-set refreshes

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// FeedSource streams the complete digest set of an external feed.
type FeedSource interface {
	// Name identifies the feed in logs and results.
	Name() string

	// Stream calls emit once per digest and reports completion
	// fractions in [0, 1]. Any error aborts the refresh.
	Stream(ctx context.Context, emit func(types.Digest) error, progress func(fraction float64)) error
}

// Refresh progress milestones, in percent.
const (
	refreshStreamedPct = 90
	refreshDiffedPct   = 95
)

// Config holds configuration for the signature store.
type Config struct {
	// BadgerDB store configuration.
	Store StoreConfig

	// Bloom filter configuration.
	Bloom BloomConfig

	// Source is the feed read by Refresh.
	Source FeedSource

	// Progress receives refresh percentages. Nil discards them.
	Progress progress.Sink

	// Logger for store operations. Nil uses slog.Default().
	Logger *slog.Logger
}

// Stats contains statistics about the signature store.
type Stats struct {
	Meta Meta

	// Database size in bytes.
	StoreSizeBytes int64

	// Bloom filter statistics.
	Bloom BloomStats

	// Lookup statistics.
	TotalLookups    int64
	BloomRejections int64
	StoreLookups    int64
	Matches         int64
	QueryFailures   int64
}

// snapshot is the unit readers see: a generation and its filter.
type snapshot struct {
	meta  Meta
	bloom *BloomFilter
}

// SignatureStore is the durable set of known-malicious digests.
type SignatureStore struct {
	store  *Store
	config Config
	logger *slog.Logger

	// mu guards snap and closed. Lookups hold it shared for their
	// whole duration so a generation is never dropped under them.
	mu     sync.RWMutex
	snap   snapshot
	closed bool

	refreshMu sync.Mutex

	totalLookups    atomic.Int64
	bloomRejections atomic.Int64
	storeLookups    atomic.Int64
	matches         atomic.Int64
	queryFailures   atomic.Int64
}

// Open opens or initialises the signature store.
func Open(cfg Config) (*SignatureStore, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Bloom = cfg.Bloom.withDefaults()
	cfg.Progress = progress.OrDiscard(cfg.Progress)

	store, err := NewStore(cfg.Store)
	if err != nil {
		return nil, storeErr(KindUnavailable, "open", err)
	}

	meta, err := store.ReadMeta()
	if err != nil {
		store.Close()
		return nil, storeErr(KindUnavailable, "read metadata", err)
	}

	s := &SignatureStore{
		store:  store,
		config: cfg,
		logger: logger.With("component", "signature_store"),
	}

	// Drop generations left behind by an interrupted refresh.
	stale := []uint64{meta.Generation + 1}
	if meta.Generation > 1 {
		stale = append(stale, meta.Generation-1)
	}
	for _, gen := range stale {
		if err := store.DropGeneration(gen); err != nil {
			s.logger.Warn("failed to drop stale generation", "generation", gen, "error", err)
		}
	}

	bf, err := s.loadBloom(context.Background(), meta)
	if err != nil {
		store.Close()
		return nil, storeErr(KindUnavailable, "load bloom filter", err)
	}
	s.snap = snapshot{meta: meta, bloom: bf}

	s.logger.Info("signature store opened",
		"path", cfg.Store.Path,
		"generation", meta.Generation,
		"entries", meta.EntryCount,
		"last_refresh", meta.LastRefreshString(),
	)

	return s, nil
}

// loadBloom reads the persisted filter of the active generation,
// rebuilding it from the database if the file is missing or unreadable.
func (s *SignatureStore) loadBloom(ctx context.Context, meta Meta) (*BloomFilter, error) {
	if !s.config.Store.InMemory && meta.Generation > 0 {
		path := bloomPath(s.config.Store.Path, meta.Generation)
		bf, err := LoadBloomFilter(path, s.config.Bloom)
		if err == nil {
			return bf, nil
		}
		s.logger.Warn("rebuilding bloom filter", "path", path, "error", err)
	}

	bf := NewBloomFilter(s.bloomConfigFor(meta.EntryCount))
	if meta.Generation == 0 {
		return bf, nil
	}

	err := s.store.IterateGeneration(ctx, meta.Generation, func(d types.Digest) error {
		bf.Add(d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.saveBloom(meta.Generation, bf)
	return bf, nil
}

// bloomConfigFor sizes a filter for at least n items.
func (s *SignatureStore) bloomConfigFor(n int64) BloomConfig {
	cfg := s.config.Bloom
	if want := uint(n + n/10); want > cfg.ExpectedItems {
		cfg.ExpectedItems = want
	}
	return cfg
}

func (s *SignatureStore) saveBloom(gen uint64, bf *BloomFilter) {
	if s.config.Store.InMemory {
		return
	}
	path := bloomPath(s.config.Store.Path, gen)
	if err := bf.SaveToFile(path); err != nil {
		s.logger.Warn("failed to save bloom filter", "path", path, "error", err)
	}
}

// Close closes the store. Later calls return KindUnavailable errors.
func (s *SignatureStore) Close() error {
	// Wait for a running refresh.
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.store.Close()
}

// Contains reports whether d is in the active digest set.
// It is safe for concurrent use and never observes a partial refresh.
func (s *SignatureStore) Contains(ctx context.Context, d types.Digest) (bool, error) {
	s.totalLookups.Add(1)

	if err := ctx.Err(); err != nil {
		s.queryFailures.Add(1)
		return false, storeErr(KindQueryFailed, "contains", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.queryFailures.Add(1)
		return false, storeErr(KindUnavailable, "contains", errors.New("store is closed"))
	}

	snap := s.snap
	if snap.meta.Generation == 0 {
		return false, nil
	}

	// Fast rejection.
	if !snap.bloom.Test(d) {
		s.bloomRejections.Add(1)
		return false, nil
	}

	s.storeLookups.Add(1)
	found, err := s.store.Has(snap.meta.Generation, d)
	if err != nil {
		s.queryFailures.Add(1)
		return false, storeErr(KindQueryFailed, "contains", err)
	}
	if found {
		s.matches.Add(1)
	}
	return found, nil
}

// Meta returns the metadata of the active generation.
func (s *SignatureStore) Meta() Meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.meta
}

// Refresh replaces the digest set with the configured feed's content,
// reporting progress to the configured sink.
func (s *SignatureStore) Refresh(ctx context.Context) (*types.RefreshResult, error) {
	return s.RefreshWithProgress(ctx, s.config.Progress)
}

// RefreshWithProgress is Refresh reporting to sink instead.
//
// The new generation is written beside the active one and becomes visible
// in a single metadata transaction followed by a snapshot swap. On any
// failure the partial generation is dropped and the store is unchanged.
func (s *SignatureStore) RefreshWithProgress(ctx context.Context, sink progress.Sink) (*types.RefreshResult, error) {
	if !s.refreshMu.TryLock() {
		return nil, storeErr(KindRefreshFailed, "refresh", ErrRefreshInProgress)
	}
	defer s.refreshMu.Unlock()

	if s.config.Source == nil {
		return nil, storeErr(KindRefreshFailed, "refresh", errors.New("no feed source configured"))
	}

	s.mu.RLock()
	closed, oldMeta := s.closed, s.snap.meta
	s.mu.RUnlock()
	if closed {
		return nil, storeErr(KindUnavailable, "refresh", errors.New("store is closed"))
	}

	ctx, span := observability.StartSpan(ctx, "engine.refresh")
	defer span.End()
	span.SetAttributes(
		attribute.String("feed.source", s.config.Source.Name()),
		attribute.Int64("store.generation", int64(oldMeta.Generation)),
	)

	start := time.Now()
	sink = progress.OrDiscard(sink)
	newGen := oldMeta.Generation + 1

	result, bf, err := s.buildGeneration(ctx, oldMeta, newGen, sink)
	if err != nil {
		if dropErr := s.store.DropGeneration(newGen); dropErr != nil {
			s.logger.Warn("failed to drop partial generation", "generation", newGen, "error", dropErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("signature refresh failed", "source", s.config.Source.Name(), "error", err)
		return nil, storeErr(KindRefreshFailed, "refresh", err)
	}

	newMeta := Meta{
		Generation:  newGen,
		EntryCount:  result.Count,
		LastRefresh: time.Now().UTC(),
	}
	if err := s.store.CommitMeta(newMeta); err != nil {
		if dropErr := s.store.DropGeneration(newGen); dropErr != nil {
			s.logger.Warn("failed to drop partial generation", "generation", newGen, "error", dropErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, storeErr(KindRefreshFailed, "commit", err)
	}

	// Readers switch to the new generation here.
	s.mu.Lock()
	s.snap = snapshot{meta: newMeta, bloom: bf}
	s.mu.Unlock()

	s.saveBloom(newGen, bf)
	if oldMeta.Generation > 0 {
		if err := s.store.DropGeneration(oldMeta.Generation); err != nil {
			s.logger.Warn("failed to drop previous generation", "generation", oldMeta.Generation, "error", err)
		}
		if !s.config.Store.InMemory {
			os.Remove(bloomPath(s.config.Store.Path, oldMeta.Generation))
		}
	}
	sink.Send(100)

	result.Generation = newGen
	result.Source = s.config.Source.Name()
	result.Duration = time.Since(start)
	result.CompletedAt = newMeta.LastRefresh

	span.SetAttributes(
		attribute.Int64("refresh.count", result.Count),
		attribute.Int64("refresh.added", result.Added),
		attribute.Int64("refresh.removed", result.Removed),
	)
	s.logger.Info("signature refresh completed",
		"source", result.Source,
		"generation", newGen,
		"count", result.Count,
		"added", result.Added,
		"removed", result.Removed,
		"duration", result.Duration,
	)

	return result, nil
}

// buildGeneration streams the feed into generation newGen and a fresh filter.
func (s *SignatureStore) buildGeneration(ctx context.Context, oldMeta Meta, newGen uint64, sink progress.Sink) (*types.RefreshResult, *BloomFilter, error) {
	// Leftovers from an interrupted refresh.
	if err := s.store.DropGeneration(newGen); err != nil {
		return nil, nil, err
	}

	bf := NewBloomFilter(s.bloomConfigFor(oldMeta.EntryCount))
	w := s.store.NewGenerationWriter(newGen)
	defer w.Cancel()

	streamProgress := progress.Scaled(sink, 0, refreshStreamedPct)
	emit := func(d types.Digest) error {
		if !d.IsValid() {
			return fmt.Errorf("invalid digest %q from %s", d, s.config.Source.Name())
		}
		if err := w.Put(d); err != nil {
			return err
		}
		bf.Add(d)
		return nil
	}

	if err := s.config.Source.Stream(ctx, emit, streamProgress); err != nil {
		return nil, nil, fmt.Errorf("reading feed %s: %w", s.config.Source.Name(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if w.Written() == 0 {
		return nil, nil, ErrEmptyFeed
	}
	if err := w.Flush(); err != nil {
		return nil, nil, err
	}
	sink.Send(refreshStreamedPct)

	diff, err := s.store.DiffGenerations(ctx, oldMeta.Generation, newGen)
	if err != nil {
		return nil, nil, err
	}
	sink.Send(refreshDiffedPct)

	return &types.RefreshResult{
		Count:   diff.Count,
		Added:   diff.Added,
		Removed: diff.Removed,
	}, bf, nil
}

// Stats returns statistics about the signature store.
func (s *SignatureStore) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storeErr(KindUnavailable, "stats", errors.New("store is closed"))
	}

	storeStats := s.store.Stats()
	return &Stats{
		Meta:            s.snap.meta,
		StoreSizeBytes:  storeStats.SizeBytes,
		Bloom:           s.snap.bloom.Stats(),
		TotalLookups:    s.totalLookups.Load(),
		BloomRejections: s.bloomRejections.Load(),
		StoreLookups:    s.storeLookups.Load(),
		Matches:         s.matches.Load(),
		QueryFailures:   s.queryFailures.Load(),
	}, nil
}

// Compact runs value log garbage collection.
func (s *SignatureStore) Compact() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storeErr(KindUnavailable, "compact", errors.New("store is closed"))
	}
	return s.store.Compact()
}

// Backend returns the underlying Badger store, shared with the history store.
func (s *SignatureStore) Backend() *Store {
	return s.store
}
