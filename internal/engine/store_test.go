// ABOUTME: Tests for the generation-keyed BadgerDB store
// ABOUTME: Covers writes, membership, generation diffs, drops, and metadata

package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/engine"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

func TestStore_GenerationWriteAndHas(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	w := store.NewGenerationWriter(1)
	for _, d := range digestRange(0, 10) {
		if err := w.Put(d); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	ok, err := store.Has(1, digestFromInt(3))
	if err != nil || !ok {
		t.Errorf("Has(1, d3) = %v, %v; want true, nil", ok, err)
	}

	// Generations are isolated.
	ok, err = store.Has(2, digestFromInt(3))
	if err != nil || ok {
		t.Errorf("Has(2, d3) = %v, %v; want false, nil", ok, err)
	}
}

func TestStore_DiffGenerations(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	write := func(gen uint64, digests []types.Digest) {
		w := store.NewGenerationWriter(gen)
		defer w.Cancel()
		for _, d := range digests {
			if err := w.Put(d); err != nil {
				t.Fatalf("Put() error: %v", err)
			}
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("Flush() error: %v", err)
		}
	}

	// Old: 0-9. New: 5-14, with a duplicate.
	write(1, digestRange(0, 10))
	write(2, append(digestRange(5, 15), digestFromInt(5)))

	diff, err := store.DiffGenerations(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("DiffGenerations() error: %v", err)
	}
	if diff.Count != 10 || diff.Added != 5 || diff.Removed != 5 {
		t.Errorf("DiffGenerations() = %+v, want Count=10 Added=5 Removed=5", diff)
	}

	// Against nothing, everything is added.
	diff, err = store.DiffGenerations(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("DiffGenerations() error: %v", err)
	}
	if diff.Count != 10 || diff.Added != 10 || diff.Removed != 0 {
		t.Errorf("DiffGenerations(0, 1) = %+v, want Count=10 Added=10 Removed=0", diff)
	}
}

func TestStore_DropGeneration(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	w := store.NewGenerationWriter(7)
	_ = w.Put(digestFromInt(1))
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if err := store.DropGeneration(7); err != nil {
		t.Fatalf("DropGeneration() error: %v", err)
	}

	ok, err := store.Has(7, digestFromInt(1))
	if err != nil || ok {
		t.Errorf("Has() after drop = %v, %v; want false, nil", ok, err)
	}
}

func TestStore_IterateGeneration(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	want := digestRange(0, 25)

	w := store.NewGenerationWriter(3)
	for _, d := range want {
		_ = w.Put(d)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	seen := make(map[types.Digest]bool)
	err := store.IterateGeneration(context.Background(), 3, func(d types.Digest) error {
		seen[d] = true
		return nil
	})
	if err != nil {
		t.Fatalf("IterateGeneration() error: %v", err)
	}
	if len(seen) != len(want) {
		t.Errorf("iterated %d digests, want %d", len(seen), len(want))
	}
	for _, d := range want {
		if !seen[d] {
			t.Errorf("digest %s not iterated", d)
		}
	}
}

func TestStore_Meta(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	m, err := store.ReadMeta()
	if err != nil {
		t.Fatalf("ReadMeta() error: %v", err)
	}
	if m.Generation != 0 || m.EntryCount != 0 || !m.LastRefresh.IsZero() {
		t.Errorf("fresh ReadMeta() = %+v, want zero", m)
	}
	if m.LastRefreshString() != "Never" {
		t.Errorf("LastRefreshString() = %q, want Never", m.LastRefreshString())
	}

	now := time.Date(2026, 10, 11, 22, 0, 0, 0, time.UTC)
	if err := store.CommitMeta(engine.Meta{Generation: 4, EntryCount: 1234, LastRefresh: now}); err != nil {
		t.Fatalf("CommitMeta() error: %v", err)
	}

	m, err = store.ReadMeta()
	if err != nil {
		t.Fatalf("ReadMeta() error: %v", err)
	}
	if m.Generation != 4 || m.EntryCount != 1234 || !m.LastRefresh.Equal(now) {
		t.Errorf("ReadMeta() = %+v, want generation 4, 1234 entries, %v", m, now)
	}
	if got := m.LastRefreshString(); got != "2026-10-11T22:00:00Z" {
		t.Errorf("LastRefreshString() = %q", got)
	}
}

func TestNewStore_RequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := engine.NewStore(engine.StoreConfig{}); err == nil {
		t.Error("NewStore() without path should fail")
	}
}

func newTestStore(t *testing.T) *engine.Store {
	t.Helper()

	store, err := engine.NewStore(engine.StoreConfig{InMemory: true})
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
