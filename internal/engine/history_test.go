// ABOUTME: Tests for HistoryStore persisting scan jobs in BadgerDB
// ABOUTME: Validates save/get, status listing, root index, cleanup, and counts

package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/engine"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

func TestHistoryStore_SaveAndGet(t *testing.T) {
	t.Parallel()

	history := setupTestHistory(t)
	ctx := context.Background()

	job := types.NewJob("/home/user/Downloads", true)
	if err := history.Save(ctx, job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := history.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil")
	}
	if got.Root != job.Root || !got.StopOnFirstMatch || got.Status != types.JobStatusPending {
		t.Errorf("Get() = %+v, want saved job", got)
	}
}

func TestHistoryStore_Get_NotFound(t *testing.T) {
	t.Parallel()

	history := setupTestHistory(t)

	job, err := history.Get(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if job != nil {
		t.Error("Get() should return nil for nonexistent job")
	}
}

func TestHistoryStore_SaveUpdatesReport(t *testing.T) {
	t.Parallel()

	history := setupTestHistory(t)
	ctx := context.Background()

	job := types.NewJob("/srv", false)
	_ = history.Save(ctx, job)

	_ = job.Start()
	report := types.NewScanReport("/srv")
	report.Matches = append(report.Matches, types.Match{Path: "/srv/a.exe", Digest: "44d88612fea8a8f36de82e1278abb02f"})
	_ = job.Complete(report)
	if err := history.Save(ctx, job); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := history.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != types.JobStatusCompleted || !got.Infected() {
		t.Errorf("Get() = status %v infected %v, want completed and infected", got.Status, got.Infected())
	}
	if got.Report.Matches[0].Path != "/srv/a.exe" {
		t.Errorf("match path = %q", got.Report.Matches[0].Path)
	}
}

func TestHistoryStore_ListNewestFirst(t *testing.T) {
	t.Parallel()

	history := setupTestHistory(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		job := types.NewJob("/data", false)
		job.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		_ = history.Save(ctx, job)
		ids = append(ids, job.ID)
	}

	jobs, err := history.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("List() returned %d jobs, want 3", len(jobs))
	}
	if jobs[0].ID != ids[2] || jobs[2].ID != ids[0] {
		t.Error("List() should return newest first")
	}

	limited, _ := history.List(ctx, 2)
	if len(limited) != 2 {
		t.Errorf("List(limit=2) returned %d jobs", len(limited))
	}
}

func TestHistoryStore_ListByStatus(t *testing.T) {
	t.Parallel()

	history := setupTestHistory(t)
	ctx := context.Background()

	pending := types.NewJob("/a", false)
	running := types.NewJob("/b", false)
	_ = running.Start()
	failed := types.NewJob("/c", false)
	_ = failed.Fail("path does not exist")

	for _, j := range []*types.Job{pending, running, failed} {
		_ = history.Save(ctx, j)
	}

	got, err := history.List(ctx, 0, types.JobStatusFailed)
	if err != nil {
		t.Fatalf("List(failed) error = %v", err)
	}
	if len(got) != 1 || got[0].ID != failed.ID {
		t.Errorf("List(failed) = %v, want only the failed job", got)
	}
}

func TestHistoryStore_LatestForRoot(t *testing.T) {
	t.Parallel()

	history := setupTestHistory(t)
	ctx := context.Background()

	first := types.NewJob("/mnt/usb", false)
	second := types.NewJob("/mnt/usb", true)
	_ = history.Save(ctx, first)
	_ = history.Save(ctx, second)

	got, err := history.LatestForRoot(ctx, "/mnt/usb")
	if err != nil {
		t.Fatalf("LatestForRoot() error = %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Errorf("LatestForRoot() = %v, want second job", got)
	}

	none, err := history.LatestForRoot(ctx, "/never")
	if err != nil || none != nil {
		t.Errorf("LatestForRoot(/never) = %v, %v; want nil, nil", none, err)
	}

	// Deleting the indexed job clears the index.
	if err := history.Delete(ctx, second.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = history.LatestForRoot(ctx, "/mnt/usb")
	if got != nil {
		t.Errorf("LatestForRoot() after delete = %v, want nil", got)
	}
}

func TestHistoryStore_Cleanup(t *testing.T) {
	t.Parallel()

	history := setupTestHistory(t)
	ctx := context.Background()

	oldJob := types.NewJob("/old", false)
	_ = oldJob.Start()
	_ = oldJob.Complete(types.NewScanReport("/old"))
	oldTime := time.Now().Add(-48 * time.Hour)
	oldJob.CompletedAt = &oldTime
	_ = history.Save(ctx, oldJob)

	recentJob := types.NewJob("/recent", false)
	_ = recentJob.Start()
	_ = recentJob.Complete(types.NewScanReport("/recent"))
	_ = history.Save(ctx, recentJob)

	// Running jobs are never cleaned up.
	runningJob := types.NewJob("/running", false)
	_ = runningJob.Start()
	_ = history.Save(ctx, runningJob)

	deleted, err := history.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup() deleted %d jobs, want 1", deleted)
	}

	count, err := history.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Count() = %d, want 2", count)
	}
}

func TestDigestCache(t *testing.T) {
	t.Parallel()

	cache := engine.NewDigestCache(newTestStore(t), time.Hour)
	ctx := context.Background()
	mtime := time.Date(2026, 9, 30, 8, 0, 0, 0, time.UTC)
	d := digestFromInt(42)

	if _, ok, err := cache.Get(ctx, "/bin/tool", 100, mtime); err != nil || ok {
		t.Fatalf("Get() on empty cache = %v, %v", ok, err)
	}

	if err := cache.Put(ctx, "/bin/tool", 100, mtime, d); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := cache.Get(ctx, "/bin/tool", 100, mtime)
	if err != nil || !ok || got != d {
		t.Errorf("Get() = %v, %v, %v; want %v, true, nil", got, ok, err, d)
	}

	// A changed size or mtime invalidates the entry.
	if _, ok, _ := cache.Get(ctx, "/bin/tool", 101, mtime); ok {
		t.Error("Get() should miss when size changed")
	}
	if _, ok, _ := cache.Get(ctx, "/bin/tool", 100, mtime.Add(time.Second)); ok {
		t.Error("Get() should miss when mtime changed")
	}

	n, _ := cache.Count(ctx)
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	n, _ = cache.Count(ctx)
	if n != 0 {
		t.Errorf("Count() after Clear = %d, want 0", n)
	}
}

// setupTestHistory creates an in-memory history store for testing.
func setupTestHistory(t *testing.T) *engine.HistoryStore {
	t.Helper()
	return engine.NewHistoryStore(newTestStore(t))
}
