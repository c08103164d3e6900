// ABOUTME: Tests for the weekly update scheduler using a fake clock
// ABOUTME: Validates single invocation per fire, run logs, reloads and triggers

package dbupdater

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/runlog"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// fakeClock hands out timers the test fires by hand.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers chan fakeTimer
}

type fakeTimer struct {
	d  time.Duration
	ch chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, timers: make(chan fakeTimer, 16)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.timers <- fakeTimer{d: d, ch: ch}
	return ch
}

// nextTimer waits for the scheduler to arm a timer.
func (c *fakeClock) nextTimer(t *testing.T) fakeTimer {
	t.Helper()
	select {
	case ft := <-c.timers:
		return ft
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not arm a timer")
		return fakeTimer{}
	}
}

// countingRefresher records invocations.
type countingRefresher struct {
	calls atomic.Int32
	err   error
}

func (r *countingRefresher) RefreshWithProgress(_ context.Context, sink progress.Sink) (*types.RefreshResult, error) {
	n := r.calls.Add(1)
	progress.OrDiscard(sink).Send(100)
	if r.err != nil {
		return nil, r.err
	}
	return &types.RefreshResult{Count: int64(n) * 100, Generation: uint64(n), CompletedAt: time.Now()}, nil
}

func newTestScheduler(t *testing.T, r Refresher, sched types.UpdateSchedule, clock *fakeClock, dir string) (*Scheduler, chan error) {
	t.Helper()

	results := make(chan error, 16)
	s, err := NewScheduler(SchedulerConfig{
		Refresher: r,
		Schedule:  sched,
		LogDir:    dir,
		Metrics:   observability.NewScanMetrics(),
		OnRefresh: func(_ context.Context, _ *types.RefreshResult, err error) {
			results <- err
		},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.now = clock.Now
	s.after = clock.After
	return s, results
}

func waitResult(t *testing.T, results chan error) error {
	t.Helper()
	select {
	case err := <-results:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("refresh did not run")
		return nil
	}
}

func startRun(t *testing.T, s *Scheduler) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestNewScheduler_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewScheduler(SchedulerConfig{}); err == nil {
		t.Error("NewScheduler() without refresher should fail")
	}
	_, err := NewScheduler(SchedulerConfig{
		Refresher: &countingRefresher{},
		Schedule:  types.UpdateSchedule{Weekday: 9, Hour: 22},
	})
	if err == nil {
		t.Error("NewScheduler() with weekday 9 should fail")
	}
}

func TestScheduler_FiresOncePerSlot(t *testing.T) {
	t.Parallel()

	// Saturday 10:00, schedule Sunday 22:00.
	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.Local)
	clock := newFakeClock(start)
	refresher := &countingRefresher{}
	dir := t.TempDir()
	s, results := newTestScheduler(t, refresher, types.UpdateSchedule{Weekday: 0, Hour: 22}, clock, dir)
	startRun(t, s)

	ft := clock.nextTimer(t)
	fireAt := time.Date(2026, 3, 8, 22, 0, 0, 0, time.Local)
	if ft.d != fireAt.Sub(start) {
		t.Fatalf("first timer = %v, want %v", ft.d, fireAt.Sub(start))
	}
	if got := s.Status().Get().NextScheduled; !got.Equal(fireAt) {
		t.Errorf("NextScheduled = %v, want %v", got, fireAt)
	}

	clock.set(fireAt)
	ft.ch <- fireAt
	if err := waitResult(t, results); err != nil {
		t.Fatalf("refresh error = %v", err)
	}

	// The next slot is a week later.
	ft = clock.nextTimer(t)
	if want := fireAt.AddDate(0, 0, 7).Sub(fireAt); ft.d != want {
		t.Errorf("second timer = %v, want one week", ft.d)
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}

	entries, err := runlog.List(dir, runlog.KindUpdates)
	if err != nil || len(entries) != 1 {
		t.Fatalf("run logs = %v, %v; want one", entries, err)
	}
	lines, err := runlog.ReadLines(entries[0].Path)
	if err != nil {
		t.Fatalf("ReadLines() error = %v", err)
	}
	if len(lines) != 2 || !strings.HasSuffix(lines[0], " started") || !strings.Contains(lines[1], " finished count=100") {
		t.Errorf("run log = %q", lines)
	}

	st := s.Status().Get()
	if st.Status != StatusIdle || st.Count != 100 {
		t.Errorf("status = %+v", st)
	}
}

func TestScheduler_WallClockBehindFiredSlot(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.Local)
	clock := newFakeClock(start)
	refresher := &countingRefresher{}
	s, results := newTestScheduler(t, refresher, types.UpdateSchedule{Weekday: 0, Hour: 22}, clock, "")
	startRun(t, s)

	ft := clock.nextTimer(t)
	fireAt := time.Date(2026, 3, 8, 22, 0, 0, 0, time.Local)

	// The timer fires while the wall clock reads a minute before the slot.
	behind := fireAt.Add(-time.Minute)
	clock.set(behind)
	ft.ch <- behind
	if err := waitResult(t, results); err != nil {
		t.Fatalf("refresh error = %v", err)
	}

	ft = clock.nextTimer(t)
	if want := fireAt.AddDate(0, 0, 7).Sub(behind); ft.d != want {
		t.Errorf("re-armed timer = %v, want %v (the following week)", ft.d, want)
	}
	if got := s.Status().Get().NextScheduled; !got.Equal(fireAt.AddDate(0, 0, 7)) {
		t.Errorf("NextScheduled = %v, want %v", got, fireAt.AddDate(0, 0, 7))
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestScheduler_FailureIsLogged(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 8, 21, 0, 0, 0, time.Local)
	clock := newFakeClock(start)
	refresher := &countingRefresher{err: errors.New("feed virusshare: not found")}
	dir := t.TempDir()
	s, results := newTestScheduler(t, refresher, types.UpdateSchedule{Weekday: 0, Hour: 22}, clock, dir)
	startRun(t, s)

	ft := clock.nextTimer(t)
	if ft.d != time.Hour {
		t.Errorf("timer = %v, want 1h", ft.d)
	}
	clock.set(start.Add(time.Hour))
	ft.ch <- clock.Now()
	if err := waitResult(t, results); err == nil {
		t.Fatal("refresh should fail")
	}

	entries, _ := runlog.List(dir, runlog.KindUpdates)
	if len(entries) != 1 {
		t.Fatalf("run logs = %v, want one", entries)
	}
	lines, _ := runlog.ReadLines(entries[0].Path)
	if len(lines) != 2 || !strings.HasSuffix(lines[1], " error feed virusshare: not found") {
		t.Errorf("run log = %q", lines)
	}

	st := s.Status().Get()
	if st.Status != StatusFailed || st.LastError == "" {
		t.Errorf("status = %+v", st)
	}
}

func TestScheduler_DisabledWaitsForReload(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local) // Wednesday
	clock := newFakeClock(start)
	refresher := &countingRefresher{}
	s, results := newTestScheduler(t, refresher, types.UpdateSchedule{Weekday: types.ScheduleDisabled, Hour: 22}, clock, "")
	startRun(t, s)

	// No timer is armed while disabled.
	select {
	case ft := <-clock.timers:
		t.Fatalf("disabled schedule armed a %v timer", ft.d)
	case <-time.After(50 * time.Millisecond):
	}
	if got := s.Status().Get().Status; got != StatusDisabled {
		t.Errorf("status = %s, want disabled", got)
	}

	if err := s.SetSchedule(types.UpdateSchedule{Weekday: 3, Hour: 13}); err != nil {
		t.Fatalf("SetSchedule() error = %v", err)
	}
	ft := clock.nextTimer(t)
	if ft.d != time.Hour {
		t.Errorf("timer after reload = %v, want 1h", ft.d)
	}

	clock.set(start.Add(time.Hour))
	ft.ch <- clock.Now()
	if err := waitResult(t, results); err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestScheduler_TriggerRunsImmediately(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local))
	refresher := &countingRefresher{}
	s, results := newTestScheduler(t, refresher, types.UpdateSchedule{Weekday: 0, Hour: 22}, clock, "")
	startRun(t, s)

	clock.nextTimer(t)
	s.Trigger()
	if err := waitResult(t, results); err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	// The loop re-arms afterwards.
	clock.nextTimer(t)
	if got := refresher.calls.Load(); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestScheduler_RunTwice(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	s, _ := newTestScheduler(t, &countingRefresher{}, types.UpdateSchedule{Weekday: 0, Hour: 22}, clock, "")
	startRun(t, s)
	clock.nextTimer(t)

	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Now())
	s, _ := newTestScheduler(t, &countingRefresher{}, types.UpdateSchedule{Weekday: 0, Hour: 22}, clock, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	clock.nextTimer(t)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestScheduler_SetScheduleRejectsInvalid(t *testing.T) {
	t.Parallel()

	s, _ := newTestScheduler(t, &countingRefresher{}, types.UpdateSchedule{Weekday: 0, Hour: 22}, newFakeClock(time.Now()), "")
	if err := s.SetSchedule(types.UpdateSchedule{Weekday: 0, Hour: 24}); err == nil {
		t.Error("SetSchedule() with hour 24 should fail")
	}
	if got := s.Schedule(); got.Hour != 22 {
		t.Errorf("Schedule() = %+v, want unchanged", got)
	}
}

func TestScheduler_RunNowUsesGivenSink(t *testing.T) {
	t.Parallel()

	var got []float64
	sink := progress.SinkFunc(func(pct float64) { got = append(got, pct) })
	s, results := newTestScheduler(t, &countingRefresher{}, types.UpdateSchedule{Weekday: types.ScheduleDisabled}, newFakeClock(time.Now()), "")

	result, err := s.RunNow(context.Background(), TriggerManual, sink)
	if err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if result.Count != 100 {
		t.Errorf("Count = %d, want 100", result.Count)
	}
	if len(got) != 1 || got[0] != 100 {
		t.Errorf("progress = %v, want [100]", got)
	}
	if err := waitResult(t, results); err != nil {
		t.Errorf("OnRefresh error = %v", err)
	}
}
