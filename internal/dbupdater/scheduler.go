// ABOUTME: Weekly update scheduler invoking the signature refresh exactly once per fire
// ABOUTME: Supports live schedule replacement, manual triggers and per-run logs

package dbupdater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/runlog"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// ErrAlreadyRunning is returned when Run is called on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// SchedulerConfig configures the update scheduler.
type SchedulerConfig struct {
	// Refresher is invoked once per fire.
	Refresher Refresher

	// Schedule is the initial schedule.
	Schedule types.UpdateSchedule

	// LogDir receives per-run update logs. Empty disables them.
	LogDir string

	// Progress receives refresh percentages. Nil discards them.
	Progress progress.Sink

	// OnRefresh is called after every run with its outcome.
	OnRefresh func(ctx context.Context, result *types.RefreshResult, err error)

	// Audit is optional.
	Audit *observability.AuditLogger

	// Metrics is optional.
	Metrics *observability.ScanMetrics

	// Logger for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// Scheduler runs refreshes on a weekly schedule.
type Scheduler struct {
	config SchedulerConfig
	status *StatusTracker
	logger *slog.Logger

	mu       sync.Mutex
	schedule types.UpdateSchedule

	reload  chan struct{}
	trigger chan struct{}
	running atomic.Bool

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler creates a scheduler. The schedule must be valid.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Refresher == nil {
		return nil, errors.New("scheduler requires a refresher")
	}
	if err := cfg.Schedule.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		config:   cfg,
		status:   NewStatusTracker(),
		logger:   cfg.Logger,
		schedule: cfg.Schedule,
		reload:   make(chan struct{}, 1),
		trigger:  make(chan struct{}, 1),
		now:      time.Now,
		after:    time.After,
	}, nil
}

// Status returns the status tracker.
func (s *Scheduler) Status() *StatusTracker {
	return s.status
}

// Schedule returns the active schedule.
func (s *Scheduler) Schedule() types.UpdateSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// SetSchedule replaces the schedule. A running loop recomputes its next
// fire time immediately.
func (s *Scheduler) SetSchedule(sched types.UpdateSchedule) error {
	if err := sched.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.mu.Lock()
	changed := s.schedule != sched
	s.schedule = sched
	s.mu.Unlock()

	if changed {
		s.logger.Info("update schedule changed", slog.String("schedule", sched.String()))
		select {
		case s.reload <- struct{}{}:
		default:
		}
	}
	return nil
}

// Trigger asks the running loop for a manual refresh. Triggers made while
// one is already pending coalesce.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx ends, refreshing at every scheduled instant.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	s.logger.InfoContext(ctx, "update scheduler started", slog.String("schedule", s.Schedule().String()))

	// lastFired is the wall-clock slot of the last scheduled run. Timers
	// follow the monotonic clock, so after a fire the wall clock may still
	// read earlier than that slot, or be stepped back behind it.
	var lastFired time.Time
	for {
		sched := s.Schedule()
		now := s.now()

		from := now
		if from.Before(lastFired) {
			from = lastFired
		}

		var fire <-chan time.Time
		next, ok := sched.Next(from)
		if ok {
			fire = s.after(next.Sub(now))
			s.logger.DebugContext(ctx, "next update scheduled", slog.Time("at", next))
		} else {
			next = time.Time{}
		}
		s.status.SetSchedule(sched, next)

		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "update scheduler stopped")
			return nil
		case <-s.reload:
		case <-s.trigger:
			s.logger.InfoContext(ctx, "manual update triggered")
			s.RunNow(ctx, TriggerManual, s.config.Progress)
		case <-fire:
			lastFired = next
			s.RunNow(ctx, TriggerScheduled, s.config.Progress)
		}
	}
}

// RunNow performs one refresh on the caller's goroutine, reporting
// progress to sink.
func (s *Scheduler) RunNow(ctx context.Context, trigger Trigger, sink progress.Sink) (*types.RefreshResult, error) {
	ctx, id := observability.EnsureCorrelationID(ctx)
	ctx, span := observability.StartSpan(ctx, "dbupdater.run")
	defer span.End()
	span.SetAttributes(attribute.String("update.trigger", string(trigger)))

	logger := s.logger.With(slog.String("trigger", string(trigger)), slog.String("run_id", id.String()))
	start := s.now()

	var rl *runlog.Log
	if s.config.LogDir != "" {
		var err error
		rl, err = runlog.Create(s.config.LogDir, runlog.KindUpdates, start)
		if err != nil {
			logger.WarnContext(ctx, "failed to open update log", slog.String("error", err.Error()))
		} else {
			defer rl.Close()
			s.writeLog(ctx, rl.Started())
		}
	}

	s.status.Begin()
	logger.InfoContext(ctx, "DB update executed")

	result, err := s.config.Refresher.RefreshWithProgress(ctx, sink)
	if m := s.config.Metrics; m != nil {
		m.RecordRefresh(s.now().Sub(start), err == nil)
	}

	if err != nil {
		s.status.RecordFailure(err)
		observability.FailSpan(span, err)
		logger.ErrorContext(ctx, "DB update failed", slog.Any("error", err))
		if rl != nil {
			s.writeLog(ctx, rl.Failed(err.Error()))
		}
		if s.config.Audit != nil {
			s.config.Audit.LogDBUpdate(ctx, string(trigger), false, err.Error())
		}
	} else {
		s.status.RecordSuccess(result)
		span.SetAttributes(attribute.Int64("update.count", result.Count))
		logger.InfoContext(ctx, "DB update finished",
			slog.Int64("count", result.Count),
			slog.Int64("added", result.Added),
			slog.Int64("removed", result.Removed),
			slog.Duration("duration", result.Duration),
		)
		if rl != nil {
			s.writeLog(ctx, rl.Finished(result.String()))
		}
		if s.config.Audit != nil {
			s.config.Audit.LogDBUpdate(ctx, string(trigger), true, result.String())
		}
	}

	if s.config.OnRefresh != nil {
		s.config.OnRefresh(ctx, result, err)
	}
	return result, err
}

func (s *Scheduler) writeLog(ctx context.Context, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "failed to write update log", slog.String("error", err.Error()))
	}
}
