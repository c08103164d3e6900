// ABOUTME: Asynchronous scan entry point returning a one-shot outcome channel
// ABOUTME: Records each scan as a history job with a match log, audit trail and event

package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hikmaai-io/hikmaai-warden/internal/config"
	"github.com/hikmaai-io/hikmaai-warden/internal/events"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/runlog"
	"github.com/hikmaai-io/hikmaai-warden/internal/scanner"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// ScanOutcome is delivered once when a scan ends.
type ScanOutcome struct {
	// Matches are the infected paths in walk order.
	Matches []string `json:"matches"`

	// Report is nil when the scan failed before walking.
	Report *types.ScanReport `json:"report,omitempty"`

	// JobID identifies the history record.
	JobID string `json:"job_id"`

	// LogPath is the match log, empty when none was written.
	LogPath string `json:"log_path,omitempty"`

	// Err is the failure reason; empty on success.
	Err string `json:"error,omitempty"`
}

// StartScan scans root on a new goroutine. The returned channel yields
// exactly one outcome and is then closed. Progress goes to sink.
func (a *App) StartScan(ctx context.Context, root string, sink progress.Sink) <-chan ScanOutcome {
	out := make(chan ScanOutcome, 1)
	go func() {
		defer close(out)
		out <- a.scan(ctx, root, sink)
	}()
	return out
}

// Scan runs a scan on the caller's goroutine.
func (a *App) Scan(ctx context.Context, root string, sink progress.Sink) ScanOutcome {
	return a.scan(ctx, root, sink)
}

func (a *App) scan(ctx context.Context, root string, sink progress.Sink) ScanOutcome {
	ctx, _ = observability.EnsureCorrelationID(ctx)

	settings, err := a.settings.Load()
	if err != nil {
		a.logger.WarnContext(ctx, "using default settings", slog.String("error", err.Error()))
		settings = config.DefaultSettings()
	}
	return a.runJob(ctx, types.NewJob(root, settings.ObfuscatedMode), sink)
}

// runJob drives a pending job through the scanner.
func (a *App) runJob(ctx context.Context, job *types.Job, sink progress.Sink) ScanOutcome {
	outcome := ScanOutcome{JobID: job.ID, Matches: []string{}}

	if err := job.Start(); err != nil {
		a.logger.ErrorContext(ctx, "failed to start scan job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		outcome.Err = fmt.Sprintf("starting job: %v", err)
		return outcome
	}
	a.saveJob(ctx, job)
	a.audit.LogScanStarted(ctx, job.ID, job.Root, job.StopOnFirstMatch)

	report, err := a.scanner.SearchFiles(ctx, job.Root, job.StopOnFirstMatch, sink)
	if err != nil {
		err = job.Fail(err.Error())
	} else {
		err = job.Complete(report)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to finish scan job", slog.String("job_id", job.ID), slog.String("error", err.Error()))
		outcome.Err = fmt.Sprintf("finishing job: %v", err)
		return outcome
	}
	a.saveJob(ctx, job)

	outcome.LogPath = a.finishJob(ctx, job)
	if job.Status == types.JobStatusFailed {
		outcome.Err = job.Error
		return outcome
	}
	outcome.Report = report
	outcome.Matches = report.MatchedPaths()
	return outcome
}

// NewWorker returns a queued scan worker sharing the app's history,
// match logs, audit trail and events.
func (a *App) NewWorker(concurrency, queueSize int) *scanner.Worker {
	return scanner.NewWorker(scanner.WorkerConfig{
		Scanner:     a.scanner,
		Jobs:        a.history,
		Concurrency: concurrency,
		QueueSize:   queueSize,
		OnDone: func(ctx context.Context, job *types.Job) {
			a.finishJob(ctx, job)
		},
		Logger: a.logger,
	})
}

// finishJob records a terminal job and returns its match log path.
func (a *App) finishJob(ctx context.Context, job *types.Job) string {
	ctx, id := observability.EnsureCorrelationID(ctx)

	if job.Status == types.JobStatusFailed || job.Report == nil {
		a.audit.LogScanCompleted(ctx, job.ID, job.Root, 0, false, job.Error)
		a.publish(ctx, events.NewScanEvent(id.String(), job.ID, job.Root, nil, job.Error))
		return ""
	}

	report := job.Report
	var path string
	if a.cfg.LogDir != "" && report.Infected() {
		var err error
		if path, err = runlog.WriteScan(a.cfg.LogDir, report); err != nil {
			a.logger.WarnContext(ctx, "failed to write scan log", slog.String("error", err.Error()))
		}
	}

	for _, m := range report.Matches {
		a.audit.LogMatch(ctx, m.Path, m.Digest.String())
	}
	a.audit.LogScanCompleted(ctx, job.ID, job.Root, len(report.Matches), report.StoppedEarly, "")
	a.publish(ctx, events.NewScanEvent(id.String(), job.ID, job.Root, report, ""))
	return path
}

func (a *App) saveJob(ctx context.Context, job *types.Job) {
	if err := a.history.Save(ctx, job); err != nil {
		a.logger.WarnContext(ctx, "failed to save scan history",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}
