// ABOUTME: Background worker running queued directory scans
// ABOUTME: Persists every job status transition to the scan history store

package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Errors returned by Submit.
var (
	ErrWorkerStopped = errors.New("worker stopped")
	ErrQueueFull     = errors.New("job queue full")
)

// JobStore persists scan jobs.
type JobStore interface {
	Save(ctx context.Context, job *types.Job) error
	Get(ctx context.Context, id string) (*types.Job, error)
}

// WorkerConfig holds configuration for the scan worker.
type WorkerConfig struct {
	// Scanner runs the scans.
	Scanner *Scanner

	// Jobs persists job state.
	Jobs JobStore

	// Concurrency is the number of concurrent scans. Zero means 1.
	Concurrency int

	// QueueSize bounds pending jobs. Zero means 16.
	QueueSize int

	// Progress returns the sink for a job. Nil discards progress.
	Progress func(jobID string) progress.Sink

	// OnDone is called after a job reaches a terminal status.
	OnDone func(ctx context.Context, job *types.Job)

	// Logger for worker operations. Nil uses slog.Default().
	Logger *slog.Logger
}

// Worker processes scan jobs asynchronously.
type Worker struct {
	config WorkerConfig
	logger *slog.Logger

	jobQueue chan string
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewWorker creates a new scan worker.
func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Worker{
		config:   cfg,
		logger:   cfg.Logger,
		jobQueue: make(chan string, cfg.QueueSize),
		stopCh:   make(chan struct{}),
	}
}

// Start begins processing jobs with the configured concurrency.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx)
	}
}

// Stop stops accepting jobs and waits for running scans to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}

// Submit persists job as pending and queues it.
func (w *Worker) Submit(ctx context.Context, job *types.Job) error {
	select {
	case <-w.stopCh:
		return ErrWorkerStopped
	default:
	}

	if err := w.config.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("saving job: %w", err)
	}

	select {
	case w.jobQueue <- job.ID:
		return nil
	default:
		if err := job.Fail(ErrQueueFull.Error()); err == nil {
			_ = w.config.Jobs.Save(ctx, job)
		}
		return ErrQueueFull
	}
}

func (w *Worker) workerLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case id := <-w.jobQueue:
			if err := w.ProcessJob(ctx, id); err != nil {
				w.logger.ErrorContext(ctx, "error processing scan job",
					slog.String("job_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ProcessJob runs a single pending job synchronously.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) error {
	job, err := w.config.Jobs.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("getting job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := job.Start(); err != nil {
		return fmt.Errorf("starting job: %w", err)
	}
	if err := w.config.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}

	var sink progress.Sink
	if w.config.Progress != nil {
		sink = w.config.Progress(job.ID)
	}

	report, scanErr := w.config.Scanner.SearchFiles(ctx, job.Root, job.StopOnFirstMatch, sink)
	if scanErr != nil {
		err = job.Fail(scanErr.Error())
	} else {
		err = job.Complete(report)
	}
	if err != nil {
		return fmt.Errorf("finishing job: %w", err)
	}

	if err := w.config.Jobs.Save(ctx, job); err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	if w.config.OnDone != nil {
		w.config.OnDone(ctx, job)
	}
	return nil
}

// QueueLength returns the current number of jobs in the queue.
func (w *Worker) QueueLength() int {
	return len(w.jobQueue)
}
