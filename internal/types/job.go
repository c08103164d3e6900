// ABOUTME: Persisted record of one scan run and its lifecycle
// ABOUTME: pending -> running -> completed, or failed from any non-final state

package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

// Job states.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ParseJobStatus validates a status name such as a query filter.
func ParseJobStatus(s string) (JobStatus, error) {
	switch st := JobStatus(s); st {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job records a scan of Root.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`

	Root             string `json:"root"`
	StopOnFirstMatch bool   `json:"stop_on_first_match"`

	// Report is set on completion, Error on failure.
	Report *ScanReport `json:"report,omitempty"`
	Error  string      `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob returns a pending job with a fresh UUID.
func NewJob(root string, stopOnFirstMatch bool) *Job {
	return &Job{
		ID:               uuid.NewString(),
		Status:           JobStatusPending,
		Root:             root,
		StopOnFirstMatch: stopOnFirstMatch,
		CreatedAt:        time.Now().UTC(),
	}
}

func (j *Job) advance(to JobStatus, from ...JobStatus) (time.Time, error) {
	for _, f := range from {
		if j.Status == f {
			j.Status = to
			return time.Now().UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("job %s: cannot move from %s to %s", j.ID, j.Status, to)
}

// Start marks a pending job running.
func (j *Job) Start() error {
	now, err := j.advance(JobStatusRunning, JobStatusPending)
	if err != nil {
		return err
	}
	j.StartedAt = &now
	return nil
}

// Complete attaches the report of a running job.
func (j *Job) Complete(report *ScanReport) error {
	now, err := j.advance(JobStatusCompleted, JobStatusRunning)
	if err != nil {
		return err
	}
	j.Report = report
	j.CompletedAt = &now
	return nil
}

// Fail records errMsg. A pending job may fail before it starts, for
// instance when the root is rejected.
func (j *Job) Fail(errMsg string) error {
	now, err := j.advance(JobStatusFailed, JobStatusPending, JobStatusRunning)
	if err != nil {
		return err
	}
	j.Error = errMsg
	j.CompletedAt = &now
	return nil
}

// Infected reports whether the job completed with a match.
func (j *Job) Infected() bool {
	return j.Report != nil && j.Report.Infected()
}

// Duration is zero before start, running time while running and frozen
// once the job ends.
func (j *Job) Duration() time.Duration {
	switch {
	case j.StartedAt == nil:
		return 0
	case j.CompletedAt != nil:
		return j.CompletedAt.Sub(*j.StartedAt)
	default:
		return time.Since(*j.StartedAt)
	}
}
