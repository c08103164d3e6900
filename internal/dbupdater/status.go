// ABOUTME: Status tracking for the update scheduler
// ABOUTME: Thread-safe record of the next run, last outcome and entry count

package dbupdater

import (
	"sync"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Status represents the current state of the scheduler.
type Status string

// Status constants for scheduler states.
const (
	// StatusPending indicates no run has happened yet.
	StatusPending Status = "pending"

	// StatusIdle indicates the last run succeeded.
	StatusIdle Status = "idle"

	// StatusUpdating indicates a refresh is in progress.
	StatusUpdating Status = "updating"

	// StatusFailed indicates the last run failed.
	StatusFailed Status = "failed"

	// StatusDisabled indicates no schedule is configured.
	StatusDisabled Status = "disabled"
)

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Status Status `json:"status"`

	// Schedule is the human-readable active schedule.
	Schedule string `json:"schedule"`

	// NextScheduled is zero when the schedule is disabled.
	NextScheduled time.Time `json:"next_scheduled,omitzero"`

	// LastUpdate is when the last successful refresh completed.
	LastUpdate time.Time `json:"last_update,omitzero"`

	LastError string `json:"last_error,omitempty"`

	// Count is the store entry count after the last successful refresh.
	Count int64 `json:"count"`

	Generation uint64 `json:"generation"`

	// Runs counts refresh attempts since start.
	Runs int64 `json:"runs"`
}

// TimeSinceLastUpdate returns the duration since the last successful update.
// Returns 0 if never updated.
func (s SchedulerStatus) TimeSinceLastUpdate() time.Duration {
	if s.LastUpdate.IsZero() {
		return 0
	}
	return time.Since(s.LastUpdate)
}

// StatusTracker holds the scheduler status.
type StatusTracker struct {
	mu     sync.RWMutex
	status SchedulerStatus
}

// NewStatusTracker creates a tracker in the pending state.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{status: SchedulerStatus{Status: StatusPending}}
}

// Get returns a copy of the current status.
func (t *StatusTracker) Get() SchedulerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Seed sets the state loaded from the store before any run.
func (t *StatusTracker) Seed(count int64, generation uint64, lastUpdate time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Count = count
	t.status.Generation = generation
	t.status.LastUpdate = lastUpdate
}

// SetStatus updates the state.
func (t *StatusTracker) SetStatus(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Status = status
}

// SetSchedule records the active schedule and its next fire time.
// A disabled schedule clears NextScheduled and, unless a run is in
// progress, moves the state to disabled.
func (t *StatusTracker) SetSchedule(s types.UpdateSchedule, next time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Schedule = s.String()
	t.status.NextScheduled = next
	switch {
	case next.IsZero() && t.status.Status != StatusUpdating:
		t.status.Status = StatusDisabled
	case !next.IsZero() && t.status.Status == StatusDisabled:
		t.status.Status = StatusPending
	}
}

// Begin marks the start of a run.
func (t *StatusTracker) Begin() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Status = StatusUpdating
	t.status.Runs++
}

// RecordSuccess records a completed refresh.
func (t *StatusTracker) RecordSuccess(r *types.RefreshResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Status = StatusIdle
	t.status.LastError = ""
	t.status.LastUpdate = r.CompletedAt
	t.status.Count = r.Count
	t.status.Generation = r.Generation
}

// RecordFailure records a failed refresh. Count and LastUpdate keep
// describing the still-active set.
func (t *StatusTracker) RecordFailure(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status.Status = StatusFailed
	t.status.LastError = err.Error()
}
