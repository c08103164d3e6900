// ABOUTME: Message types published and served over NATS
// ABOUTME: Scan and update outcome events plus digest lookup request/reply

package events

import (
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// EventType identifies an outcome event.
type EventType string

// Event types.
const (
	EventScanCompleted   EventType = "scan.completed"
	EventScanFailed      EventType = "scan.failed"
	EventUpdateCompleted EventType = "update.completed"
	EventUpdateFailed    EventType = "update.failed"
)

// Event is published on the events subject after each run.
type Event struct {
	Type EventType `json:"type"`

	// RunID is the correlation id of the run.
	RunID string `json:"run_id,omitempty"`

	// Host that produced the event.
	Host string `json:"host,omitempty"`

	Time time.Time `json:"time"`

	Scan   *ScanEvent   `json:"scan,omitempty"`
	Update *UpdateEvent `json:"update,omitempty"`

	Error string `json:"error,omitempty"`
}

// ScanEvent summarizes a scan.
type ScanEvent struct {
	JobID        string          `json:"job_id,omitempty"`
	Root         string          `json:"root"`
	Matches      []types.Match   `json:"matches"`
	Unchecked    []string        `json:"unchecked,omitempty"`
	Stats        types.ScanStats `json:"stats"`
	StoppedEarly bool            `json:"stopped_early,omitempty"`
	DurationMs   float64         `json:"duration_ms"`
}

// UpdateEvent summarizes a refresh.
type UpdateEvent struct {
	Count      int64   `json:"count"`
	Added      int64   `json:"added"`
	Removed    int64   `json:"removed"`
	Generation uint64  `json:"generation"`
	Source     string  `json:"source,omitempty"`
	DurationMs float64 `json:"duration_ms"`
}

// NewScanEvent builds the event for a finished scan. A nil report with
// a non-empty errMsg yields a failure event.
func NewScanEvent(runID, jobID, root string, report *types.ScanReport, errMsg string) Event {
	ev := Event{Type: EventScanCompleted, RunID: runID, Time: time.Now().UTC()}
	if errMsg != "" || report == nil {
		ev.Type = EventScanFailed
		ev.Error = errMsg
		ev.Scan = &ScanEvent{JobID: jobID, Root: root, Matches: []types.Match{}}
		return ev
	}

	ev.Scan = &ScanEvent{
		JobID:        jobID,
		Root:         root,
		Matches:      report.Matches,
		Unchecked:    report.QueryFailures,
		Stats:        report.Stats,
		StoppedEarly: report.StoppedEarly,
		DurationMs:   float64(report.Duration().Microseconds()) / 1000,
	}
	return ev
}

// NewUpdateEvent builds the event for a finished refresh.
func NewUpdateEvent(runID string, result *types.RefreshResult, err error) Event {
	ev := Event{Type: EventUpdateCompleted, RunID: runID, Time: time.Now().UTC()}
	if err != nil || result == nil {
		ev.Type = EventUpdateFailed
		if err != nil {
			ev.Error = err.Error()
		}
		return ev
	}

	ev.Update = &UpdateEvent{
		Count:      result.Count,
		Added:      result.Added,
		Removed:    result.Removed,
		Generation: result.Generation,
		Source:     result.Source,
		DurationMs: float64(result.Duration.Microseconds()) / 1000,
	}
	return ev
}

// LookupRequest asks whether a digest is a known signature.
type LookupRequest struct {
	// Digest is an MD5 hex string.
	Digest string `json:"digest"`

	// Optional request ID for correlation.
	RequestID string `json:"request_id,omitempty"`
}

// LookupResponse is the reply to a LookupRequest.
type LookupResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Digest    string `json:"digest"`

	// Status is "malware", "clean" or "error".
	Status string `json:"status"`

	Error string `json:"error,omitempty"`

	LookupTimeMs float64   `json:"lookup_time_ms"`
	ScannedAt    time.Time `json:"scanned_at"`
}

// Lookup statuses.
const (
	StatusMalware = "malware"
	StatusClean   = "clean"
	StatusError   = "error"
)

// BatchLookupRequest checks several digests at once.
type BatchLookupRequest struct {
	Digests   []string `json:"digests"`
	RequestID string   `json:"request_id,omitempty"`
}

// BatchLookupResponse is the reply to a BatchLookupRequest.
type BatchLookupResponse struct {
	RequestID   string           `json:"request_id,omitempty"`
	Results     []LookupResponse `json:"results"`
	TotalTimeMs float64          `json:"total_time_ms"`
}
