// ABOUTME: Audit logging for scan, database update, and settings events
// ABOUTME: Emits audit_event records carrying the run's correlation ID

package observability

import (
	"context"
	"log/slog"
	"time"
)

// Audit event type constants.
const (
	EventTypeScan     = "SCAN"
	EventTypeUpdate   = "UPDATE"
	EventTypeSettings = "SETTINGS"
	EventTypeMatch    = "MATCH"
)

// Audit action constants.
const (
	ActionStart    = "START"
	ActionComplete = "COMPLETE"
	ActionModify   = "MODIFY"
	ActionDetect   = "DETECT"
)

// Audit result constants.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultStopped = "stopped"
)

// AuditLogger provides structured audit logging for security events.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger.
// A nil logger uses slog.Default().
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger: logger,
	}
}

// LogScanStarted logs the start of a scan of root.
func (a *AuditLogger) LogScanStarted(ctx context.Context, jobID, root string, stopOnFirstMatch bool) {
	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeScan),
		slog.String("action", ActionStart),
		slog.String("resource", root),
		slog.String("job_id", jobID),
		slog.Bool("stop_on_first_match", stopOnFirstMatch),
		slog.String("correlation_id", string(FromContext(ctx))),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogScanCompleted logs the outcome of a scan. A non-empty errMsg marks failure.
func (a *AuditLogger) LogScanCompleted(ctx context.Context, jobID, root string, matches int, stoppedEarly bool, errMsg string) {
	result := ResultSuccess
	level := slog.LevelInfo
	switch {
	case errMsg != "":
		result = ResultFailure
		level = slog.LevelWarn
	case stoppedEarly:
		result = ResultStopped
	}

	a.logger.Log(ctx, level, "audit_event",
		slog.String("event_type", EventTypeScan),
		slog.String("action", ActionComplete),
		slog.String("resource", root),
		slog.String("job_id", jobID),
		slog.Int("matches", matches),
		slog.String("result", result),
		slog.String("error", errMsg),
		slog.String("correlation_id", string(FromContext(ctx))),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogMatch logs a single signature match.
func (a *AuditLogger) LogMatch(ctx context.Context, path, digest string) {
	a.logger.WarnContext(ctx, "audit_event",
		slog.String("event_type", EventTypeMatch),
		slog.String("action", ActionDetect),
		slog.String("resource", path),
		slog.String("digest", digest),
		slog.String("correlation_id", string(FromContext(ctx))),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogDBUpdate logs a database update event.
func (a *AuditLogger) LogDBUpdate(ctx context.Context, source string, success bool, details string) {
	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeUpdate),
		slog.String("action", ActionComplete),
		slog.String("actor", "system"),
		slog.String("resource", source),
		slog.String("result", result),
		slog.String("details", details),
		slog.String("correlation_id", string(FromContext(ctx))),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogSettingsChange logs a change to a persisted setting.
func (a *AuditLogger) LogSettingsChange(ctx context.Context, key, oldValue, newValue string) {
	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeSettings),
		slog.String("action", ActionModify),
		slog.String("resource", key),
		slog.String("old_value", oldValue),
		slog.String("new_value", newValue),
		slog.String("correlation_id", string(FromContext(ctx))),
		slog.Time("timestamp", time.Now().UTC()),
	)
}
