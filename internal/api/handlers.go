// ABOUTME: HTTP handlers for the hikmaai-warden status API
// ABOUTME: Provides health, scheduler status, digest lookup, queued scans and history

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/dbupdater"
	"github.com/hikmaai-io/hikmaai-warden/internal/engine"
	"github.com/hikmaai-io/hikmaai-warden/internal/events"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/scanner"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// defaultHistoryLimit caps GET /api/v1/scans without a limit parameter.
const defaultHistoryLimit = 50

// Handler provides HTTP handlers for the API.
type Handler struct {
	store     *engine.SignatureStore
	history   *engine.HistoryStore
	worker    *scanner.Worker
	scheduler *dbupdater.Scheduler
	metrics   *observability.ScanMetrics
	lookup    *events.Handler
	logger    *slog.Logger
}

// HandlerConfig holds configuration for API handlers.
type HandlerConfig struct {
	Store   *engine.SignatureStore
	History *engine.HistoryStore

	// Worker runs submitted scans. Nil disables POST /api/v1/scans.
	Worker *scanner.Worker

	// Scheduler reports update status. Nil disables POST /api/v1/updates.
	Scheduler *dbupdater.Scheduler

	Metrics *observability.ScanMetrics
	Logger  *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		store:     cfg.Store,
		history:   cfg.History,
		worker:    cfg.Worker,
		scheduler: cfg.Scheduler,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if cfg.Store != nil {
		h.lookup = events.NewHandler(cfg.Store)
	}
	return h
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", h.HandleHealth)
	mux.HandleFunc("GET /api/v1/status", h.HandleStatus)
	mux.HandleFunc("GET /api/v1/digests/{digest}", h.HandleGetDigest)
	mux.HandleFunc("POST /api/v1/scans", h.HandleSubmitScan)
	mux.HandleFunc("GET /api/v1/scans", h.HandleListScans)
	mux.HandleFunc("GET /api/v1/scans/{id}", h.HandleGetScan)
	mux.HandleFunc("POST /api/v1/updates", h.HandleTriggerUpdate)
}

// Routes returns the API with correlation and request logging applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return observability.CorrelationMiddleware(LoggingMiddleware(h.logger, mux))
}

// HandleHealth handles health check requests.
// GET /api/v1/health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := make(map[string]any)

	if h.store != nil {
		meta := h.store.Meta()
		if meta.Generation == 0 {
			status = "degraded"
			checks["signatures"] = "never refreshed"
		} else {
			checks["signatures"] = fmt.Sprintf("ok (entries: %d)", meta.EntryCount)
		}
	}

	if h.history != nil {
		count, err := h.history.Count(r.Context())
		if err != nil {
			checks["history"] = fmt.Sprintf("error: %v", err)
		} else {
			checks["history"] = fmt.Sprintf("ok (jobs: %d)", count)
		}
	}

	if h.worker != nil {
		checks["worker"] = fmt.Sprintf("ok (queue: %d)", h.worker.QueueLength())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Updates *dbupdater.SchedulerStatus     `json:"updates,omitempty"`
	Store   *engine.Stats                  `json:"store,omitempty"`
	Metrics *observability.MetricsSnapshot `json:"metrics,omitempty"`
}

// HandleStatus reports update scheduling, store statistics and metrics.
// GET /api/v1/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse

	if h.scheduler != nil {
		st := h.scheduler.Status().Get()
		resp.Updates = &st
	}
	if h.store != nil {
		stats, err := h.store.Stats()
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("store stats: %v", err))
			return
		}
		resp.Store = stats
	}
	if h.metrics != nil {
		resp.Metrics = h.metrics.Snapshot()
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleGetDigest handles digest lookup requests.
// GET /api/v1/digests/{digest}
func (h *Handler) HandleGetDigest(w http.ResponseWriter, r *http.Request) {
	if h.lookup == nil {
		writeError(w, http.StatusServiceUnavailable, "signature store not configured")
		return
	}

	resp := h.lookup.ProcessRequest(r.Context(), events.LookupRequest{
		Digest:    r.PathValue("digest"),
		RequestID: observability.FromContext(r.Context()).String(),
	})
	if resp.Status != events.StatusError {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	// A malformed digest is the caller's fault; anything else is ours.
	if _, err := types.ParseDigest(r.PathValue("digest")); err != nil {
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}
	writeJSON(w, http.StatusInternalServerError, resp)
}

// ScanRequest is the body of POST /api/v1/scans.
type ScanRequest struct {
	Root             string `json:"root"`
	StopOnFirstMatch bool   `json:"stop_on_first_match"`
}

// HandleSubmitScan queues a directory scan.
// POST /api/v1/scans
// Returns 202 Accepted with job ID for polling.
func (h *Handler) HandleSubmitScan(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		writeError(w, http.StatusServiceUnavailable, "scan worker is not enabled")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Root) == "" {
		writeError(w, http.StatusBadRequest, "root is required")
		return
	}

	job := types.NewJob(req.Root, req.StopOnFirstMatch)
	if err := h.worker.Submit(r.Context(), job); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, scanner.ErrQueueFull) || errors.Is(err, scanner.ErrWorkerStopped) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, fmt.Sprintf("queueing job: %v", err))
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/scans/%s", job.ID))
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "scan queued",
	})
}

// HandleGetScan handles job status polling.
// GET /api/v1/scans/{id}
func (h *Handler) HandleGetScan(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	jobID := r.PathValue("id")

	job, err := h.history.Get(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("getting job: %v", err))
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// HandleListScans lists recent scans, newest first.
// GET /api/v1/scans?limit=N&status=completed
func (h *Handler) HandleListScans(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var statuses []types.JobStatus
	for _, s := range r.URL.Query()["status"] {
		st, err := types.ParseJobStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, st)
	}

	jobs, err := h.history.List(r.Context(), limit, statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("listing jobs: %v", err))
		return
	}
	if jobs == nil {
		jobs = []*types.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// HandleTriggerUpdate requests an immediate database update.
// POST /api/v1/updates
func (h *Handler) HandleTriggerUpdate(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler is not running")
		return
	}
	if h.scheduler.Status().Get().Status == dbupdater.StatusUpdating {
		writeError(w, http.StatusConflict, "update already in progress")
		return
	}

	h.scheduler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "update triggered"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs each request except health checks.
func LoggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if strings.HasSuffix(r.URL.Path, "/health") {
			return
		}
		logger.InfoContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}
