// ABOUTME: Tests for API handlers including digest lookup, scan queueing and status
// ABOUTME: Validates request/response handling and error cases over an in-memory store

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hikmaai-io/hikmaai-warden/internal/dbupdater"
	"github.com/hikmaai-io/hikmaai-warden/internal/engine"
	"github.com/hikmaai-io/hikmaai-warden/internal/events"
	"github.com/hikmaai-io/hikmaai-warden/internal/feeds"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/scanner"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

type fixture struct {
	store     *engine.SignatureStore
	history   *engine.HistoryStore
	worker    *scanner.Worker
	scheduler *dbupdater.Scheduler
	metrics   *observability.ScanMetrics
}

func setupFixture(t *testing.T, refresh bool) *fixture {
	t.Helper()

	store, err := engine.Open(engine.Config{
		Store:  engine.StoreConfig{InMemory: true},
		Source: feeds.NewEICARSource(),
	})
	if err != nil {
		t.Fatalf("engine.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if refresh {
		if _, err := store.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}

	metrics := observability.NewScanMetrics()
	sc, err := scanner.New(scanner.Config{Store: store, Metrics: metrics})
	if err != nil {
		t.Fatal(err)
	}
	history := engine.NewHistoryStore(store.Backend())
	sched, err := dbupdater.NewScheduler(dbupdater.SchedulerConfig{
		Refresher: store,
		Schedule:  types.UpdateSchedule{Weekday: types.ScheduleDisabled},
	})
	if err != nil {
		t.Fatal(err)
	}

	return &fixture{
		store:     store,
		history:   history,
		worker:    scanner.NewWorker(scanner.WorkerConfig{Scanner: sc, Jobs: history}),
		scheduler: sched,
		metrics:   metrics,
	}
}

func (f *fixture) mux(cfg HandlerConfig) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	return mux
}

func (f *fixture) fullConfig() HandlerConfig {
	return HandlerConfig{
		Store:     f.store,
		History:   f.history,
		Worker:    f.worker,
		Scheduler: f.scheduler,
		Metrics:   f.metrics,
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Decoding response: %v", err)
	}
	return v
}

func TestHandler_HandleGetDigest(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, true)
	mux := f.mux(f.fullConfig())

	tests := []struct {
		name       string
		digest     string
		wantCode   int
		wantStatus string
	}{
		{"known", string(feeds.EICARDigest), http.StatusOK, events.StatusMalware},
		{"uppercase", strings.ToUpper(string(feeds.EICARDigest)), http.StatusOK, events.StatusMalware},
		{"unknown", string(types.EmptyDigest), http.StatusOK, events.StatusClean},
		{"invalid", "invalid", http.StatusBadRequest, events.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, mux, http.MethodGet, "/api/v1/digests/"+tt.digest, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("Status = %d, want %d", rec.Code, tt.wantCode)
			}
			resp := decode[events.LookupResponse](t, rec)
			if resp.Status != tt.wantStatus {
				t.Errorf("Result status = %v, want %v", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestHandler_HandleHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		refresh bool
		want    string
	}{
		{"never refreshed", false, "degraded"},
		{"refreshed", true, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := setupFixture(t, tt.refresh)
			rec := serve(t, f.mux(f.fullConfig()), http.MethodGet, "/api/v1/health", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
			}
			body := decode[map[string]any](t, rec)
			if body["status"] != tt.want {
				t.Errorf("status = %v, want %v", body["status"], tt.want)
			}
		})
	}
}

func TestHandler_SubmitAndPollScan(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, true)
	mux := f.mux(f.fullConfig())

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "eicar.com"), []byte(feeds.EICARTestString()), 0o644); err != nil {
		t.Fatal(err)
	}

	body, _ := json.Marshal(ScanRequest{Root: root})
	rec := serve(t, mux, http.MethodPost, "/api/v1/scans", string(body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	submitted := decode[map[string]any](t, rec)
	jobID, _ := submitted["job_id"].(string)
	if jobID == "" {
		t.Fatal("missing job_id")
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/scans/"+jobID {
		t.Errorf("Location = %q", loc)
	}

	// Worker is not started; run the job inline.
	if err := f.worker.ProcessJob(context.Background(), jobID); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	rec = serve(t, mux, http.MethodGet, "/api/v1/scans/"+jobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}
	job := decode[types.Job](t, rec)
	if job.Status != types.JobStatusCompleted {
		t.Errorf("job status = %s, want completed", job.Status)
	}
	if !job.Infected() {
		t.Error("job should report the EICAR match")
	}

	rec = serve(t, mux, http.MethodGet, "/api/v1/scans?limit=10", "")
	list := decode[map[string][]types.Job](t, rec)
	if len(list["jobs"]) != 1 || list["jobs"][0].ID != jobID {
		t.Errorf("jobs = %+v", list["jobs"])
	}
}

func TestHandler_SubmitScan_Errors(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, true)

	tests := []struct {
		name     string
		cfg      HandlerConfig
		body     string
		wantCode int
	}{
		{"no worker", HandlerConfig{History: f.history}, `{"root":"/tmp"}`, http.StatusServiceUnavailable},
		{"bad json", f.fullConfig(), `{`, http.StatusBadRequest},
		{"missing root", f.fullConfig(), `{"root":"  "}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := serve(t, f.mux(tt.cfg), http.MethodPost, "/api/v1/scans", tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("Status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestHandler_HandleGetScan_NotFound(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, false)
	rec := serve(t, f.mux(f.fullConfig()), http.MethodGet, "/api/v1/scans/does-not-exist", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandler_HandleListScans_BadQuery(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, false)
	for _, query := range []string{"limit=-1", "limit=x", "status=done"} {
		rec := serve(t, f.mux(f.fullConfig()), http.MethodGet, "/api/v1/scans?"+query, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: Status = %d, want %d", query, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestHandler_HandleStatus(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, true)
	rec := serve(t, f.mux(f.fullConfig()), http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want %d", rec.Code, http.StatusOK)
	}

	resp := decode[StatusResponse](t, rec)
	if resp.Updates == nil || resp.Store == nil || resp.Metrics == nil {
		t.Fatalf("incomplete status: %+v", resp)
	}
	if resp.Store.Meta.EntryCount != 1 {
		t.Errorf("EntryCount = %d, want 1", resp.Store.Meta.EntryCount)
	}
	if resp.Updates.Status != dbupdater.StatusDisabled && resp.Updates.Status != dbupdater.StatusPending {
		t.Errorf("update status = %s", resp.Updates.Status)
	}
}

func TestHandler_HandleTriggerUpdate(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, false)

	rec := serve(t, f.mux(HandlerConfig{}), http.MethodPost, "/api/v1/updates", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without scheduler: Status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	rec = serve(t, f.mux(f.fullConfig()), http.MethodPost, "/api/v1/updates", "")
	if rec.Code != http.StatusAccepted {
		t.Errorf("Status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestHandler_RoutesSetsCorrelationID(t *testing.T) {
	t.Parallel()

	f := setupFixture(t, true)
	h := NewHandler(f.fullConfig()).Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/digests/"+string(feeds.EICARDigest), nil)
	req.Header.Set(observability.CorrelationIDHeader, "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(observability.CorrelationIDHeader); got != "req-123" {
		t.Errorf("correlation header = %q, want req-123", got)
	}
	resp := decode[events.LookupResponse](t, rec)
	if resp.RequestID != "req-123" {
		t.Errorf("RequestID = %q, want req-123", resp.RequestID)
	}
}
