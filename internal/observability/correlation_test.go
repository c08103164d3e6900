// ABOUTME: Tests for correlation id propagation
// ABOUTME: Covers context round trips, header validation and the HTTP middleware

package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCorrelationID_Context(t *testing.T) {
	t.Parallel()

	if got := FromContext(context.Background()); got != "" {
		t.Errorf("FromContext(empty) = %q", got)
	}

	a, b := NewCorrelationID(), NewCorrelationID()
	if a == "" || a == b {
		t.Fatalf("NewCorrelationID() = %q, %q", a, b)
	}

	ctx := WithCorrelationID(context.Background(), a)
	if FromContext(ctx) != a {
		t.Errorf("FromContext() = %q, want %q", FromContext(ctx), a)
	}
}

func TestEnsureCorrelationID(t *testing.T) {
	t.Parallel()

	ctx, id := EnsureCorrelationID(context.Background())
	if id == "" || FromContext(ctx) != id {
		t.Fatalf("EnsureCorrelationID() = %q, context has %q", id, FromContext(ctx))
	}

	_, again := EnsureCorrelationID(ctx)
	if again != id {
		t.Errorf("existing id %q replaced by %q", id, again)
	}
}

func TestExtractOrGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{name: "accepted", header: "scan-7f3a", keep: true},
		{name: "missing", header: ""},
		{name: "spaces", header: "a b"},
		{name: "control chars", header: "run\n42"},
		{name: "too long", header: strings.Repeat("x", maxCorrelationIDLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header[CorrelationIDHeader] = []string{tt.header}
			}
			got := ExtractOrGenerate(req)
			if got == "" {
				t.Fatal("ExtractOrGenerate() returned empty id")
			}
			if (got.String() == tt.header) != tt.keep {
				t.Errorf("ExtractOrGenerate() = %q, keep header %v", got, tt.keep)
			}
		})
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	t.Parallel()

	var seen CorrelationID
	h := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set(CorrelationIDHeader, "existing-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "existing-id" {
		t.Errorf("context id = %q, want existing-id", seen)
	}
	if got := rec.Header().Get(CorrelationIDHeader); got != "existing-id" {
		t.Errorf("response header = %q, want existing-id", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get(CorrelationIDHeader) != seen.String() {
		t.Errorf("generated id %q not echoed (header %q)", seen, rec.Header().Get(CorrelationIDHeader))
	}
}
