// ABOUTME: Correlation IDs tying one scan or refresh run across logs, history and events
// ABOUTME: Carried in contexts and the X-Correlation-ID HTTP header

package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CorrelationIDHeader carries the id on HTTP requests and responses.
const CorrelationIDHeader = "X-Correlation-ID"

// maxCorrelationIDLen bounds ids accepted from clients.
const maxCorrelationIDLen = 128

type correlationIDKey struct{}

// CorrelationID identifies one run.
type CorrelationID string

func (c CorrelationID) String() string { return string(c) }

// NewCorrelationID returns a random UUID id.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// WithCorrelationID attaches id to ctx.
func WithCorrelationID(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// FromContext returns the id in ctx, or "".
func FromContext(ctx context.Context) CorrelationID {
	id, _ := ctx.Value(correlationIDKey{}).(CorrelationID)
	return id
}

// EnsureCorrelationID returns ctx and its id, attaching a new id when
// ctx has none.
func EnsureCorrelationID(ctx context.Context) (context.Context, CorrelationID) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewCorrelationID()
	return WithCorrelationID(ctx, id), id
}

// ExtractOrGenerate takes the id from the request header when it is a
// printable token of bounded length, and generates one otherwise.
func ExtractOrGenerate(r *http.Request) CorrelationID {
	if id := r.Header.Get(CorrelationIDHeader); validCorrelationID(id) {
		return CorrelationID(id)
	}
	return NewCorrelationID()
}

func validCorrelationID(id string) bool {
	if id == "" || len(id) > maxCorrelationIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

// CorrelationMiddleware puts the request's id in its context and echoes
// it in the response header.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ExtractOrGenerate(r)
		w.Header().Set(CorrelationIDHeader, id.String())
		next.ServeHTTP(w, r.WithContext(WithCorrelationID(r.Context(), id)))
	})
}
