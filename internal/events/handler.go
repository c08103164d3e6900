// ABOUTME: Digest lookup handler answering NATS requests from the signature store
// ABOUTME: Processes single and batch requests into reply messages

package events

import (
	"context"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Lookup answers signature membership queries.
type Lookup interface {
	Contains(ctx context.Context, d types.Digest) (bool, error)
}

// Handler processes lookup requests.
type Handler struct {
	store Lookup
}

// NewHandler creates a new message handler.
func NewHandler(store Lookup) *Handler {
	return &Handler{store: store}
}

// ProcessRequest answers a single lookup request.
func (h *Handler) ProcessRequest(ctx context.Context, req LookupRequest) LookupResponse {
	start := time.Now()
	resp := LookupResponse{
		RequestID: req.RequestID,
		Digest:    req.Digest,
		ScannedAt: start.UTC(),
	}

	d, err := types.ParseDigest(req.Digest)
	if err != nil {
		resp.Status = StatusError
		resp.Error = err.Error()
		return resp
	}
	resp.Digest = d.String()

	found, err := h.store.Contains(ctx, d)
	resp.LookupTimeMs = float64(time.Since(start).Microseconds()) / 1000
	switch {
	case err != nil:
		resp.Status = StatusError
		resp.Error = err.Error()
	case found:
		resp.Status = StatusMalware
	default:
		resp.Status = StatusClean
	}
	return resp
}

// ProcessBatch answers each digest in order. A cancelled context
// returns the results computed so far.
func (h *Handler) ProcessBatch(ctx context.Context, req BatchLookupRequest) BatchLookupResponse {
	start := time.Now()
	resp := BatchLookupResponse{
		RequestID: req.RequestID,
		Results:   make([]LookupResponse, 0, len(req.Digests)),
	}

	for _, digest := range req.Digests {
		if ctx.Err() != nil {
			break
		}
		resp.Results = append(resp.Results, h.ProcessRequest(ctx, LookupRequest{Digest: digest, RequestID: req.RequestID}))
	}

	resp.TotalTimeMs = float64(time.Since(start).Microseconds()) / 1000
	return resp
}
