// ABOUTME: Asynchronous signature database update entry point
// ABOUTME: Runs a manual refresh through the scheduler and serialises the entry count

package app

import (
	"context"
	"encoding/json"

	"github.com/hikmaai-io/hikmaai-warden/internal/dbupdater"
	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// UpdateOutcome is delivered once when an update ends.
type UpdateOutcome struct {
	// Count is the JSON-encoded number of entries after the refresh.
	Count string `json:"count,omitempty"`

	Result *types.RefreshResult `json:"result,omitempty"`

	// Err is the failure reason; empty on success.
	Err string `json:"error,omitempty"`
}

// StartUpdate refreshes the signature store on a new goroutine. The
// returned channel yields exactly one outcome and is then closed.
func (a *App) StartUpdate(ctx context.Context, sink progress.Sink) <-chan UpdateOutcome {
	out := make(chan UpdateOutcome, 1)
	go func() {
		defer close(out)
		out <- a.Update(ctx, sink)
	}()
	return out
}

// Update refreshes the signature store on the caller's goroutine.
func (a *App) Update(ctx context.Context, sink progress.Sink) UpdateOutcome {
	result, err := a.scheduler.RunNow(ctx, dbupdater.TriggerManual, sink)
	if err != nil {
		return UpdateOutcome{Err: err.Error()}
	}
	count, err := json.Marshal(result.Count)
	if err != nil {
		return UpdateOutcome{Result: result, Err: err.Error()}
	}
	return UpdateOutcome{Count: string(count), Result: result}
}
