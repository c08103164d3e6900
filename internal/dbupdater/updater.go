// ABOUTME: Refresher contract the scheduler drives
// ABOUTME: Implemented by the signature store and by test fakes

package dbupdater

import (
	"context"

	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Refresher rebuilds the signature set from its feed.
type Refresher interface {
	RefreshWithProgress(ctx context.Context, sink progress.Sink) (*types.RefreshResult, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, sink progress.Sink) (*types.RefreshResult, error)

// RefreshWithProgress calls f.
func (f RefresherFunc) RefreshWithProgress(ctx context.Context, sink progress.Sink) (*types.RefreshResult, error) {
	return f(ctx, sink)
}

// Trigger names what started a run.
type Trigger string

// Run triggers.
const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)
