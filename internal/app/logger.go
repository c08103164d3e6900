// ABOUTME: Application logger honouring the persisted logging toggle
// ABOUTME: Tees structured logs to <log_dir>/app.log when logging is active

package app

import (
	"io"
	"log/slog"

	"github.com/hikmaai-io/hikmaai-warden/internal/config"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewLogger builds the process logger. When settings enable logging the
// output also goes to the app log; the returned closer releases it.
func NewLogger(cfg *config.Config, settings config.Settings, w io.Writer) (*slog.Logger, io.Closer, error) {
	if !settings.LoggingActive || cfg.LogDir == "" {
		return observability.NewLogger(cfg.Log, w), nopCloser{}, nil
	}

	f, err := observability.OpenAppLog(cfg.LogDir)
	if err != nil {
		return nil, nil, err
	}
	return observability.NewLogger(cfg.Log, io.MultiWriter(w, f)), f, nil
}
