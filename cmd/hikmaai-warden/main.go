// ABOUTME: Main entry point for hikmaai-warden CLI
// ABOUTME: Runs the cobra root command under a signal-aware context

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
)

// Version information (set by ldflags).
var (
	version   = "dev"
	gitSHA    = "unknown"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	switch {
	case errors.Is(err, errInfected):
		os.Exit(2)
	case err != nil:
		os.Exit(1)
	}
}
