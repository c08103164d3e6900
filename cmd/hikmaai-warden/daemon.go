// ABOUTME: Daemon command running the update scheduler as a long-lived service
// ABOUTME: Adds the HTTP status API, NATS events and lookups, and live settings reload

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/api"
	"github.com/hikmaai-io/hikmaai-warden/internal/config"
	"github.com/hikmaai-io/hikmaai-warden/internal/events"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
)

type daemonOptions struct {
	HTTPAddr      string
	NatsURL       string
	UpdateOnStart bool
	Workers       int
	QueueSize     int
}

func newDaemonCmd() *cobra.Command {
	var opts daemonOptions

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the update scheduler and status API",
		Long: `Start the HikmaAI Warden daemon in the foreground.

The daemon refreshes the signature database at the weekday and hour stored
in the settings file, and picks up schedule changes without a restart.

Optionally it serves the HTTP status API (--http-addr) and publishes scan
and update events to NATS (--nats-url), answering digest lookups on the
configured lookup subject.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.HTTPAddr, "http-addr", "", "HTTP address for the status API (overrides http.addr)")
	cmd.Flags().StringVar(&opts.NatsURL, "nats-url", "", "NATS server URL (overrides nats.url)")
	cmd.Flags().BoolVar(&opts.UpdateOnStart, "update-on-start", false, "refresh the database once at startup")
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "concurrent scans queued through the API")
	cmd.Flags().IntVar(&opts.QueueSize, "queue-size", 16, "maximum pending API scans")

	return cmd
}

func runDaemon(cmd *cobra.Command, opts daemonOptions) error {
	ctx := cmd.Context()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg, logger, a := s.cfg, s.logger, s.app
	if opts.HTTPAddr != "" {
		cfg.HTTP.Addr = opts.HTTPAddr
	}
	if opts.NatsURL != "" {
		cfg.NATS.URL = opts.NatsURL
	}

	tracingCfg := cfg.Tracing
	tracingCfg.ServiceName = config.AppName
	tracingCfg.Version = version
	tp, err := observability.NewTracerProvider(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	logger.Info("starting hikmaai-warden daemon",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir),
		slog.String("log_dir", cfg.LogDir),
		slog.String("http_addr", cfg.HTTP.Addr),
		slog.String("nats_url", observability.RedactURL(cfg.NATS.URL)),
		slog.String("schedule", a.Scheduler().Schedule().String()),
		slog.Bool("tracing", tp.IsEnabled()),
	)
	if redacted, err := cfg.Redacted(); err == nil {
		logger.Debug("effective configuration", slog.Any("config", redacted))
	}

	if cfg.NATS.URL != "" {
		client := events.NewClient(natsConfig(cfg), events.NewHandler(a.Store()), logger)
		if err := client.Connect(ctx); err != nil {
			logger.Warn("continuing without NATS", slog.String("error", err.Error()))
		} else {
			defer client.Close()
			if err := client.Subscribe(ctx); err != nil {
				logger.Warn("digest lookups disabled", slog.String("error", err.Error()))
			}
			a.SetPublisher(client)
		}
	}

	worker := a.NewWorker(opts.Workers, opts.QueueSize)
	worker.Start(ctx)
	defer worker.Stop()

	var httpServer *http.Server
	if cfg.HTTP.Addr != "" {
		handler := api.NewHandler(api.HandlerConfig{
			Store:     a.Store(),
			History:   a.History(),
			Worker:    worker,
			Scheduler: a.Scheduler(),
			Metrics:   a.Metrics(),
			Logger:    logger,
		})
		httpServer = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("starting HTTP server", slog.String("addr", cfg.HTTP.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		err := config.WatchSettings(ctx, a.Settings(), logger, func(settings config.Settings) {
			a.ApplySettings(ctx, settings)
		})
		if err != nil {
			logger.Warn("settings reload disabled", slog.String("error", err.Error()))
		}
	}()

	if opts.UpdateOnStart {
		a.Scheduler().Trigger()
	}

	logger.Info("daemon ready")
	runErr := a.Scheduler().Run(ctx)

	logger.Info("shutting down daemon")
	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown error", slog.String("error", err.Error()))
		}
	}
	logger.Info("daemon stopped")

	return runErr
}

// natsConfig maps the file configuration onto the client defaults.
func natsConfig(cfg *config.Config) events.NATSConfig {
	nc := events.DefaultNATSConfig()
	nc.URL = cfg.NATS.URL
	if cfg.NATS.Subject != "" {
		nc.Subject = cfg.NATS.Subject
	}
	nc.LookupSubject = cfg.NATS.LookupSubject
	if cfg.NATS.QueueGroup != "" {
		nc.QueueGroup = cfg.NATS.QueueGroup
	}
	nc.Name = fmt.Sprintf("%s-%s", config.AppName, version)
	return nc
}
