// ABOUTME: Root command for hikmaai-warden CLI
// ABOUTME: Sets up global flags, configuration loading and the shared app bootstrap

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hikmaai-io/hikmaai-warden/internal/app"
	"github.com/hikmaai-io/hikmaai-warden/internal/config"
)

// Global flags.
var (
	cfgFile   string
	logLevel  string
	logFormat string
	dataDir   string
	logDir    string
)

// errInfected ends a command whose scan or lookup found malware.
var errInfected = errors.New("malware found")

// errIncomplete ends a scan in which some files could not be checked.
var errIncomplete = errors.New("scan incomplete")

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hikmaai-warden",
		Short: "HikmaAI Warden - local signature-based malware scanner",
		Long: `HikmaAI Warden walks a directory tree and compares the MD5 digest of every
file against a local signature database. A Bloom filter rejects most clean
files before BadgerDB is consulted.

The database is refreshed from the configured feeds on demand or on a
weekly schedule while the daemon runs.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: "+config.DefaultConfigPath()+")")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, text)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the signature database and settings")
	cmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for run logs")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newDrivesCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hikmaai-warden version %s\n", version)
			fmt.Fprintf(out, "  Git SHA:    %s\n", gitSHA)
			fmt.Fprintf(out, "  Build Time: %s\n", buildTime)
		},
	}
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	cfg.Log.ServiceName = config.AppName
	cfg.Log.Version = version

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session is the state shared by commands that open the database.
type session struct {
	cfg      *config.Config
	settings *config.SettingsStore
	logger   *slog.Logger
	logClose io.Closer
	app      *app.App
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	store := config.NewSettingsStore(cfg.SettingsPath())
	settings, err := store.Load()
	if err != nil {
		return nil, err
	}

	logger, closer, err := app.NewLogger(cfg, settings, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a, err := app.New(ctx, app.Options{
		Config:   cfg,
		Settings: store,
		Logger:   logger,
	})
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("failed to open signature database: %w", err)
	}

	return &session{cfg: cfg, settings: store, logger: logger, logClose: closer, app: a}, nil
}

func (s *session) Close() error {
	return errors.Join(s.app.Close(), s.logClose.Close())
}
