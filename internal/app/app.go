// ABOUTME: Application wiring of store, scanner, history, scheduler and events
// ABOUTME: Owns component lifecycles and exposes the asynchronous scan and update calls

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/config"
	"github.com/hikmaai-io/hikmaai-warden/internal/dbupdater"
	"github.com/hikmaai-io/hikmaai-warden/internal/engine"
	"github.com/hikmaai-io/hikmaai-warden/internal/events"
	"github.com/hikmaai-io/hikmaai-warden/internal/feeds"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/scanner"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Publisher sends outcome events.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Options configures New.
type Options struct {
	Config *config.Config

	// Settings defaults to the store at Config.SettingsPath().
	Settings *config.SettingsStore

	// Source overrides the feeds named in Config.Feeds.
	Source engine.FeedSource

	// InMemory keeps the signature store in memory.
	InMemory bool

	// Publisher is optional.
	Publisher Publisher

	Metrics *observability.ScanMetrics
	Audit   *observability.AuditLogger
	Logger  *slog.Logger
}

// App is the assembled application.
type App struct {
	cfg       *config.Config
	settings  *config.SettingsStore
	store     *engine.SignatureStore
	history   *engine.HistoryStore
	cache     *engine.DigestCache
	scanner   *scanner.Scanner
	scheduler *dbupdater.Scheduler
	publisher Publisher
	metrics   *observability.ScanMetrics
	audit     *observability.AuditLogger
	logger    *slog.Logger
	closers   []io.Closer
}

// New opens the store and wires every component.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app requires a config")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewScanMetrics()
	}
	if opts.Audit == nil {
		opts.Audit = observability.NewAuditLogger(opts.Logger)
	}
	if opts.Settings == nil {
		opts.Settings = config.NewSettingsStore(opts.Config.SettingsPath())
	}
	cfg := opts.Config

	a := &App{
		cfg:       cfg,
		settings:  opts.Settings,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		logger:    opts.Logger,
	}

	source := opts.Source
	if source == nil {
		multi, err := feeds.Open(ctx, cfg.Feeds, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("opening feeds: %w", err)
		}
		a.closers = append(a.closers, multi)
		source = multi
	}

	store, err := engine.Open(engine.Config{
		Store: engine.StoreConfig{
			Path:     cfg.StorePath(),
			InMemory: opts.InMemory,
			Logger:   engine.NewBadgerLogger(opts.Logger),
		},
		Bloom:  cfg.Bloom,
		Source: source,
		Logger: opts.Logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.history = engine.NewHistoryStore(store.Backend())

	fps, err := cfg.FalsePositiveDigests()
	if err != nil {
		a.Close()
		return nil, err
	}
	scanCfg := scanner.Config{
		Store:          store,
		FalsePositives: fps,
		ChunkSize:      cfg.Scan.ChunkSize,
		FilesPerSecond: cfg.Scan.FilesPerSecond,
		DetectFileType: cfg.Scan.DetectFileType,
		Metrics:        opts.Metrics,
		Logger:         opts.Logger,
	}
	if cfg.Scan.CacheTTL > 0 {
		a.cache = engine.NewDigestCache(store.Backend(), cfg.Scan.CacheTTL)
		scanCfg.Cache = a.cache
	}
	if a.scanner, err = scanner.New(scanCfg); err != nil {
		a.Close()
		return nil, err
	}

	settings, err := a.settings.Load()
	if err != nil {
		opts.Logger.Warn("using default settings", slog.String("error", err.Error()))
		settings = config.DefaultSettings()
	}
	sched, err := settings.Schedule()
	if err != nil {
		opts.Logger.Warn("invalid update schedule in settings, scheduling disabled", slog.String("error", err.Error()))
		sched = types.UpdateSchedule{Weekday: types.ScheduleDisabled}
	}
	a.scheduler, err = dbupdater.NewScheduler(dbupdater.SchedulerConfig{
		Refresher: store,
		Schedule:  sched,
		LogDir:    cfg.LogDir,
		OnRefresh: a.afterRefresh,
		Audit:     opts.Audit,
		Metrics:   opts.Metrics,
		Logger:    opts.Logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	meta := store.Meta()
	a.scheduler.Status().Seed(meta.EntryCount, meta.Generation, meta.LastRefresh)

	return a, nil
}

// Close releases the store and feeds.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Config returns the static configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Settings returns the settings store.
func (a *App) Settings() *config.SettingsStore { return a.settings }

// Store returns the signature store.
func (a *App) Store() *engine.SignatureStore { return a.store }

// History returns the scan history store.
func (a *App) History() *engine.HistoryStore { return a.history }

// Scanner returns the scanner.
func (a *App) Scanner() *scanner.Scanner { return a.scanner }

// Scheduler returns the update scheduler.
func (a *App) Scheduler() *dbupdater.Scheduler { return a.scheduler }

// Metrics returns the shared metrics.
func (a *App) Metrics() *observability.ScanMetrics { return a.metrics }

// Audit returns the audit logger.
func (a *App) Audit() *observability.AuditLogger { return a.audit }

// ClearDigestCache drops every cached file digest and returns how many
// there were. Without a cache it does nothing.
func (a *App) ClearDigestCache(ctx context.Context) (int64, error) {
	if a.cache == nil {
		return 0, nil
	}
	n, err := a.cache.Count(ctx)
	if err != nil {
		return 0, err
	}
	return n, a.cache.Clear(ctx)
}

// SetPublisher installs the event publisher. It must be called before
// any scan, update or scheduler run starts.
func (a *App) SetPublisher(p Publisher) { a.publisher = p }

// ApplySettings installs a changed schedule on the running scheduler.
func (a *App) ApplySettings(ctx context.Context, s config.Settings) {
	sched, err := s.Schedule()
	if err != nil {
		a.logger.WarnContext(ctx, "ignoring invalid update schedule", slog.String("error", err.Error()))
		return
	}
	old := a.scheduler.Schedule()
	if old == sched {
		return
	}
	if err := a.scheduler.SetSchedule(sched); err == nil {
		a.audit.LogSettingsChange(ctx, "update_schedule", old.String(), sched.String())
	}
}

// afterRefresh persists the outcome of every refresh and publishes it.
func (a *App) afterRefresh(ctx context.Context, result *types.RefreshResult, err error) {
	if err == nil {
		if _, serr := a.settings.Update(func(s *config.Settings) error {
			s.RecordRefresh(result.Count, result.CompletedAt)
			return nil
		}); serr != nil {
			a.logger.ErrorContext(ctx, "failed to save settings", slog.String("error", serr.Error()))
		}
	}
	a.publish(ctx, events.NewUpdateEvent(observability.FromContext(ctx).String(), result, err))
}

func (a *App) publish(ctx context.Context, ev events.Event) {
	if a.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.publisher.Publish(pubCtx, ev); err != nil {
		a.logger.WarnContext(ctx, "failed to publish event",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Lookup reports whether the hex digest is a known signature.
func (a *App) Lookup(ctx context.Context, hex string) (bool, error) {
	d, err := types.ParseDigest(hex)
	if err != nil {
		return false, err
	}
	return a.store.Contains(ctx, d)
}

// Info describes the signature database and settings.
type Info struct {
	Stats    *engine.Stats             `json:"stats"`
	Settings config.Settings           `json:"settings"`
	Status   dbupdater.SchedulerStatus `json:"status"`
}

// DBInfo collects Info.
func (a *App) DBInfo() (*Info, error) {
	stats, err := a.store.Stats()
	if err != nil {
		return nil, err
	}
	settings, err := a.settings.Load()
	if err != nil {
		return nil, err
	}
	return &Info{Stats: stats, Settings: settings, Status: a.scheduler.Status().Get()}, nil
}
