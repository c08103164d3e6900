// ABOUTME: Mutable persisted settings edited at runtime by the CLI and the app
// ABOUTME: TOML file in the data dir, with an fsnotify watcher for live reloads

package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// SettingsFileName is the settings file inside the data dir.
const SettingsFileName = "warden.settings.toml"

// NeverUpdated is LastDBUpdate before the first successful refresh.
const NeverUpdated = "Never"

// Settings keys accepted by Set.
const (
	KeyLoggingActive  = "logging_active"
	KeyObfuscatedMode = "obfuscated_mode"
	KeyUpdateWeekday  = "update_weekday"
	KeyUpdateTime     = "update_time"
)

// Settings is the mutable persisted record.
type Settings struct {
	HashesInDB     int64  `toml:"hashes_in_db" json:"hashes_in_db"`
	LastDBUpdate   string `toml:"last_db_update" json:"last_db_update"`
	LoggingActive  bool   `toml:"logging_active" json:"logging_active"`
	ObfuscatedMode bool   `toml:"obfuscated_mode" json:"obfuscated_mode"`

	// UpdateWeekday is 0 (Sunday) to 6, or -1 for no schedule.
	UpdateWeekday int `toml:"update_weekday" json:"update_weekday"`

	// UpdateTime is "HH:MM:SS"; only the hour is used.
	UpdateTime string `toml:"update_time" json:"update_time"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() Settings {
	return Settings{
		HashesInDB:     0,
		LastDBUpdate:   NeverUpdated,
		LoggingActive:  false,
		ObfuscatedMode: true,
		UpdateWeekday:  types.ScheduleDisabled,
		UpdateTime:     "22:00:00",
	}
}

// Schedule derives the update schedule.
func (s Settings) Schedule() (types.UpdateSchedule, error) {
	hour, err := parseHour(s.UpdateTime)
	if err != nil {
		return types.UpdateSchedule{}, err
	}
	sched := types.UpdateSchedule{Hour: hour, Weekday: s.UpdateWeekday}
	if err := sched.Validate(); err != nil {
		return types.UpdateSchedule{}, err
	}
	return sched, nil
}

// Validate checks the schedule fields.
func (s Settings) Validate() error {
	_, err := s.Schedule()
	return err
}

// RecordRefresh stores the outcome of a successful refresh.
func (s *Settings) RecordRefresh(count int64, at time.Time) {
	s.HashesInDB = count
	s.LastDBUpdate = at.UTC().Format(time.RFC3339)
}

// Get returns the string value of key.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case KeyLoggingActive:
		return strconv.FormatBool(s.LoggingActive), nil
	case KeyObfuscatedMode:
		return strconv.FormatBool(s.ObfuscatedMode), nil
	case KeyUpdateWeekday:
		return strconv.Itoa(s.UpdateWeekday), nil
	case KeyUpdateTime:
		return s.UpdateTime, nil
	default:
		return "", fmt.Errorf("unknown setting %q", key)
	}
}

// Set parses value into key. Read-only fields cannot be set.
func (s *Settings) Set(key, value string) error {
	switch key {
	case KeyLoggingActive, KeyObfuscatedMode:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if key == KeyLoggingActive {
			s.LoggingActive = b
		} else {
			s.ObfuscatedMode = b
		}
	case KeyUpdateWeekday:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		s.UpdateWeekday = n
	case KeyUpdateTime:
		s.UpdateTime = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return s.Validate()
}

// SettingsKeys lists the keys accepted by Set.
func SettingsKeys() []string {
	return []string{KeyLoggingActive, KeyObfuscatedMode, KeyUpdateWeekday, KeyUpdateTime}
}

func parseHour(hms string) (int, error) {
	head, _, _ := strings.Cut(hms, ":")
	hour, err := strconv.Atoi(head)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid update time %q", hms)
	}
	return hour, nil
}

// SettingsStore serializes access to the settings file.
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

// NewSettingsStore returns a store for path.
func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Path returns the file path.
func (s *SettingsStore) Path() string {
	return s.path
}

// Load reads the settings. A missing file yields the defaults.
func (s *SettingsStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *SettingsStore) load() (Settings, error) {
	settings := DefaultSettings()
	_, err := toml.DecodeFile(s.path, &settings)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading settings %s: %w", s.path, err)
	}
	return settings, nil
}

// Save replaces the file atomically.
func (s *SettingsStore) Save(settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(settings)
}

func (s *SettingsStore) save(settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*.toml")
	if err != nil {
		return fmt.Errorf("creating temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := toml.NewEncoder(tmp).Encode(settings); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Update loads, applies fn and saves. Nothing is written if fn fails.
func (s *SettingsStore) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.load()
	if err != nil {
		return Settings{}, err
	}
	if err := fn(&settings); err != nil {
		return Settings{}, err
	}
	if err := s.save(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// WatchSettings calls onChange with the new settings whenever the file
// is written or replaced, until ctx ends. Unreadable versions are logged
// and skipped.
func WatchSettings(ctx context.Context, store *SettingsStore, logger *slog.Logger, onChange func(Settings)) error {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	// The directory is watched so atomic renames are seen.
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(store.Path()) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				settings, err := store.Load()
				if err != nil {
					logger.Error("failed to reload settings", slog.String("error", err.Error()))
					continue
				}
				logger.Info("settings file changed", slog.String("path", store.Path()))
				onChange(settings)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", slog.String("error", err.Error()))
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
