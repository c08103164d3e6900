// ABOUTME: Static configuration loading and defaults for hikmaai-warden
// ABOUTME: Reads an optional TOML file through viper with WARDEN_ env overrides

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hikmaai-io/hikmaai-warden/internal/engine"
	"github.com/hikmaai-io/hikmaai-warden/internal/feeds"
	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// AppName names the default directories and config file.
const AppName = "hikmaai-warden"

// EnvPrefix prefixes environment overrides, e.g. WARDEN_LOG_LEVEL.
const EnvPrefix = "WARDEN"

// Config holds the complete static configuration.
type Config struct {
	// Data directory for BadgerDB, the bloom filter and the settings file.
	DataDir string `mapstructure:"data_dir"`

	// LogDir receives app.log and the per-run logs.
	LogDir string `mapstructure:"log_dir"`

	Log observability.LoggingConfig `mapstructure:"log"`

	Tracing observability.TracingConfig `mapstructure:"tracing"`

	Scan ScanConfig `mapstructure:"scan"`

	Bloom engine.BloomConfig `mapstructure:"bloom"`

	// Feeds selects and configures the signature sources.
	Feeds feeds.Config `mapstructure:"feeds"`

	NATS NATSConfig `mapstructure:"nats"`

	HTTP HTTPConfig `mapstructure:"http"`
}

// ScanConfig holds scanner tuning.
type ScanConfig struct {
	// ChunkSize is the hashing read size in bytes.
	ChunkSize int `mapstructure:"chunk_size"`

	// FilesPerSecond throttles hashing; 0 is unlimited.
	FilesPerSecond float64 `mapstructure:"files_per_second"`

	// FalsePositives replaces the built-in list when set.
	FalsePositives []string `mapstructure:"false_positives"`

	// DetectFileType records the content type of matches.
	DetectFileType bool `mapstructure:"detect_file_type"`

	// CacheTTL keeps digests of unchanged files; 0 disables the cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	// URL enables event publishing when set.
	URL string `mapstructure:"url"`

	// Subject receives scan and update events.
	Subject string `mapstructure:"subject"`

	// LookupSubject serves digest lookups; empty disables them.
	LookupSubject string `mapstructure:"lookup_subject"`

	QueueGroup string `mapstructure:"queue_group"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	// Addr enables the status API when set (e.g. ":8080").
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns a Config with default values.
// NATS, HTTP and tracing are disabled by default.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		LogDir:  DefaultLogDir(),
		Log: observability.LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.TracingConfig{
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
		Scan: ScanConfig{
			ChunkSize:      64 * 1024,
			DetectFileType: true,
		},
		Bloom: engine.BloomConfig{
			ExpectedItems:     engine.DefaultExpectedItems,
			FalsePositiveRate: engine.DefaultFalsePositiveRate,
		},
		Feeds: feeds.DefaultConfig(),
		NATS: NATSConfig{
			Subject:       "warden.events",
			LookupSubject: "warden.lookup",
			QueueGroup:    "warden",
		},
	}
}

// Load reads path (optional) over the defaults and applies environment
// overrides. An empty path skips the file; a missing file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads DefaultConfigPath if it exists, else the defaults.
func LoadDefault() (*Config, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		path = ""
	}
	return Load(path)
}

// setDefaults registers every key so environment overrides apply.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("log_dir", d.LogDir)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.add_source", d.Log.AddSource)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.sampling_ratio", d.Tracing.SamplingRatio)

	v.SetDefault("scan.chunk_size", d.Scan.ChunkSize)
	v.SetDefault("scan.files_per_second", d.Scan.FilesPerSecond)
	v.SetDefault("scan.false_positives", d.Scan.FalsePositives)
	v.SetDefault("scan.detect_file_type", d.Scan.DetectFileType)
	v.SetDefault("scan.cache_ttl", d.Scan.CacheTTL)

	v.SetDefault("bloom.expected_items", d.Bloom.ExpectedItems)
	v.SetDefault("bloom.false_positive_rate", d.Bloom.FalsePositiveRate)

	f := d.Feeds
	v.SetDefault("feeds.sources", f.Sources)
	v.SetDefault("feeds.download.timeout", f.Download.Timeout)
	v.SetDefault("feeds.download.user_agent", f.Download.UserAgent)
	v.SetDefault("feeds.download.max_size", f.Download.MaxSize)
	v.SetDefault("feeds.download.retry.max_retries", f.Download.Retry.MaxRetries)
	v.SetDefault("feeds.download.retry.initial_delay", f.Download.Retry.InitialDelay)
	v.SetDefault("feeds.download.retry.max_delay", f.Download.Retry.MaxDelay)
	v.SetDefault("feeds.download.retry.multiplier", f.Download.Retry.Multiplier)
	v.SetDefault("feeds.download.retry.jitter_fraction", f.Download.Retry.JitterFraction)
	v.SetDefault("feeds.virusshare.url_template", f.VirusShare.URLTemplate)
	v.SetDefault("feeds.virusshare.shards", f.VirusShare.Shards)
	v.SetDefault("feeds.malwarebazaar.url", f.MalwareBazaar.URL)
	v.SetDefault("feeds.mirror.gcs.bucket", f.Mirror.GCS.Bucket)
	v.SetDefault("feeds.mirror.gcs.credentials_file", f.Mirror.GCS.CredentialsFile)
	v.SetDefault("feeds.mirror.gcs.emulator_host", f.Mirror.GCS.EmulatorHost)
	v.SetDefault("feeds.mirror.objects", f.Mirror.Objects)
	v.SetDefault("feeds.file.path", f.File.Path)

	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.subject", d.NATS.Subject)
	v.SetDefault("nats.lookup_subject", d.NATS.LookupSubject)
	v.SetDefault("nats.queue_group", d.NATS.QueueGroup)
	v.SetDefault("http.addr", d.HTTP.Addr)
}

// Validate checks field ranges and formats.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.Scan.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("scan.chunk_size must be positive, got %d", c.Scan.ChunkSize))
	}
	if c.Scan.FilesPerSecond < 0 {
		errs = append(errs, errors.New("scan.files_per_second must not be negative"))
	}
	if _, err := c.FalsePositiveDigests(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Feeds.Sources) == 0 {
		errs = append(errs, errors.New("feeds.sources must name at least one source"))
	}
	if err := c.Feeds.Download.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feeds.download.retry: %w", err))
	}
	if c.NATS.URL != "" && c.NATS.Subject == "" {
		errs = append(errs, errors.New("nats.subject is required when nats.url is set"))
	}
	return errors.Join(errs...)
}

// FalsePositiveDigests parses Scan.FalsePositives. Nil means the
// scanner's built-in list.
func (c *Config) FalsePositiveDigests() ([]types.Digest, error) {
	if len(c.Scan.FalsePositives) == 0 {
		return nil, nil
	}
	out := make([]types.Digest, 0, len(c.Scan.FalsePositives))
	for _, s := range c.Scan.FalsePositives {
		d, err := types.ParseDigest(s)
		if err != nil {
			return nil, fmt.Errorf("scan.false_positives: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// StorePath is the Badger directory.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "signatures")
}

// SettingsPath is the persisted settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.DataDir, SettingsFileName)
}

// Redacted returns the configuration as a map with secrets masked.
func (c *Config) Redacted() (map[string]any, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return observability.RedactMap(m), nil
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, AppName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/var/lib", AppName)
	}

	return filepath.Join(home, ".local", "share", AppName)
}

// DefaultLogDir returns the default log directory.
func DefaultLogDir() string {
	if xdgState := os.Getenv("XDG_STATE_HOME"); xdgState != "" {
		return filepath.Join(xdgState, AppName, "logs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/var/log", AppName)
	}

	return filepath.Join(home, ".local", "state", AppName, "logs")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, AppName, "config.toml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/etc", AppName, "config.toml")
	}

	return filepath.Join(home, ".config", AppName, "config.toml")
}
