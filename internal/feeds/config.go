// ABOUTME: Feed configuration and construction of the configured source set
// ABOUTME: Maps source names from the config file to concrete Source values

package feeds

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hikmaai-io/hikmaai-warden/internal/gcs"
)

// Source names accepted in Config.Sources.
const (
	SourceEICAR         = "eicar"
	SourceVirusShare    = "virusshare"
	SourceMalwareBazaar = "malwarebazaar"
	SourceMirror        = "mirror"
	SourceFile          = "file"
)

// Config selects and configures feed sources.
type Config struct {
	// Sources lists the feeds to combine, in order.
	Sources []string `yaml:"sources" mapstructure:"sources"`

	// Download configures HTTP fetching.
	Download DownloaderConfig `yaml:"download" mapstructure:"download"`

	VirusShare struct {
		// URLTemplate is a fmt pattern taking the shard index.
		URLTemplate string `yaml:"url_template" mapstructure:"url_template"`

		// Shards is the number of shards; 0 discovers them.
		Shards int `yaml:"shards" mapstructure:"shards"`
	} `yaml:"virusshare" mapstructure:"virusshare"`

	MalwareBazaar struct {
		URL string `yaml:"url" mapstructure:"url"`
	} `yaml:"malwarebazaar" mapstructure:"malwarebazaar"`

	Mirror struct {
		GCS     gcs.Config `yaml:"gcs" mapstructure:"gcs"`
		Objects []string   `yaml:"objects" mapstructure:"objects"`
	} `yaml:"mirror" mapstructure:"mirror"`

	File struct {
		Path string `yaml:"path" mapstructure:"path"`
	} `yaml:"file" mapstructure:"file"`
}

// DefaultConfig returns the default feed configuration.
func DefaultConfig() Config {
	var cfg Config
	cfg.Sources = []string{SourceVirusShare, SourceEICAR}
	cfg.Download = DefaultDownloaderConfig()
	cfg.VirusShare.URLTemplate = VirusShareDefaultURL
	cfg.MalwareBazaar.URL = MalwareBazaarDefaultURL
	return cfg
}

// Open builds the configured sources. The caller must Close the result.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*MultiSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no feed sources configured")
	}

	downloader := NewDownloader(&cfg.Download, logger)
	multi := &MultiSource{}

	for _, name := range cfg.Sources {
		switch name {
		case SourceEICAR:
			multi.sources = append(multi.sources, NewEICARSource())
		case SourceVirusShare:
			multi.sources = append(multi.sources,
				NewShardedSource(SourceVirusShare, cfg.VirusShare.URLTemplate, cfg.VirusShare.Shards, downloader, logger))
		case SourceMalwareBazaar:
			multi.sources = append(multi.sources,
				NewMalwareBazaarSource(cfg.MalwareBazaar.URL, downloader, logger))
		case SourceFile:
			if cfg.File.Path == "" {
				multi.Close()
				return nil, fmt.Errorf("feed %q requires file.path", name)
			}
			fs := NewFileSource(cfg.File.Path)
			fs.maxSize = cfg.Download.MaxSize
			multi.sources = append(multi.sources, fs)
		case SourceMirror:
			client, err := gcs.NewClient(ctx, cfg.Mirror.GCS)
			if err != nil {
				multi.Close()
				return nil, fmt.Errorf("feed %q: creating GCS client: %w", name, err)
			}
			multi.closers = append(multi.closers, client)
			multi.sources = append(multi.sources,
				NewMirrorSource(client, cfg.Mirror.Objects, cfg.Download.MaxSize))
		default:
			multi.Close()
			return nil, fmt.Errorf("unknown feed source %q", name)
		}
	}

	return multi, nil
}
