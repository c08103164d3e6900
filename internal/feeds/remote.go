// ABOUTME: Hash list sources fetched over HTTP, single-file and sharded
// ABOUTME: Covers the MalwareBazaar MD5 export and VirusShare-style numbered shards

package feeds

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// Default feed locations.
const (
	MalwareBazaarDefaultURL = "https://bazaar.abuse.ch/export/txt/md5/full/"
	VirusShareDefaultURL    = "https://virusshare.com/hashfiles/VirusShare_%05d.md5"
)

// URLSource streams one hash list, optionally compressed, from a URL.
type URLSource struct {
	name       string
	url        string
	downloader *Downloader
	logger     *slog.Logger
}

// NewURLSource creates a source named name reading url.
func NewURLSource(name, url string, downloader *Downloader, logger *slog.Logger) *URLSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &URLSource{name: name, url: url, downloader: downloader, logger: logger}
}

// NewMalwareBazaarSource creates a source for the MalwareBazaar MD5 export.
// An empty url selects MalwareBazaarDefaultURL.
func NewMalwareBazaarSource(url string, downloader *Downloader, logger *slog.Logger) *URLSource {
	if url == "" {
		url = MalwareBazaarDefaultURL
	}
	return NewURLSource("malwarebazaar", url, downloader, logger)
}

// Name returns the name of the feed.
func (s *URLSource) Name() string {
	return s.name
}

// URL returns the feed location.
func (s *URLSource) URL() string {
	return s.url
}

// Stream downloads and parses the hash list.
func (s *URLSource) Stream(ctx context.Context, emit func(types.Digest) error, progress func(float64)) error {
	stats, err := fetchHashList(ctx, s.downloader, s.url, emit, progress)
	if err != nil {
		return fmt.Errorf("streaming %s feed: %w", s.name, err)
	}

	s.logger.Debug("feed parsed",
		slog.String("feed", s.name),
		slog.Int64("digests", stats.Digests),
		slog.Int64("invalid", stats.Invalid),
	)
	report(progress, 1)
	return nil
}

// ShardedSource streams a numbered series of hash lists.
type ShardedSource struct {
	name       string
	template   string
	shards     int
	downloader *Downloader
	logger     *slog.Logger
}

// NewShardedSource creates a source over template, a fmt pattern taking
// the zero-based shard index. With shards <= 0 shards are fetched until
// the server answers 404; progress is then only reported at the end.
func NewShardedSource(name, template string, shards int, downloader *Downloader, logger *slog.Logger) *ShardedSource {
	if template == "" {
		template = VirusShareDefaultURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShardedSource{
		name:       name,
		template:   template,
		shards:     shards,
		downloader: downloader,
		logger:     logger,
	}
}

// Name returns the name of the feed.
func (s *ShardedSource) Name() string {
	return s.name
}

// ShardURL returns the URL of shard i.
func (s *ShardedSource) ShardURL(i int) string {
	return fmt.Sprintf(s.template, i)
}

// Stream fetches every shard in order.
func (s *ShardedSource) Stream(ctx context.Context, emit func(types.Digest) error, progress func(float64)) error {
	var total ParseStats

	for i := 0; s.shards <= 0 || i < s.shards; i++ {
		var shardProgress func(float64)
		if s.shards > 0 {
			shardProgress = scaled(progress, float64(i)/float64(s.shards), float64(i+1)/float64(s.shards))
		}

		stats, err := fetchHashList(ctx, s.downloader, s.ShardURL(i), emit, shardProgress)
		if err != nil {
			// Discovery ends at the first missing shard.
			if s.shards <= 0 && i > 0 && errors.Is(err, ErrNotFound) {
				break
			}
			return fmt.Errorf("streaming %s shard %d: %w", s.name, i, err)
		}
		total.Add(stats)

		s.logger.Debug("feed shard parsed",
			slog.String("feed", s.name),
			slog.Int("shard", i),
			slog.Int64("digests", stats.Digests),
		)
	}

	s.logger.Debug("feed parsed",
		slog.String("feed", s.name),
		slog.Int64("digests", total.Digests),
		slog.Int64("invalid", total.Invalid),
	)
	report(progress, 1)
	return nil
}

// fetchHashList downloads url, unwraps any archive, and parses it.
func fetchHashList(ctx context.Context, d *Downloader, url string, emit func(types.Digest) error, progress func(float64)) (ParseStats, error) {
	body, err := d.Open(ctx, url)
	if err != nil {
		return ParseStats{}, err
	}
	defer body.Close()

	content, err := decompressIfNeeded(newProgressReader(body, body.Size, progress), d.MaxSize())
	if err != nil {
		return ParseStats{}, fmt.Errorf("decompressing %s: %w", url, err)
	}
	defer content.Close()

	return ParseHashList(ctx, content, emit)
}
