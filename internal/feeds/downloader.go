// ABOUTME: HTTP downloader streaming feed data from remote URLs
// ABOUTME: Retries transient failures with exponential backoff before the body is read

package feeds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/resilience"
)

// ErrNotFound is returned when the server reports the resource does not exist.
var ErrNotFound = errors.New("feed resource not found")

// ErrTooLarge is returned once a feed body or its decompressed payload
// grows past the configured size limit.
var ErrTooLarge = errors.New("feed exceeds size limit")

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d from %s", e.Code, e.URL)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// DownloaderConfig holds configuration for the HTTP downloader.
type DownloaderConfig struct {
	// Timeout bounds connection setup and response headers.
	// The body is streamed without a deadline other than the context.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// UserAgent for HTTP requests.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`

	// MaxSize limits the maximum download size in bytes (0 = unlimited).
	MaxSize int64 `yaml:"max_size" mapstructure:"max_size"`

	// Retry configures retries of failed requests.
	Retry resilience.BackoffConfig `yaml:"retry" mapstructure:"retry"`
}

// DefaultDownloaderConfig returns sensible default configuration.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Timeout:   time.Minute,
		UserAgent: "hikmaai-warden/1.0",
		MaxSize:   1024 * 1024 * 1024, // 1GB max
		Retry:     resilience.DefaultBackoffConfig(),
	}
}

// Body is an open response body.
type Body struct {
	io.ReadCloser

	// Size is the content length, or -1 if unknown.
	Size int64
}

// Downloader handles HTTP downloads for feed data.
type Downloader struct {
	client *http.Client
	config DownloaderConfig
	logger *slog.Logger
}

// NewDownloader creates a new HTTP downloader.
// If config is nil, default configuration is used.
func NewDownloader(config *DownloaderConfig, logger *slog.Logger) *Downloader {
	cfg := DefaultDownloaderConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	transport.TLSHandshakeTimeout = cfg.Timeout

	return &Downloader{
		client: &http.Client{Transport: transport},
		config: cfg,
		logger: logger,
	}
}

// MaxSize returns the configured download limit.
func (d *Downloader) MaxSize() int64 {
	return d.config.MaxSize
}

// Open requests url and returns the response body for streaming.
// Only the request is retried; a failure while reading the body is final.
func (d *Downloader) Open(ctx context.Context, url string) (*Body, error) {
	var body *Body

	err := resilience.Retry(ctx, d.config.Retry, func(ctx context.Context) error {
		b, err := d.open(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		d.logger.Warn("feed download failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

// open performs a single request. Non-transient failures are marked permanent.
func (d *Downloader) open(ctx context.Context, url string) (*Body, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, resilience.Permanent(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("User-Agent", d.config.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, resilience.Permanent(fmt.Errorf("%s: %w", url, ErrNotFound))
	default:
		resp.Body.Close()
		statusErr := &StatusError{URL: url, Code: resp.StatusCode}
		if statusErr.Temporary() {
			return nil, statusErr
		}
		return nil, resilience.Permanent(statusErr)
	}

	if d.config.MaxSize > 0 && resp.ContentLength > d.config.MaxSize {
		resp.Body.Close()
		return nil, resilience.Permanent(fmt.Errorf("%s: content length %d exceeds limit %d",
			url, resp.ContentLength, d.config.MaxSize))
	}

	var rc io.ReadCloser = resp.Body
	if d.config.MaxSize > 0 {
		rc = &limitedBody{Reader: newCappedReader(resp.Body, d.config.MaxSize), closer: resp.Body}
	}

	return &Body{ReadCloser: rc, Size: resp.ContentLength}, nil
}

// Download fetches the full content of url.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	body, err := d.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return data, nil
}

type limitedBody struct {
	io.Reader
	closer io.Closer
}

func (b *limitedBody) Close() error {
	return b.closer.Close()
}

// cappedReader fails with ErrTooLarge instead of ending cleanly at limit,
// so a truncated feed never parses as a complete one.
type cappedReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func newCappedReader(r io.Reader, limit int64) *cappedReader {
	return &cappedReader{r: io.LimitReader(r, limit+1), limit: limit}
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.read > c.limit {
		n -= int(c.read - c.limit)
		c.read = c.limit + 1
		return max(n, 0), fmt.Errorf("%w of %d bytes", ErrTooLarge, c.limit)
	}
	return n, err
}
