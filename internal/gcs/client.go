// ABOUTME: Read-only GCS access for the signature mirror feed
// ABOUTME: SDK reads with ADC or a key file, plain JSON API reads against an emulator

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrObjectNotFound is returned when the requested object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Config selects the mirror bucket.
type Config struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`

	// CredentialsFile is a service account key; empty uses ADC.
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`

	// EmulatorHost (or STORAGE_EMULATOR_HOST) switches to plain HTTP.
	EmulatorHost string `yaml:"emulator_host" mapstructure:"emulator_host"`
}

// Validate checks that a bucket is named.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// Object is an open object stream. Size is -1 when unknown.
type Object struct {
	io.ReadCloser
	Size int64
}

type backend interface {
	open(ctx context.Context, bucket, object string) (*Object, error)
	close() error
}

// Client reads objects from one bucket.
type Client struct {
	bucket   string
	backend  backend
	emulated bool
}

// NewClient connects to GCS, or to the emulator when one is configured.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	host := cfg.EmulatorHost
	if host == "" {
		host = os.Getenv("STORAGE_EMULATOR_HOST")
	}
	if host != "" {
		host = strings.TrimPrefix(strings.TrimPrefix(host, "http://"), "https://")
		return &Client{
			bucket:   cfg.Bucket,
			backend:  &emulatorBackend{host: host, http: &http.Client{}},
			emulated: true,
		}, nil
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	sc, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Client{bucket: cfg.Bucket, backend: &sdkBackend{client: sc}}, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.backend.close()
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// IsEmulatorMode reports whether reads go to an emulator.
func (c *Client) IsEmulatorMode() bool {
	return c.emulated
}

// Open streams name, which is either an object path in the configured
// bucket or a gs:// URI naming that bucket. The caller closes it.
func (c *Client) Open(ctx context.Context, name string) (*Object, error) {
	object := name
	if strings.HasPrefix(name, "gs://") {
		bucket, path, err := ParseGCSURI(name)
		if err != nil {
			return nil, err
		}
		if bucket != c.bucket {
			return nil, fmt.Errorf("%s: bucket %q is not the mirror bucket %q", name, bucket, c.bucket)
		}
		object = path
	}
	if object == "" {
		return nil, errors.New("object path is required")
	}

	obj, err := c.backend.open(ctx, c.bucket, object)
	if err != nil {
		return nil, fmt.Errorf("opening gs://%s/%s: %w", c.bucket, object, err)
	}
	return obj, nil
}

type sdkBackend struct {
	client *storage.Client
}

func (b *sdkBackend) open(ctx context.Context, bucket, object string) (*Object, error) {
	r, err := b.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Object{ReadCloser: r, Size: r.Attrs.Size}, nil
}

func (b *sdkBackend) close() error {
	return b.client.Close()
}

// emulatorBackend uses the JSON API media download, which emulators
// such as fake-gcs-server serve without authentication.
type emulatorBackend struct {
	host string
	http *http.Client
}

func (b *emulatorBackend) open(ctx context.Context, bucket, object string) (*Object, error) {
	u := fmt.Sprintf("http://%s/storage/v1/b/%s/o/%s?alt=media", b.host, bucket, url.PathEscape(object))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return &Object{ReadCloser: resp.Body, Size: resp.ContentLength}, nil
	}

	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrObjectNotFound
	}
	return nil, fmt.Errorf("emulator returned HTTP %d", resp.StatusCode)
}

func (b *emulatorBackend) close() error {
	b.http.CloseIdleConnections()
	return nil
}

// ParseGCSURI splits gs://bucket/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("invalid GCS URI %q: must start with gs://", uri)
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("invalid GCS URI %q: missing bucket", uri)
	}
	return bucket, object, nil
}
