// ABOUTME: Unit tests for the GCS mirror client
// ABOUTME: Uses an httptest emulator to exercise streaming reads without real GCS

package gcs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseGCSURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{
			name:       "valid uri",
			uri:        "gs://warden-mirror/signatures/md5/full.txt.gz",
			wantBucket: "warden-mirror",
			wantObject: "signatures/md5/full.txt.gz",
		},
		{
			name:       "bucket only",
			uri:        "gs://bucket-only/",
			wantBucket: "bucket-only",
		},
		{name: "invalid scheme", uri: "s3://bucket/object", wantErr: true},
		{name: "missing scheme", uri: "bucket/object", wantErr: true},
		{name: "empty uri", uri: "", wantErr: true},
		{name: "missing bucket", uri: "gs:///object", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bucket, object, err := ParseGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseGCSURI(%q) error = %v, wantErr %v", tt.uri, err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("ParseGCSURI(%q) = (%q, %q), want (%q, %q)",
					tt.uri, bucket, object, tt.wantBucket, tt.wantObject)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail without bucket")
	}
	cfg.Bucket = "b"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func newEmulatorClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), Config{
		Bucket:       "warden-mirror",
		EmulatorHost: srv.URL,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Open_Emulator(t *testing.T) {
	t.Parallel()

	const body = "44d88612fea8a8f36de82e1278abb02f\n"
	paths := make(chan string, 1)
	c := newEmulatorClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.EscapedPath()
		if r.URL.Query().Get("alt") != "media" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, body)
	})

	if !c.IsEmulatorMode() {
		t.Fatal("IsEmulatorMode() = false")
	}

	obj, err := c.Open(context.Background(), "gs://warden-mirror/md5/list.txt")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != body {
		t.Errorf("body = %q, want %q", data, body)
	}
	if obj.Size != int64(len(body)) {
		t.Errorf("Size = %d, want %d", obj.Size, len(body))
	}
	if gotPath := <-paths; !strings.HasSuffix(gotPath, "/b/warden-mirror/o/md5%2Flist.txt") {
		t.Errorf("request path = %q", gotPath)
	}
}

func TestClient_Open_NotFound(t *testing.T) {
	t.Parallel()

	c := newEmulatorClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.Open(context.Background(), "missing.txt")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Open() error = %v, want ErrObjectNotFound", err)
	}
}

func TestClient_Open_RejectsOtherBucket(t *testing.T) {
	t.Parallel()

	c := newEmulatorClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	})

	for _, name := range []string{"gs://other/obj", "gs://warden-mirror/", ""} {
		if _, err := c.Open(context.Background(), name); err == nil {
			t.Errorf("Open(%q) error = nil", name)
		}
	}
}
