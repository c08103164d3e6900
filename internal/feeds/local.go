// ABOUTME: Hash list sources read from local files and GCS mirror objects
// ABOUTME: Used for offline installs and self-hosted signature mirrors

package feeds

import (
	"context"
	"fmt"
	"os"

	"github.com/hikmaai-io/hikmaai-warden/internal/gcs"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// FileSource streams a hash list from a local file.
type FileSource struct {
	path    string
	maxSize int64
}

// NewFileSource creates a source reading path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name returns the name of the feed.
func (s *FileSource) Name() string {
	return "file"
}

// Stream parses the file.
func (s *FileSource) Stream(ctx context.Context, emit func(types.Digest) error, progress func(float64)) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening hash list: %w", err)
	}
	defer f.Close()

	var size int64 = -1
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	content, err := decompressIfNeeded(newProgressReader(f, size, progress), s.maxSize)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", s.path, err)
	}
	defer content.Close()

	if _, err := ParseHashList(ctx, content, emit); err != nil {
		return fmt.Errorf("parsing %s: %w", s.path, err)
	}

	report(progress, 1)
	return nil
}

// ObjectOpener opens objects for streaming.
type ObjectOpener interface {
	Open(ctx context.Context, objectPath string) (*gcs.Object, error)
}

// MirrorSource streams hash lists from objects in a GCS bucket.
type MirrorSource struct {
	opener  ObjectOpener
	objects []string
	maxSize int64
}

// NewMirrorSource creates a source reading objects in order.
func NewMirrorSource(opener ObjectOpener, objects []string, maxSize int64) *MirrorSource {
	return &MirrorSource{opener: opener, objects: objects, maxSize: maxSize}
}

// Name returns the name of the feed.
func (s *MirrorSource) Name() string {
	return "mirror"
}

// Stream reads every object.
func (s *MirrorSource) Stream(ctx context.Context, emit func(types.Digest) error, progress func(float64)) error {
	if len(s.objects) == 0 {
		return fmt.Errorf("mirror has no objects configured")
	}

	n := float64(len(s.objects))
	for i, object := range s.objects {
		if err := s.streamObject(ctx, object, emit, scaled(progress, float64(i)/n, float64(i+1)/n)); err != nil {
			return err
		}
	}

	report(progress, 1)
	return nil
}

func (s *MirrorSource) streamObject(ctx context.Context, object string, emit func(types.Digest) error, progress func(float64)) error {
	obj, err := s.opener.Open(ctx, object)
	if err != nil {
		return fmt.Errorf("opening mirror object: %w", err)
	}
	defer obj.Close()

	content, err := decompressIfNeeded(newProgressReader(obj, obj.Size, progress), s.maxSize)
	if err != nil {
		return fmt.Errorf("decompressing %s: %w", object, err)
	}
	defer content.Close()

	if _, err := ParseHashList(ctx, content, emit); err != nil {
		return fmt.Errorf("parsing %s: %w", object, err)
	}
	return nil
}
