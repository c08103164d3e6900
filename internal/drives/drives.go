// ABOUTME: Removable drive enumeration offered as scan roots
// ABOUTME: Lists /media/$USER entries and removable-looking mounted partitions

package drives

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// ErrUnsupportedOS is returned where drive listing is not implemented.
var ErrUnsupportedOS = errors.New("drive listing not supported on this OS")

// Drive is a mounted volume that can be scanned.
type Drive struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Device     string `json:"device,omitempty"`
	FSType     string `json:"fs_type,omitempty"`
	TotalBytes uint64 `json:"total_bytes,omitempty"`
	FreeBytes  uint64 `json:"free_bytes,omitempty"`
}

// removableRoots are mount prefixes used by desktop automounters.
var removableRoots = []string{"/media/", "/run/media/", "/mnt/", "/Volumes/"}

// Lister enumerates drives. The zero value uses the real system.
type Lister struct {
	// MediaDir overrides /media/$USER.
	MediaDir string

	// Partitions overrides the partition source.
	Partitions func(ctx context.Context) ([]disk.PartitionStat, error)

	// Usage overrides the usage source.
	Usage func(ctx context.Context, path string) (*disk.UsageStat, error)

	Logger *slog.Logger
}

// List returns the removable drives of the current system.
func List(ctx context.Context) ([]Drive, error) {
	return (&Lister{}).List(ctx)
}

// List returns drives sorted by path, deduplicated by mount point.
func (l *Lister) List(ctx context.Context) ([]Drive, error) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" && l.Partitions == nil {
		return nil, ErrUnsupportedOS
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	byPath := make(map[string]Drive)

	if dir := l.mediaDir(); dir != "" {
		entries, err := os.ReadDir(dir)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		default:
			for _, e := range entries {
				path := filepath.Join(dir, e.Name())
				byPath[path] = Drive{Name: e.Name(), Path: path}
			}
		}
	}

	partitions := l.Partitions
	if partitions == nil {
		partitions = func(ctx context.Context) ([]disk.PartitionStat, error) {
			return disk.PartitionsWithContext(ctx, false)
		}
	}
	parts, err := partitions(ctx)
	if err != nil {
		logger.WarnContext(ctx, "failed to list partitions", slog.String("error", err.Error()))
	}
	for _, p := range parts {
		if !isRemovableMount(p.Mountpoint) {
			continue
		}
		d := byPath[p.Mountpoint]
		d.Path = p.Mountpoint
		if d.Name == "" {
			d.Name = filepath.Base(p.Mountpoint)
		}
		d.Device = p.Device
		d.FSType = p.Fstype
		byPath[p.Mountpoint] = d
	}

	usage := l.Usage
	if usage == nil {
		usage = disk.UsageWithContext
	}

	out := make([]Drive, 0, len(byPath))
	for _, d := range byPath {
		if u, err := usage(ctx, d.Path); err == nil {
			d.TotalBytes = u.Total
			d.FreeBytes = u.Free
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	logger.InfoContext(ctx, "listed drives", slog.Int("count", len(out)))
	return out, nil
}

func (l *Lister) mediaDir() string {
	if l.MediaDir != "" {
		return l.MediaDir
	}
	if user := os.Getenv("USER"); user != "" {
		return filepath.Join("/media", user)
	}
	return ""
}

func isRemovableMount(mountpoint string) bool {
	for _, root := range removableRoots {
		if strings.HasPrefix(mountpoint, root) {
			return true
		}
	}
	return false
}
