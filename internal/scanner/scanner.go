// ABOUTME: Directory scanner hashing every regular file and checking the signature store
// ABOUTME: Two passes: a size pre-pass for exact progress, then a deterministic walk

package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/h2non/filetype"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/hikmaai-io/hikmaai-warden/internal/observability"
	"github.com/hikmaai-io/hikmaai-warden/internal/progress"
	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// DefaultChunkSize is the read size used while hashing.
const DefaultChunkSize = 64 * 1024

// DefaultFalsePositives are digests known to be benign despite matching
// entries in public hash lists.
var DefaultFalsePositives = []types.Digest{
	"7dea362b3fac8e00956a4952a3d4f474",
	"81051bcc2cf1bedf378224b0a93e2877",
}

// Lookup answers signature membership queries.
type Lookup interface {
	Contains(ctx context.Context, d types.Digest) (bool, error)
}

// DigestCache remembers digests of unchanged files between scans.
type DigestCache interface {
	Get(ctx context.Context, path string, size int64, modTime time.Time) (types.Digest, bool, error)
	Put(ctx context.Context, path string, size int64, modTime time.Time, d types.Digest) error
}

// Config holds configuration for the scanner.
type Config struct {
	// Store is consulted for every hashed file.
	Store Lookup

	// FalsePositives replaces DefaultFalsePositives when non-nil.
	FalsePositives []types.Digest

	// ChunkSize is the hashing read size. Zero uses DefaultChunkSize.
	ChunkSize int

	// FilesPerSecond throttles hashing. Zero means unlimited.
	FilesPerSecond float64

	// Cache is optional.
	Cache DigestCache

	// DetectFileType records the content type of matched files.
	DetectFileType bool

	// Metrics is optional.
	Metrics *observability.ScanMetrics

	// Logger for scan operations. Nil uses slog.Default().
	Logger *slog.Logger
}

// Scanner walks directory trees looking for known-malicious files.
// It is safe for concurrent use; each SearchFiles call owns its state.
type Scanner struct {
	config         Config
	falsePositives map[types.Digest]struct{}
	bufPool        sync.Pool
	logger         *slog.Logger
}

// New creates a scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Store == nil {
		return nil, errors.New("scanner requires a signature store")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.FalsePositives == nil {
		cfg.FalsePositives = DefaultFalsePositives
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fp := make(map[types.Digest]struct{}, len(cfg.FalsePositives))
	for _, d := range cfg.FalsePositives {
		fp[d] = struct{}{}
	}

	chunk := cfg.ChunkSize
	return &Scanner{
		config:         cfg,
		falsePositives: fp,
		bufPool: sync.Pool{New: func() any {
			b := make([]byte, chunk)
			return &b
		}},
		logger: cfg.Logger,
	}, nil
}

// job is the state of one SearchFiles call.
type job struct {
	root             string
	stopOnFirstMatch bool
	tracker          *progress.Tracker
	limiter          *rate.Limiter
	report           *types.ScanReport
}

// errStopWalk ends the walk after the first match.
var errStopWalk = errors.New("stop walk")

// SearchFiles scans root and returns a report of matched files in walk order.
// Progress percentages go to sink, which may be nil.
func (s *Scanner) SearchFiles(ctx context.Context, root string, stopOnFirstMatch bool, sink progress.Sink) (*types.ScanReport, error) {
	ctx, span := observability.StartSpan(ctx, "scanner.search_files")
	defer span.End()
	span.SetAttributes(
		attribute.String("scan.root", root),
		attribute.Bool("scan.stop_on_first_match", stopOnFirstMatch),
	)

	if m := s.config.Metrics; m != nil {
		m.IncrementActiveScans()
		defer m.DecrementActiveScans()
	}

	report, err := s.searchFiles(ctx, root, stopOnFirstMatch, sink)
	if m := s.config.Metrics; m != nil && report != nil {
		m.RecordScan(report.Duration(), err == nil)
	}
	if err != nil {
		observability.FailSpan(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("scan.files", report.Stats.Files),
		attribute.Int64("scan.matches", report.Stats.Matched),
	)
	return report, nil
}

func (s *Scanner) searchFiles(ctx context.Context, root string, stopOnFirstMatch bool, sink progress.Sink) (*types.ScanReport, error) {
	report := types.NewScanReport(root)

	walkRoot, err := resolveRoot(root)
	if err != nil {
		return report, scanErr(KindPathInvalid, root, err)
	}

	total, err := folderSize(walkRoot)
	if err != nil {
		return report, scanErr(KindSizeUnavailable, root, err)
	}
	if total == 0 {
		return report, scanErr(KindFolderSizeZero, root, nil)
	}
	report.Stats.BytesTotal = total

	j := &job{
		root:             walkRoot,
		stopOnFirstMatch: stopOnFirstMatch,
		tracker:          progress.NewTracker(sink, total),
		report:           report,
	}
	if s.config.FilesPerSecond > 0 {
		j.limiter = rate.NewLimiter(rate.Limit(s.config.FilesPerSecond), 1)
	}

	s.logger.InfoContext(ctx, "scan started",
		slog.String("root", root),
		slog.Int64("bytes_total", total),
		slog.Bool("stop_on_first_match", stopOnFirstMatch),
	)

	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		return s.visit(ctx, j, path, d, err)
	})
	switch {
	case errors.Is(err, errStopWalk):
		report.StoppedEarly = true
	case err != nil:
		// Only context cancellation escapes visit.
		return report, fmt.Errorf("scan interrupted: %w", err)
	default:
		j.tracker.Complete()
	}

	report.CompletedAt = time.Now().UTC()
	s.logger.InfoContext(ctx, "scan finished",
		slog.String("root", root),
		slog.Int64("analysed", report.Stats.Hashed),
		slog.Int64("skipped", report.Stats.Skipped),
		slog.Int64("infected", report.Stats.Matched),
		slog.Int64("query_failures", report.Stats.QueryFailures),
		slog.Duration("duration", report.Duration()),
	)
	return report, nil
}

// visit classifies one walk entry. Per-entry failures are logged and skipped.
func (s *Scanner) visit(ctx context.Context, j *job, path string, d fs.DirEntry, walkErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if walkErr != nil {
		s.logger.WarnContext(ctx, "skipping unreadable entry", slog.String("path", path), slog.String("error", walkErr.Error()))
		if d != nil && d.IsDir() && path != j.root {
			return filepath.SkipDir
		}
		return nil
	}
	if d.IsDir() {
		return nil
	}

	// Resolve symlinks; links to directories are not descended.
	info, err := os.Stat(path)
	if err != nil {
		s.logger.WarnContext(ctx, "failed getting file metadata", slog.String("path", path), slog.String("error", err.Error()))
		if d.Type().IsRegular() {
			s.record(j, types.VerdictSkipped, 0)
		}
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	verdict, digest := s.checkFile(ctx, j, path, info)
	s.record(j, verdict, info.Size())

	if verdict != types.VerdictInfected {
		return nil
	}

	match := types.Match{Path: path, Digest: digest, Size: info.Size()}
	if s.config.DetectFileType {
		match.FileType = detectFileType(path)
	}
	j.report.Matches = append(j.report.Matches, match)
	s.logger.WarnContext(ctx, "found hash",
		slog.String("digest", digest.String()),
		slog.String("path", path),
	)

	if j.stopOnFirstMatch {
		s.logger.WarnContext(ctx, "stopping early", slog.String("path", path))
		return errStopWalk
	}
	return nil
}

// record counts a verdict and advances progress by the file size.
func (s *Scanner) record(j *job, v types.Verdict, size int64) {
	j.report.Stats.Record(v)
	j.report.Stats.BytesScanned += size
	j.tracker.Advance(size)
	if m := s.config.Metrics; m != nil {
		m.RecordVerdict(v, size)
	}
}

// checkFile hashes path and looks the digest up.
func (s *Scanner) checkFile(ctx context.Context, j *job, path string, info fs.FileInfo) (types.Verdict, types.Digest) {
	digest, ok := s.digest(ctx, path, info)
	if !ok {
		return types.VerdictSkipped, ""
	}

	// False positives are never looked up.
	if _, fp := s.falsePositives[digest]; fp {
		s.logger.DebugContext(ctx, "skipping false positive", slog.String("path", path), slog.String("digest", digest.String()))
		return types.VerdictFalsePositive, digest
	}

	found, err := s.config.Store.Contains(ctx, digest)
	if err != nil {
		s.logger.ErrorContext(ctx, "error checking hash existence",
			slog.String("path", path),
			slog.String("digest", digest.String()),
			slog.Any("error", err),
		)
		j.report.QueryFailures = append(j.report.QueryFailures, path)
		return types.VerdictQueryFailed, digest
	}
	if found {
		return types.VerdictInfected, digest
	}
	return types.VerdictClean, digest
}

// digest returns the file digest, consulting the cache first.
// It returns false for empty or unreadable files.
func (s *Scanner) digest(ctx context.Context, path string, info fs.FileInfo) (types.Digest, bool) {
	cache := s.config.Cache
	if cache != nil {
		if d, ok, err := cache.Get(ctx, path, info.Size(), info.ModTime()); err == nil && ok {
			return d, true
		}
	}

	bufp := s.bufPool.Get().(*[]byte)
	d, ok, err := hashFile(path, *bufp)
	s.bufPool.Put(bufp)
	if err != nil {
		s.logger.WarnContext(ctx, "error while reading", slog.String("path", path), slog.String("error", err.Error()))
		return "", false
	}
	if !ok {
		return "", false
	}

	if cache != nil {
		if err := cache.Put(ctx, path, info.Size(), info.ModTime(), d); err != nil {
			s.logger.DebugContext(ctx, "failed to cache digest", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return d, true
}

// resolveRoot checks root exists and resolves a symlinked root.
func resolveRoot(root string) (string, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return "", err
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		return root, nil
	}
	return filepath.EvalSymlinks(root)
}

// folderSize sums the sizes of every entry under root that resolves to a
// regular file. Symlinked directories are not descended, matching the walk.
func folderSize(root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() {
			return info.Size(), nil
		}
		return 0, nil
	}

	var total int64
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// detectFileType returns the extension of the detected content type.
func detectFileType(path string) string {
	kind, err := filetype.MatchFile(path)
	if err != nil || kind == filetype.Unknown {
		return ""
	}
	return kind.Extension
}
