// ABOUTME: Per-run plain-text logs for database updates and scans
// ABOUTME: One file per run named by its local start time, suffixed when runs share a second

package runlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// TimestampLayout names run log files.
const TimestampLayout = "2006_01_02_15_04_05"

// Kind selects the run log subdirectory.
type Kind string

// Run log kinds.
const (
	KindUpdates Kind = "updates"
	KindScans   Kind = "scans"
)

// Log is an open run log. It is safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
	now  func() time.Time
}

// maxSameSecondRuns bounds the _N suffixes tried for one start second.
const maxSameSecondRuns = 1000

// Create creates a new run log for a run that started at start. A run
// starting in the same second as an earlier one gets a _1, _2, ... suffix.
func Create(dir string, kind Kind, start time.Time) (*Log, error) {
	sub := filepath.Join(dir, string(kind))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return nil, fmt.Errorf("creating run log dir: %w", err)
	}

	for seq := range maxSameSecondRuns {
		path := filepath.Join(sub, fileName(start, seq))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("opening run log: %w", err)
		}
		return &Log{f: f, path: path, now: time.Now}, nil
	}
	return nil, fmt.Errorf("opening run log: %d runs already logged at %s", maxSameSecondRuns, FileName(start))
}

// FileName returns the name of the first run log for start.
func FileName(start time.Time) string {
	return fileName(start, 0)
}

func fileName(start time.Time, seq int) string {
	name := start.Local().Format(TimestampLayout)
	if seq > 0 {
		name += "_" + strconv.Itoa(seq)
	}
	return name + ".log"
}

// parseFileName is the inverse of fileName.
func parseFileName(name string) (time.Time, int, error) {
	base, ok := strings.CutSuffix(name, ".log")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("%s: not a run log", name)
	}
	seq := 0
	if len(base) > len(TimestampLayout) {
		n, err := strconv.Atoi(strings.TrimPrefix(base[len(TimestampLayout):], "_"))
		if err != nil || n <= 0 || base[len(TimestampLayout)] != '_' {
			return time.Time{}, 0, fmt.Errorf("%s: bad run suffix", name)
		}
		base, seq = base[:len(TimestampLayout)], n
	}
	started, err := time.ParseInLocation(TimestampLayout, base, time.Local)
	if err != nil {
		return time.Time{}, 0, err
	}
	return started, seq, nil
}

// Path returns the file path.
func (l *Log) Path() string {
	return l.path
}

// Started records the beginning of a run.
func (l *Log) Started() error {
	return l.stamped("started")
}

// Finished records a successful run.
func (l *Log) Finished(summary string) error {
	return l.stamped("finished " + summary)
}

// Failed records a failed run.
func (l *Log) Failed(reason string) error {
	return l.stamped("error " + oneLine(reason))
}

// Match records one matched file as "<digest> <path> [<type>]".
func (l *Log) Match(m types.Match) error {
	line := m.Digest.String() + " " + m.Path
	if m.FileType != "" {
		line += " " + m.FileType
	}
	return l.write(line)
}

// Close closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

func (l *Log) stamped(msg string) error {
	return l.write(l.now().UTC().Format(time.RFC3339) + " " + msg)
}

func (l *Log) write(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.New("run log closed")
	}
	if _, err := l.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("writing run log: %w", err)
	}
	return nil
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WriteScan writes the match log of a finished scan.
func WriteScan(dir string, report *types.ScanReport) (string, error) {
	l, err := Create(dir, KindScans, report.StartedAt)
	if err != nil {
		return "", err
	}
	for _, m := range report.Matches {
		if err := l.Match(m); err != nil {
			l.Close()
			return "", err
		}
	}
	return l.Path(), l.Close()
}

// Entry describes one run log file.
type Entry struct {
	Name    string
	Path    string
	Started time.Time
	Size    int64

	seq int
}

// List returns the run logs of kind, newest first.
// A missing directory yields no entries.
func List(dir string, kind Kind) ([]Entry, error) {
	sub := filepath.Join(dir, string(kind))
	dirEntries, err := os.ReadDir(sub)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading run log dir: %w", err)
	}

	var out []Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() {
			continue
		}
		started, seq, err := parseFileName(name)
		if err != nil {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Name:    name,
			Path:    filepath.Join(sub, name),
			Started: started,
			Size:    info.Size(),
			seq:     seq,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Started.Equal(out[j].Started) {
			return out[i].Started.After(out[j].Started)
		}
		return out[i].seq > out[j].seq
	})
	return out, nil
}

// ReadLines returns the lines of a run log.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}
