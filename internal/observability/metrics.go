// ABOUTME: In-process counters for scans, per-file verdicts and database refreshes
// ABOUTME: Bounded latency windows give percentiles for the status endpoint

package observability

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hikmaai-io/hikmaai-warden/internal/types"
)

// latencyWindowSize is the number of most recent durations kept.
const latencyWindowSize = 1024

// LatencyPercentiles summarizes a latency window.
type LatencyPercentiles struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P90   time.Duration `json:"p90"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	ScansTotal   int64 `json:"scans_total"`
	ScansSuccess int64 `json:"scans_success"`
	ScansFailed  int64 `json:"scans_failed"`
	ActiveScans  int64 `json:"active_scans"`

	RefreshesTotal   int64 `json:"refreshes_total"`
	RefreshesSuccess int64 `json:"refreshes_success"`
	RefreshesFailed  int64 `json:"refreshes_failed"`

	// Per-file outcomes across all scans.
	FilesHashed    int64 `json:"files_hashed"`
	FilesSkipped   int64 `json:"files_skipped"`
	FalsePositives int64 `json:"false_positives"`
	QueryFailures  int64 `json:"query_failures"`
	Matches        int64 `json:"matches"`
	BytesScanned   int64 `json:"bytes_scanned"`

	ScanLatency    LatencyPercentiles `json:"scan_latency"`
	RefreshLatency LatencyPercentiles `json:"refresh_latency"`

	Timestamp time.Time `json:"timestamp"`
}

// String returns a one-line summary.
func (s *MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"scans=%d (ok=%d fail=%d active=%d) refreshes=%d (ok=%d fail=%d) hashed=%d skipped=%d false_positives=%d query_failures=%d matches=%d p50=%v p99=%v",
		s.ScansTotal, s.ScansSuccess, s.ScansFailed, s.ActiveScans,
		s.RefreshesTotal, s.RefreshesSuccess, s.RefreshesFailed,
		s.FilesHashed, s.FilesSkipped, s.FalsePositives, s.QueryFailures, s.Matches,
		s.ScanLatency.P50, s.ScanLatency.P99,
	)
}

// latencyWindow is a ring of the most recent durations.
type latencyWindow struct {
	mu   sync.Mutex
	buf  []time.Duration
	next int
	full bool
}

func (w *latencyWindow) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf == nil {
		w.buf = make([]time.Duration, latencyWindowSize)
	}
	w.buf[w.next] = d
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

func (w *latencyWindow) percentiles() LatencyPercentiles {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.buf)
	}
	sorted := slices.Clone(w.buf[:n])
	w.mu.Unlock()

	if len(sorted) == 0 {
		return LatencyPercentiles{}
	}
	slices.Sort(sorted)
	at := func(p int) time.Duration {
		return sorted[min(p*len(sorted)/100, len(sorted)-1)]
	}
	return LatencyPercentiles{
		Count: len(sorted),
		P50:   at(50),
		P90:   at(90),
		P99:   at(99),
		Max:   sorted[len(sorted)-1],
	}
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf, w.next, w.full = nil, 0, false
}

// ScanMetrics collects scan and refresh metrics. The zero value is ready
// to use.
type ScanMetrics struct {
	scansTotal, scansSuccess, scansFailed, activeScans       atomic.Int64
	refreshesTotal, refreshesSuccess, refreshesFailed        atomic.Int64
	filesHashed, filesSkipped, falsePositives, queryFailures atomic.Int64
	matches, bytesScanned                                    atomic.Int64

	scanLatency    latencyWindow
	refreshLatency latencyWindow
}

// NewScanMetrics creates a new metrics collector.
func NewScanMetrics() *ScanMetrics {
	return &ScanMetrics{}
}

func (m *ScanMetrics) counters() []*atomic.Int64 {
	return []*atomic.Int64{
		&m.scansTotal, &m.scansSuccess, &m.scansFailed, &m.activeScans,
		&m.refreshesTotal, &m.refreshesSuccess, &m.refreshesFailed,
		&m.filesHashed, &m.filesSkipped, &m.falsePositives, &m.queryFailures,
		&m.matches, &m.bytesScanned,
	}
}

// RecordScan records a finished scan.
func (m *ScanMetrics) RecordScan(duration time.Duration, success bool) {
	m.scansTotal.Add(1)
	if success {
		m.scansSuccess.Add(1)
	} else {
		m.scansFailed.Add(1)
	}
	m.scanLatency.add(duration)
}

// RecordRefresh records a finished signature database refresh.
func (m *ScanMetrics) RecordRefresh(duration time.Duration, success bool) {
	m.refreshesTotal.Add(1)
	if success {
		m.refreshesSuccess.Add(1)
	} else {
		m.refreshesFailed.Add(1)
	}
	m.refreshLatency.add(duration)
}

// RecordVerdict records the outcome for one file. size counts towards
// bytes scanned for every verdict.
func (m *ScanMetrics) RecordVerdict(v types.Verdict, size int64) {
	switch v {
	case types.VerdictClean:
		m.filesHashed.Add(1)
	case types.VerdictInfected:
		m.filesHashed.Add(1)
		m.matches.Add(1)
	case types.VerdictSkipped:
		m.filesSkipped.Add(1)
	case types.VerdictFalsePositive:
		m.filesSkipped.Add(1)
		m.falsePositives.Add(1)
	case types.VerdictQueryFailed:
		m.filesHashed.Add(1)
		m.queryFailures.Add(1)
	}
	m.bytesScanned.Add(size)
}

// IncrementActiveScans marks a scan as started.
func (m *ScanMetrics) IncrementActiveScans() { m.activeScans.Add(1) }

// DecrementActiveScans marks a scan as finished.
func (m *ScanMetrics) DecrementActiveScans() { m.activeScans.Add(-1) }

// Snapshot copies the current values.
func (m *ScanMetrics) Snapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		ScansTotal:       m.scansTotal.Load(),
		ScansSuccess:     m.scansSuccess.Load(),
		ScansFailed:      m.scansFailed.Load(),
		ActiveScans:      m.activeScans.Load(),
		RefreshesTotal:   m.refreshesTotal.Load(),
		RefreshesSuccess: m.refreshesSuccess.Load(),
		RefreshesFailed:  m.refreshesFailed.Load(),
		FilesHashed:      m.filesHashed.Load(),
		FilesSkipped:     m.filesSkipped.Load(),
		FalsePositives:   m.falsePositives.Load(),
		QueryFailures:    m.queryFailures.Load(),
		Matches:          m.matches.Load(),
		BytesScanned:     m.bytesScanned.Load(),
		ScanLatency:      m.scanLatency.percentiles(),
		RefreshLatency:   m.refreshLatency.percentiles(),
		Timestamp:        time.Now().UTC(),
	}
}

// Reset zeroes every counter and window.
func (m *ScanMetrics) Reset() {
	for _, c := range m.counters() {
		c.Store(0)
	}
	m.scanLatency.reset()
	m.refreshLatency.reset()
}

// String returns a one-line summary.
func (m *ScanMetrics) String() string {
	return m.Snapshot().String()
}
