package ocr

import (
	"slices"
	"sync"
	"time"
)

type call struct {
	at     time.Time
	took   time.Duration
	failed bool
}

// Snapshot aggregates the OCR calls seen inside the window.
type Snapshot struct {
	Calls  int     `json:"calls"`
	Failed int     `json:"failed"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats keeps recent recognizer latencies for the admin API.
type Stats struct {
	mu     sync.Mutex
	calls  []call
	window time.Duration
	now    func() time.Time
}

func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	return &Stats{
		calls:  make([]call, 0, 512),
		window: window,
		now:    time.Now,
	}
}

// Record adds one call. A nil *Stats ignores it.
func (s *Stats) Record(took time.Duration, err error) {
	if s == nil {
		return
	}
	took = max(took, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expireLocked(now)
	s.calls = append(s.calls, call{at: now, took: took, failed: err != nil})
}

func (s *Stats) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.now())
	if len(s.calls) == 0 {
		return Snapshot{}
	}

	ms := make([]int64, len(s.calls))
	var total int64
	var failed int
	for i, c := range s.calls {
		ms[i] = c.took.Milliseconds()
		total += ms[i]
		if c.failed {
			failed++
		}
	}
	slices.Sort(ms)

	return Snapshot{
		Calls:  len(ms),
		Failed: failed,
		MinMs:  ms[0],
		MaxMs:  ms[len(ms)-1],
		AvgMs:  float64(total) / float64(len(ms)),
		P50Ms:  quantile(ms, 0.50),
		P95Ms:  quantile(ms, 0.95),
		P99Ms:  quantile(ms, 0.99),
	}
}

func (s *Stats) expireLocked(now time.Time) {
	cutoff := now.Add(-s.window)
	s.calls = slices.DeleteFunc(s.calls, func(c call) bool { return c.at.Before(cutoff) })
}

// quantile interpolates linearly between the two closest ranks.
func quantile(sorted []int64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return float64(sorted[0])
	case q >= 1:
		return float64(sorted[len(sorted)-1])
	}
	pos := float64(len(sorted)-1) * q
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := pos - float64(lo)
	return float64(sorted[lo]) + (float64(sorted[lo+1])-float64(sorted[lo]))*frac
}
