// Package stats holds the online accumulator that records per-stage durations.
package stats

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/drblury/stagestats/internal/runtime/jsoncodec"
)

// Stats accumulates duration samples for a single stage. Running min, max,
// sum and count are kept up to date on every Add; mean, stddev and the
// percentiles are only populated by Calc.
//
// A zero Stats is ready to use.
type Stats struct {
	mu sync.Mutex

	min   int64
	max   int64
	sum   int64
	count int64

	mean   float64
	stddev float64
	p50    float64
	p95    float64
	p99    float64

	finalized bool
	values    []int64
}

// Snapshot is a point-in-time copy of a Stats accumulator.
type Snapshot struct {
	Min       int64   `json:"min"`
	Max       int64   `json:"max"`
	Sum       int64   `json:"sum"`
	Count     int64   `json:"count"`
	Mean      float64 `json:"mean"`
	Stddev    float64 `json:"stddev"`
	P50       float64 `json:"p50"`
	P95       float64 `json:"p95"`
	P99       float64 `json:"p99"`
	Finalized bool    `json:"finalized"`
}

// New returns an empty accumulator.
func New() *Stats {
	return &Stats{}
}

// Add records one duration sample. The first sample seeds min. Zero samples
// are counted but never added to sum.
func (s *Stats) Add(value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 || value < s.min {
		s.min = value
	}
	if value > s.max {
		s.max = value
	}
	if value != 0 {
		s.sum += value
	}
	s.count++
	s.values = append(s.values, value)
}

// Calc finalises mean, population stddev and percentiles. It does nothing
// while no sample has been recorded.
func (s *Stats) Calc() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return
	}

	samples := make([]float64, len(s.values))
	for i, v := range s.values {
		samples[i] = float64(v)
	}

	s.mean = float64(s.sum) / float64(s.count)
	s.stddev = stat.PopStdDev(samples, nil)

	sort.Float64s(samples)
	s.p50 = stat.Quantile(0.50, stat.Empirical, samples, nil)
	s.p95 = stat.Quantile(0.95, stat.Empirical, samples, nil)
	s.p99 = stat.Quantile(0.99, stat.Empirical, samples, nil)
	s.finalized = true
}

// Snapshot copies the current values.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Min:       s.min,
		Max:       s.max,
		Sum:       s.sum,
		Count:     s.count,
		Mean:      s.mean,
		Stddev:    s.stddev,
		P50:       s.p50,
		P95:       s.p95,
		P99:       s.p99,
		Finalized: s.finalized,
	}
}

// Count returns the number of recorded samples.
func (s *Stats) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Samples returns a copy of every recorded sample in arrival order.
func (s *Stats) Samples() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := make([]int64, len(s.values))
	copy(clone, s.values)
	return clone
}

// MarshalJSON encodes the current Snapshot.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return jsoncodec.Marshal(s.Snapshot())
}
