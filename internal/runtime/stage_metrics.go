package runtime

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/stagestats/internal/runtime/stats"
)

const stageMetricsSubsystem = "stage"

// DefaultDurationBuckets spans one clock unit up to 1e9 units, which covers
// both nanosecond and millisecond clocks.
var DefaultDurationBuckets = prometheus.ExponentialBuckets(1, 10, 10)

var stageLabels = []string{"stage", "path"}

// StageMetrics exports per-stage latency statistics as Prometheus collectors.
type StageMetrics struct {
	mu sync.Mutex

	duration *prometheus.HistogramVec
	items    *prometheus.CounterVec
	mean     *prometheus.GaugeVec
	stddev   *prometheus.GaugeVec
	p99      *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

// NewStageMetrics creates the stage collectors. A nil registerer uses the
// Prometheus default registerer and nil buckets use DefaultDurationBuckets.
func NewStageMetrics(registerer prometheus.Registerer, namespace string, buckets []float64) *StageMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = DefaultDurationBuckets
	}

	return &StageMetrics{
		registerer: registerer,
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: stageMetricsSubsystem,
			Name:      "duration",
			Help:      "Per-item stage processing duration in clock units",
			Buckets:   buckets,
		}, stageLabels),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: stageMetricsSubsystem,
			Name:      "items_total",
			Help:      "Total number of items timed per stage",
		}, stageLabels),
		mean: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: stageMetricsSubsystem,
			Name:      "mean",
			Help:      "Mean item duration of a completed stage",
		}, stageLabels),
		stddev: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: stageMetricsSubsystem,
			Name:      "stddev",
			Help:      "Population standard deviation of item durations of a completed stage",
		}, stageLabels),
		p99: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: stageMetricsSubsystem,
			Name:      "p99",
			Help:      "99th percentile item duration of a completed stage",
		}, stageLabels),
	}
}

// Register registers the Prometheus collectors. Safe to call multiple times.
func (m *StageMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		m.duration,
		m.items,
		m.mean,
		m.stddev,
		m.p99,
	}

	for _, c := range collectors {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}

	m.registered = true
	return nil
}

// ObserveSample records one item duration for a stage.
func (m *StageMetrics) ObserveSample(stage, path string, value int64) {
	m.items.WithLabelValues(stage, path).Inc()
	m.duration.WithLabelValues(stage, path).Observe(float64(value))
}

// RecordCompletion publishes the finalised statistics of a stage.
func (m *StageMetrics) RecordCompletion(stage, path string, snapshot stats.Snapshot) {
	m.mean.WithLabelValues(stage, path).Set(snapshot.Mean)
	m.stddev.WithLabelValues(stage, path).Set(snapshot.Stddev)
	m.p99.WithLabelValues(stage, path).Set(snapshot.P99)
}

// Reset clears every series (useful for testing).
func (m *StageMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.duration.Reset()
	m.items.Reset()
	m.mean.Reset()
	m.stddev.Reset()
	m.p99.Reset()
}
