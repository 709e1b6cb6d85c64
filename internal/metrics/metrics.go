// Package metrics provides Prometheus metrics for detection runs.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hed1ad/energyguard/pkg/analysis"
	"github.com/hed1ad/energyguard/pkg/models"
)

// DetectionMetrics contains all Prometheus metrics related to detection runs.
// It implements analysis.Recorder.
type DetectionMetrics struct {
	RunsTotal       *prometheus.CounterVec
	RunErrors       *prometheus.CounterVec
	AnomaliesTotal  *prometheus.CounterVec
	FallbacksTotal  *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	PointsProcessed *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ analysis.Recorder = (*DetectionMetrics)(nil)

// NewDetectionMetrics creates the metrics and registers them with registry.
func NewDetectionMetrics(registry *prometheus.Registry) (*DetectionMetrics, error) {
	m := &DetectionMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detection metrics: %w", err)
	}
	return m, nil
}

func (m *DetectionMetrics) initMetrics() {
	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energyguard_detection_runs_total",
			Help: "Total number of detection runs partitioned by algorithm and status.",
		},
		[]string{"algorithm", "status"},
	)
	m.RunErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energyguard_detection_errors_total",
			Help: "Failed detection runs partitioned by error kind.",
		},
		[]string{"algorithm", "kind"},
	)
	m.AnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energyguard_anomalies_total",
			Help: "Readings labeled anomalous.",
		},
		[]string{"algorithm"},
	)
	m.FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energyguard_algorithm_fallbacks_total",
			Help: "Runs whose requested algorithm was unavailable.",
		},
		[]string{"requested", "algorithm"},
	)
	m.RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "energyguard_detection_duration_seconds",
			Help:    "Time taken by a successful detection run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		},
		[]string{"algorithm"},
	)
	m.PointsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "energyguard_points_processed_total",
			Help: "Readings scored by successful runs.",
		},
		[]string{"algorithm"},
	)
}

// RecordRun records metrics for a finished run.
func (m *DetectionMetrics) RecordRun(run *models.Run, err error) {
	if err != nil {
		m.RunsTotal.WithLabelValues(run.Algorithm, "error").Inc()
		m.RunErrors.WithLabelValues(run.Algorithm, categorizeError(err)).Inc()
		return
	}

	m.RunsTotal.WithLabelValues(run.Algorithm, "success").Inc()
	m.AnomaliesTotal.WithLabelValues(run.Algorithm).Add(float64(len(run.Anomalies)))
	m.PointsProcessed.WithLabelValues(run.Algorithm).Add(float64(len(run.Points)))
	m.RunDuration.WithLabelValues(run.Algorithm).Observe(run.Duration.Seconds())
	if run.Fallback {
		m.FallbacksTotal.WithLabelValues(run.Requested, run.Algorithm).Inc()
	}
}

// WriteTextfile writes the registry in the node exporter textfile format.
func (m *DetectionMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// categorizeError returns a category string for the error kind
func categorizeError(err error) string {
	switch {
	case errors.Is(err, analysis.ErrInput):
		return "input"
	case errors.Is(err, analysis.ErrAlgorithmUnavailable):
		return "unavailable"
	case errors.Is(err, analysis.ErrComputation):
		return "computation"
	default:
		return "unknown"
	}
}

// Describe implements the prometheus.Collector interface.
func (m *DetectionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RunsTotal.Describe(ch)
	m.RunErrors.Describe(ch)
	m.AnomaliesTotal.Describe(ch)
	m.FallbacksTotal.Describe(ch)
	m.RunDuration.Describe(ch)
	m.PointsProcessed.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DetectionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RunsTotal.Collect(ch)
	m.RunErrors.Collect(ch)
	m.AnomaliesTotal.Collect(ch)
	m.FallbacksTotal.Collect(ch)
	m.RunDuration.Collect(ch)
	m.PointsProcessed.Collect(ch)
}
