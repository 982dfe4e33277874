// Package metrics exposes contract validation and stage execution counters
// in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingrea/stagegate/internal/contracts"
)

// Outcome labels for validation results.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeBlocked = "blocked"
)

// Metrics collects pipeline observations. It implements pipeline.Recorder.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Validations      *prometheus.CounterVec
	ValidationErrors *prometheus.CounterVec
	StageRuns        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Validations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagegate_validations_total",
			Help: "Contract validations by phase, stage and outcome",
		},
		[]string{"phase", "stage", "outcome"},
	)

	m.ValidationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagegate_validation_errors_total",
			Help: "Contract violations reported by phase and stage",
		},
		[]string{"phase", "stage"},
	)

	m.StageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stagegate_stage_runs_total",
			Help: "Stage executions by final status",
		},
		[]string{"stage", "status"},
	)

	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stagegate_stage_duration_seconds",
			Help:    "Wall time of stage executions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	m.registry.MustRegister(
		m.Validations,
		m.ValidationErrors,
		m.StageRuns,
		m.StageDuration,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveValidation records a validator result.
func (m *Metrics) ObserveValidation(result contracts.Result) {
	if m == nil {
		return
	}
	stage := stageLabel(result.Stage)
	phase := string(result.Phase)
	outcome := OutcomeValid
	switch {
	case result.Blocked:
		outcome = OutcomeBlocked
	case !result.Valid:
		outcome = OutcomeInvalid
	}
	m.Validations.WithLabelValues(phase, stage, outcome).Inc()
	if n := len(result.Errors); n > 0 {
		m.ValidationErrors.WithLabelValues(phase, stage).Add(float64(n))
	}
}

// ObserveStage records the final status and duration of a stage.
func (m *Metrics) ObserveStage(stage int, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := stageLabel(stage)
	m.StageRuns.WithLabelValues(label, status).Inc()
	m.StageDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func stageLabel(stage int) string {
	return strconv.Itoa(stage)
}
