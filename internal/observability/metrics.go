package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ukydev/fleet-telemetry/internal/models"
)

// Run outcomes used as the status label of ingestion_runs_total.
const (
	StatusSuccess          = "success"
	StatusConfigError      = "config_error"
	StatusPersistenceError = "persistence_error"
)

// Collector bundles the Prometheus metrics of the ingestion pipeline.
type Collector struct {
	gatherer prometheus.Gatherer

	PacketsGenerated   prometheus.Counter
	PacketsValid       prometheus.Counter
	PacketsQuarantined prometheus.Counter
	FaultsInjected     *prometheus.CounterVec
	Violations         *prometheus.CounterVec
	Runs               *prometheus.CounterVec
	HookFailures       *prometheus.CounterVec
	StageDurations     *prometheus.HistogramVec
	LastRunTimestamp   prometheus.Gauge
}

// NewCollector registers the pipeline metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	generated, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_packets_generated_total",
		Help: "Telemetry packets produced by the simulator.",
	}), "ingestion_packets_generated_total")
	if err != nil {
		return nil, err
	}
	valid, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_packets_valid_total",
		Help: "Packets that passed validation and reached the trusted store.",
	}), "ingestion_packets_valid_total")
	if err != nil {
		return nil, err
	}
	quarantined, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingestion_packets_quarantined_total",
		Help: "Packets routed to quarantine.",
	}), "ingestion_packets_quarantined_total")
	if err != nil {
		return nil, err
	}

	faults, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_faults_injected_total",
		Help: "Anomalies injected into generated packets, labeled by fault.",
	}, []string{"fault"}), "ingestion_faults_injected_total")
	if err != nil {
		return nil, err
	}
	violations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_violations_total",
		Help: "Validation rule hits, labeled by rule code.",
	}, []string{"rule"}), "ingestion_violations_total")
	if err != nil {
		return nil, err
	}
	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_runs_total",
		Help: "Pipeline runs, labeled by outcome.",
	}, []string{"status"}), "ingestion_runs_total")
	if err != nil {
		return nil, err
	}
	hooks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_hook_failures_total",
		Help: "Post-run hook failures, labeled by hook.",
	}, []string{"hook"}), "ingestion_hook_failures_total")
	if err != nil {
		return nil, err
	}

	stages, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestion_stage_duration_seconds",
		Help:    "Time spent per pipeline stage.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"}), "ingestion_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	lastRun, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingestion_last_run_timestamp_seconds",
		Help: "Unix time the last successful run finished.",
	}), "ingestion_last_run_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		PacketsGenerated:   generated,
		PacketsValid:       valid,
		PacketsQuarantined: quarantined,
		FaultsInjected:     faults,
		Violations:         violations,
		Runs:               runs,
		HookFailures:       hooks,
		StageDurations:     stages,
		LastRunTimestamp:   lastRun,
	}, nil
}

// RecordRun adds a finished run's counts. report may be nil for runs that failed
// before anything was generated.
func (c *Collector) RecordRun(report *models.RunReport, status string) {
	if c == nil {
		return
	}
	c.Runs.WithLabelValues(status).Inc()
	if report == nil {
		return
	}
	c.PacketsGenerated.Add(float64(report.Generated))
	c.PacketsValid.Add(float64(report.Valid))
	c.PacketsQuarantined.Add(float64(report.Quarantined))
	for fault, n := range report.Faults {
		c.FaultsInjected.WithLabelValues(fault).Add(float64(n))
	}
	for rule, n := range report.Violations {
		c.Violations.WithLabelValues(rule).Add(float64(n))
	}
	if status == StatusSuccess && !report.FinishedAt.IsZero() {
		c.LastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	}
}

// ObserveStage records how long one pipeline stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// HookFailed counts a failed post-run hook.
func (c *Collector) HookFailed(hook string) {
	if c == nil {
		return
	}
	c.HookFailures.WithLabelValues(hook).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
