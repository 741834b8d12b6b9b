package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestrator
type Metrics struct {
	registry *prometheus.Registry

	// Run / iteration metrics
	RunsTotal       *prometheus.CounterVec
	IterationsTotal *prometheus.CounterVec
	RunDuration     prometheus.Histogram

	// Planning metrics
	PlansGeneratedTotal *prometheus.CounterVec

	// Step execution metrics
	StepExecutionsTotal *prometheus.CounterVec
	StepDuration        *prometheus.HistogramVec
	WaveSize            prometheus.Histogram

	// Inference metrics
	InferenceCallsTotal   *prometheus.CounterVec
	InferenceRetriesTotal prometheus.Counter

	// Memory metrics
	MemorySavesTotal   prometheus.Counter
	MemoryQueriesTotal prometheus.Counter
}

// New creates and registers all metrics on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_runs_total",
				Help: "Total goal runs by terminal result",
			},
			[]string{"result"},
		),
		IterationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_iterations_total",
				Help: "Total loop iterations by review outcome",
			},
			[]string{"outcome"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kestrel_run_duration_seconds",
				Help:    "Wall-clock duration of goal runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		PlansGeneratedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_plans_generated_total",
				Help: "Total plans generated by feasibility",
			},
			[]string{"feasible"},
		),

		StepExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_step_executions_total",
				Help: "Total step executions by capability and status",
			},
			[]string{"capability", "status"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kestrel_step_duration_seconds",
				Help:    "Duration of step executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		WaveSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kestrel_wave_size",
				Help:    "Number of steps dispatched per ready wave",
				Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16},
			},
		),

		InferenceCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_inference_calls_total",
				Help: "Total inference calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		InferenceRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_inference_retries_total",
				Help: "Total inference retries after transient or malformed-output errors",
			},
		),

		MemorySavesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_memory_saves_total",
				Help: "Total records saved to vector memory",
			},
		),
		MemoryQueriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "kestrel_memory_queries_total",
				Help: "Total vector memory queries",
			},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.IterationsTotal,
		m.RunDuration,
		m.PlansGeneratedTotal,
		m.StepExecutionsTotal,
		m.StepDuration,
		m.WaveSize,
		m.InferenceCallsTotal,
		m.InferenceRetriesTotal,
		m.MemorySavesTotal,
		m.MemoryQueriesTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
