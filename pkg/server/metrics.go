package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cadenlabs/agentbench/pkg/trace"
	"github.com/cadenlabs/agentbench/pkg/workflow"
)

// Metrics collects run and node-visit counters.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	nodeVisits  *prometheus.CounterVec
	activeRuns  prometheus.Gauge
	comparisons *prometheus.CounterVec
}

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbench_runs_total",
			Help: "Workflow runs by type and terminal status.",
		}, []string{"workflow", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentbench_run_duration_seconds",
			Help:    "Run wall time by workflow type.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"workflow"}),
		nodeVisits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbench_node_visits_total",
			Help: "State-machine node visits by node and status.",
		}, []string{"node", "status"}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentbench_active_runs",
			Help: "Runs currently executing.",
		}),
		comparisons: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentbench_comparisons_total",
			Help: "Workflow comparisons by winner.",
		}, []string{"winner"}),
	}
}

// ObserveVisit is wired as a trace observer on the engine.
func (m *Metrics) ObserveVisit(v trace.NodeVisit) {
	m.nodeVisits.WithLabelValues(v.Node, string(v.Status)).Inc()
}

// ObserveRun records a terminal run.
func (m *Metrics) ObserveRun(res *workflow.RunResult) {
	m.runsTotal.WithLabelValues(string(res.WorkflowType), string(res.Status)).Inc()
	m.runDuration.WithLabelValues(string(res.WorkflowType)).Observe(res.Duration.Seconds())
}

// ObserveComparison records a comparison outcome.
func (m *Metrics) ObserveComparison(cmp *workflow.Comparison) {
	m.comparisons.WithLabelValues(cmp.Winner).Inc()
}

// RunStarted and RunFinished bracket the active-runs gauge.
func (m *Metrics) RunStarted()  { m.activeRuns.Inc() }
func (m *Metrics) RunFinished() { m.activeRuns.Dec() }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
