// Package metrics exports D-SDA run events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/dsdasolver/internal/dsda"
)

// Collector is a dsda.Observer that counts evaluations, memo hits, moves and
// finished runs. It registers on its own registry so several collectors can
// coexist in one process (tests, embedded servers).
type Collector struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	memoHits    *prometheus.CounterVec
	moves       *prometheus.CounterVec
	solveTime   *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	runWall     prometheus.Histogram
	activeRuns  prometheus.Gauge
	queuedRuns  prometheus.Gauge
}

// NewCollector creates a collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsda_evaluations_total",
			Help: "Subproblem evaluations by search phase and status.",
		}, []string{"phase", "status"}),
		memoHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsda_memo_hits_total",
			Help: "Candidates skipped because they were already evaluated in the run.",
		}, []string{"phase"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsda_moves_total",
			Help: "Configurations appended to a route, by phase.",
		}, []string{"phase"}),
		solveTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsda_oracle_solve_seconds",
			Help:    "Oracle time per evaluation.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsda_runs_total",
			Help: "Finished runs by terminal status.",
		}, []string{"status"}),
		runWall: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dsda_run_wall_seconds",
			Help:    "Wall-clock time of finished runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dsda_active_runs",
			Help: "Runs currently executing.",
		}),
		queuedRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dsda_queued_runs",
			Help: "Runs waiting for an execution slot.",
		}),
	}
	c.registry.MustRegister(
		c.evaluations,
		c.memoHits,
		c.moves,
		c.solveTime,
		c.runs,
		c.runWall,
		c.activeRuns,
		c.queuedRuns,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Evaluated(ev dsda.EvaluationEvent) {
	status := ev.Result.Status.String()
	c.evaluations.WithLabelValues(string(ev.Phase), status).Inc()
	c.solveTime.WithLabelValues(status).Observe(ev.Result.SolverTime.Seconds())
}

func (c *Collector) Skipped(ev dsda.SkipEvent) {
	c.memoHits.WithLabelValues(string(ev.Phase)).Inc()
}

func (c *Collector) Moved(ev dsda.MoveEvent) {
	c.moves.WithLabelValues(string(ev.Phase)).Inc()
}

func (c *Collector) Finished(res *dsda.RunResult) {
	c.runs.WithLabelValues(string(res.Status)).Inc()
	c.runWall.Observe(res.WallTime.Seconds())
}

// RunQueued marks a run waiting for a slot.
func (c *Collector) RunQueued() { c.queuedRuns.Inc() }

// RunStarted moves a queued run to active.
func (c *Collector) RunStarted() {
	c.queuedRuns.Dec()
	c.activeRuns.Inc()
}

// RunDone marks an active run as finished.
func (c *Collector) RunDone() { c.activeRuns.Dec() }
