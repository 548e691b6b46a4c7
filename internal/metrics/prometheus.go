package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector is the production Collector: a dedicated registry
// (so this module never fights another component for the default global
// registry) backing a handful of CounterVec/HistogramVec/Gauge
// instruments.
type PrometheusCollector struct {
	registry *prometheus.Registry

	stateTransitions *prometheus.CounterVec
	spawned          *prometheus.CounterVec
	spawnFailed      *prometheus.CounterVec
	exited           *prometheus.CounterVec
	runtime          *prometheus.HistogramVec
	readinessWait    *prometheus.HistogramVec
	orphansReaped    prometheus.Counter
	activeTasks      prometheus.Gauge
}

// NewPrometheusCollector builds a PrometheusCollector registering all of
// its instruments under namespace on a freshly created registry.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	registry := prometheus.NewRegistry()

	c := &PrometheusCollector{
		registry: registry,
		stateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_state_transitions_total",
			Help:      "Count of task lifecycle state transitions, by task and state.",
		}, []string{"task", "state"}),
		spawned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_spawned_total",
			Help:      "Count of tasks successfully spawned, by task.",
		}, []string{"task"}),
		spawnFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_spawn_failed_total",
			Help:      "Count of task spawn failures, by task.",
		}, []string{"task"}),
		exited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_exited_total",
			Help:      "Count of terminal task outcomes, by task and outcome.",
		}, []string{"task", "outcome"}),
		runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_runtime_seconds",
			Help:      "Task runtime from runner start to terminal state, by task.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		readinessWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_readiness_wait_seconds",
			Help:      "Time from spawn to readiness signal, by task.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		orphansReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_reaped_total",
			Help:      "Count of stale PIDs found and signalled during startup recovery.",
		}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tasks",
			Help:      "Current number of tasks not yet in a terminal state.",
		}),
	}

	registry.MustRegister(
		c.stateTransitions,
		c.spawned,
		c.spawnFailed,
		c.exited,
		c.runtime,
		c.readinessWait,
		c.orphansReaped,
		c.activeTasks,
	)

	return c
}

// Registry returns the dedicated registry backing this collector, for a
// caller that wants to serve it over /metrics.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *PrometheusCollector) TaskStateChanged(task, state string) {
	c.stateTransitions.WithLabelValues(task, state).Inc()
}

func (c *PrometheusCollector) TaskSpawned(task string) {
	c.spawned.WithLabelValues(task).Inc()
}

func (c *PrometheusCollector) TaskSpawnFailed(task string) {
	c.spawnFailed.WithLabelValues(task).Inc()
}

func (c *PrometheusCollector) TaskExited(task, outcome string, runtime time.Duration) {
	c.exited.WithLabelValues(task, outcome).Inc()
	c.runtime.WithLabelValues(task).Observe(runtime.Seconds())
}

func (c *PrometheusCollector) ReadinessObserved(task string, wait time.Duration) {
	c.readinessWait.WithLabelValues(task).Observe(wait.Seconds())
}

func (c *PrometheusCollector) OrphansReaped(count int) {
	c.orphansReaped.Add(float64(count))
}

func (c *PrometheusCollector) ActiveTasks(n int) {
	c.activeTasks.Set(float64(n))
}

var _ Collector = (*PrometheusCollector)(nil)
