// Package metrics exports scheduler activity as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/tasksched/internal/scheduler"
)

// Status label values for tasksched_tasks_finished_total.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusPanicked = "panic"
)

// Collector is a scheduler.Observer maintaining Prometheus metrics.
//
// A task leaves the ready gauge when it starts running, not when Next pops
// it. Worker and RunWorkers run every task they claim, so the gauges match
// Scheduler.Stats for them; a caller that claims tasks with Next and never
// runs them leaves those tasks counted as ready, while Stats reports them
// running.
type Collector struct {
	gatherer prometheus.Gatherer

	submitted prometheus.Counter
	finished  *prometheus.CounterVec
	ready     prometheus.Gauge
	waiting   prometheus.Gauge
	running   prometheus.Gauge
	duration  prometheus.Histogram
}

// NewCollector creates the metrics and registers them on reg. If reg also
// implements prometheus.Gatherer, Handler serves it; otherwise Handler serves
// the default gatherer.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	c := &Collector{
		gatherer: prometheus.DefaultGatherer,

		// submitted counts every accepted Submit.
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "tasksched_tasks_submitted_total",
			Help: "The total number of tasks accepted by the scheduler",
		}),

		finished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tasksched_tasks_finished_total",
			Help: "The total number of finished tasks by outcome",
		}, []string{"status"}),

		ready: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tasksched_tasks_ready",
			Help: "Number of tasks ready to run",
		}),

		waiting: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tasksched_tasks_waiting",
			Help: "Number of tasks waiting on predecessors",
		}),

		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tasksched_tasks_running",
			Help: "Number of tasks currently executing",
		}),

		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tasksched_task_duration_seconds",
			Help:    "Duration of task body execution",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	}
	return c
}

func (c *Collector) TaskSubmitted(_ *scheduler.Task, ready bool) {
	c.submitted.Inc()
	if ready {
		c.ready.Inc()
	} else {
		c.waiting.Inc()
	}
}

func (c *Collector) TaskReady(*scheduler.Task) {
	c.waiting.Dec()
	c.ready.Inc()
}

func (c *Collector) TaskStarted(*scheduler.Task) {
	c.ready.Dec()
	c.running.Inc()
}

func (c *Collector) TaskFinished(_ *scheduler.Task, err error, elapsed time.Duration) {
	c.running.Dec()
	c.finished.WithLabelValues(status(err)).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// Handler serves the registered metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func status(err error) string {
	var pe *scheduler.PanicError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &pe):
		return StatusPanicked
	default:
		return StatusError
	}
}
