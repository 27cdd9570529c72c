// Package metrics exposes pocketdev's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionStats is the view of the session registry the metrics read from.
type SessionStats interface {
	Active() int
	Created() int64
	Abandoned() int64
	Detached() int64
	PumpErrors() int64
}

// Metrics owns a dedicated registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	commandsTotal   *prometheus.CounterVec
	commandDuration prometheus.Histogram
	gitOpsTotal     *prometheus.CounterVec
	gitOpDuration   *prometheus.HistogramVec
	eventsDropped   prometheus.Counter
	httpRequests    *prometheus.CounterVec
	wsConnections   prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pocketdev_commands_total",
				Help: "One-shot commands run, by outcome",
			},
			[]string{"outcome"},
		),
		commandDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pocketdev_command_duration_seconds",
				Help:    "Wall time of one-shot commands",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		gitOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pocketdev_git_operations_total",
				Help: "Version control operations, by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		gitOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pocketdev_git_operation_duration_seconds",
				Help:    "Wall time of version control operations",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"op"},
		),
		eventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pocketdev_events_dropped_total",
				Help: "Output events dropped on slow subscribers",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pocketdev_http_requests_total",
				Help: "HTTP requests, by method and status",
			},
			[]string{"method", "status"},
		),
		wsConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pocketdev_ws_connections",
				Help: "Open WebSocket connections",
			},
		),
	}

	m.registry.MustRegister(
		m.commandsTotal,
		m.commandDuration,
		m.gitOpsTotal,
		m.gitOpDuration,
		m.eventsDropped,
		m.httpRequests,
		m.wsConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterSessions exports the registry's counters and gauges. They are read
// at scrape time.
func (m *Metrics) RegisterSessions(stats SessionStats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pocketdev_sessions_active",
			Help: "Sessions not yet terminated",
		}, func() float64 { return float64(stats.Active()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pocketdev_sessions_created_total",
			Help: "Sessions started",
		}, func() float64 { return float64(stats.Created()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pocketdev_pumps_abandoned_total",
			Help: "Output pumps that outlived the join timeout on stop",
		}, func() float64 { return float64(stats.Abandoned()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "pocketdev_pumps_detached",
			Help: "Abandoned output pumps still running",
		}, func() float64 { return float64(stats.Detached()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "pocketdev_pump_read_errors_total",
			Help: "Output pumps that ended on a read error",
		}, func() float64 { return float64(stats.PumpErrors()) }),
	)
}

// ObserveCommand records one executor run.
func (m *Metrics) ObserveCommand(outcome string, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(outcome).Inc()
	m.commandDuration.Observe(elapsed.Seconds())
}

// ObserveGit records one version control operation.
func (m *Metrics) ObserveGit(op string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.gitOpsTotal.WithLabelValues(op, outcome).Inc()
	m.gitOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) EventDropped(string) { m.eventsDropped.Inc() }

func (m *Metrics) ObserveRequest(method string, status int) {
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) WSConnected()    { m.wsConnections.Inc() }
func (m *Metrics) WSDisconnected() { m.wsConnections.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
