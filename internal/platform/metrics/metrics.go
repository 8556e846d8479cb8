package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics is
// valid and records nothing, so tests can pass nil without registering
// collectors.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	EventsRecorded  prometheus.Counter
	HTTPDuration    *prometheus.HistogramVec
	DuplicateGroups prometheus.Gauge
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CommandsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "masterdata_commands_total",
			Help: "Total workflow commands processed, by command and outcome.",
		}, []string{"command", "outcome"}),
		CommandDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "masterdata_command_duration_seconds",
			Help:    "Workflow command processing latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		EventsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "masterdata_workflow_events_recorded_total",
			Help: "Total workflow events appended to the audit log.",
		}),
		HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "masterdata_http_request_duration_seconds",
			Help:    "HTTP request latency, by method, route pattern and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		DuplicateGroups: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "masterdata_duplicate_groups",
			Help: "Active duplicate groups awaiting resolution, as of the last group listing.",
		}),
	}
}

// ObserveCommand records one command execution.
func (m *Metrics) ObserveCommand(command string, err error, started time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
}

// IncrementEventsRecorded counts one appended workflow event.
func (m *Metrics) IncrementEventsRecorded() {
	if m == nil {
		return
	}
	m.EventsRecorded.Inc()
}

// SetDuplicateGroups updates the active duplicate group gauge.
func (m *Metrics) SetDuplicateGroups(n int) {
	if m == nil {
		return
	}
	m.DuplicateGroups.Set(float64(n))
}

// ObserveHTTPRequest records one served HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, started time.Time) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(time.Since(started).Seconds())
}
