package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "searchschema"
	subsystem = "schema_manager"
)

// Resource kinds used as label values.
const (
	KindIndex    = "index"
	KindTemplate = "template"
)

// Metrics holds the schema manager collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	startupDuration prometheus.Histogram
	passDuration    *prometheus.HistogramVec
	passAttempts    prometheus.Counter
	passFailures    *prometheus.CounterVec
	schemaReady     prometheus.Gauge
	created         *prometheus.CounterVec
	fieldsAdded     *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Use a fresh registry per
// manager in tests; prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		startupDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "startup_duration_seconds",
			Help:      "Time from startup call until the schema converged, recorded on success only",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		passDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a single initialization pass by result",
		}, []string{"result"}),
		passAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pass_attempts_total",
			Help:      "Total number of initialization passes started",
		}),
		passFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pass_failures_total",
			Help:      "Total number of failed initialization passes by error code",
		}, []string{"code"}),
		schemaReady: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "schema_ready",
			Help:      "Whether the last readiness probe found the schema converged (0/1)",
		}),
		created: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resources_created_total",
			Help:      "Total number of indices and templates created",
		}, []string{"kind"}),
		fieldsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fields_added_total",
			Help:      "Total number of properties appended to live mappings",
		}, []string{"kind"}),
	}
}

// ObserveStartup records a successful startup.
func (m *Metrics) ObserveStartup(d time.Duration) {
	if m == nil {
		return
	}
	m.startupDuration.Observe(d.Seconds())
}

// ObservePass records one initialization pass. code is empty on success.
func (m *Metrics) ObservePass(d time.Duration, code string) {
	if m == nil {
		return
	}
	m.passAttempts.Inc()
	result := "success"
	if code != "" {
		result = "failure"
		m.passFailures.WithLabelValues(code).Inc()
	}
	m.passDuration.WithLabelValues(result).Observe(d.Seconds())
}

// SetReady records the outcome of a readiness probe.
func (m *Metrics) SetReady(ready bool) {
	if m == nil {
		return
	}
	if ready {
		m.schemaReady.Set(1)
		return
	}
	m.schemaReady.Set(0)
}

// ResourceCreated counts a created index or template.
func (m *Metrics) ResourceCreated(kind string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(kind).Inc()
}

// FieldsAdded counts properties appended to a live mapping.
func (m *Metrics) FieldsAdded(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.fieldsAdded.WithLabelValues(kind).Add(float64(n))
}
