package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the playout controller.
type Metrics struct {
	registry             *prometheus.Registry
	requestsTotal        prometheus.Counter
	sessionsStartedTotal *prometheus.CounterVec
	sessionCrashesTotal  prometheus.Counter
	segmentsDeletedTotal prometheus.Counter
	itemsEnqueuedTotal   prometheus.Counter
	queueLength          prometheus.Gauge
	broadcastOn          prometheus.Gauge
	errorsTotal          prometheus.Counter
}

// New creates and registers Prometheus metrics for the playout controller.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_requests_total",
		Help: "Total number of HTTP requests received",
	})
	sessionsStartedTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "playout_sessions_started_total",
		Help: "Total number of transcode sessions started, by source kind",
	}, []string{"source"})
	sessionCrashesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_session_crashes_total",
		Help: "Total number of transcode sessions that exited nonzero mid-run",
	})
	segmentsDeletedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_segments_deleted_total",
		Help: "Total number of output segments removed by retention",
	})
	itemsEnqueuedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_items_enqueued_total",
		Help: "Total number of media items accepted into the queue",
	})
	queueLength := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playout_queue_length",
		Help: "Number of media items waiting in the queue",
	})
	broadcastOn := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playout_broadcast_on",
		Help: "1 while the broadcast is logically on, 0 otherwise",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playout_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})

	registry.MustRegister(
		requestsTotal,
		sessionsStartedTotal,
		sessionCrashesTotal,
		segmentsDeletedTotal,
		itemsEnqueuedTotal,
		queueLength,
		broadcastOn,
		errorsTotal,
	)

	return &Metrics{
		registry:             registry,
		requestsTotal:        requestsTotal,
		sessionsStartedTotal: sessionsStartedTotal,
		sessionCrashesTotal:  sessionCrashesTotal,
		segmentsDeletedTotal: segmentsDeletedTotal,
		itemsEnqueuedTotal:   itemsEnqueuedTotal,
		queueLength:          queueLength,
		broadcastOn:          broadcastOn,
		errorsTotal:          errorsTotal,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncSessionsStarted increments the sessions started counter for a source kind.
func (m *Metrics) IncSessionsStarted(source string) {
	m.sessionsStartedTotal.WithLabelValues(source).Inc()
}

// IncSessionCrashes increments the session crash counter.
func (m *Metrics) IncSessionCrashes() {
	m.sessionCrashesTotal.Inc()
}

// AddSegmentsDeleted adds n to the deleted segments counter.
func (m *Metrics) AddSegmentsDeleted(n int) {
	m.segmentsDeletedTotal.Add(float64(n))
}

// IncItemsEnqueued increments the enqueued items counter.
func (m *Metrics) IncItemsEnqueued() {
	m.itemsEnqueuedTotal.Inc()
}

// SetQueueLength sets the queue length gauge.
func (m *Metrics) SetQueueLength(n int) {
	m.queueLength.Set(float64(n))
}

// SetBroadcastOn sets the broadcast gauge to 1 or 0.
func (m *Metrics) SetBroadcastOn(on bool) {
	if on {
		m.broadcastOn.Set(1)
	} else {
		m.broadcastOn.Set(0)
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. queue length).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
