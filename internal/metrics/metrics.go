package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/livefeed/internal/connection"
	"github.com/rickgao/livefeed/internal/model"
	"github.com/rickgao/livefeed/internal/poller"
	"github.com/rickgao/livefeed/internal/writer"
)

const namespace = "livefeed"

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Feed metrics
	feedStatus       *prometheus.GaugeVec
	messagesReceived prometheus.Counter
	decodeFailures   prometheus.Counter
	retriesScheduled prometheus.Counter
	retryDelay       prometheus.Histogram
	giveUps          prometheus.Counter

	// Poller metrics
	pollCycles   *prometheus.CounterVec
	pollDuration prometheus.Histogram

	// Writer metrics
	writerRows    *prometheus.CounterVec
	writerFlushes *prometheus.CounterVec
}

var (
	_ connection.Observer = (*Registry)(nil)
	_ poller.Observer     = (*Registry)(nil)
	_ writer.Observer     = (*Registry)(nil)
)

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Feed metrics
	r.feedStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status",
			Help:      "Current connection status, 1 for the active label",
		},
		[]string{"status"},
	)
	r.messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of stream frames received",
		},
	)
	r.decodeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total number of frames dropped as malformed",
		},
	)
	r.retriesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Total number of reconnect timers scheduled",
		},
	)
	r.retryDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_delay_seconds",
			Help:      "Scheduled reconnect delay in seconds",
			Buckets:   []float64{1, 2, 4, 8, 16, 30},
		},
	)
	r.giveUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "give_ups_total",
			Help:      "Total number of times the reconnect budget ran out",
		},
	)

	reg.MustRegister(r.feedStatus)
	reg.MustRegister(r.messagesReceived)
	reg.MustRegister(r.decodeFailures)
	reg.MustRegister(r.retriesScheduled)
	reg.MustRegister(r.retryDelay)
	reg.MustRegister(r.giveUps)

	// Poller metrics
	r.pollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Total number of dashboard poll cycles",
		},
		[]string{"result"},
	)
	r.pollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Dashboard poll cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	reg.MustRegister(r.pollCycles)
	reg.MustRegister(r.pollDuration)

	// Writer metrics
	r.writerRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_rows_total",
			Help:      "Total number of tick rows written",
		},
		[]string{"result"},
	)
	r.writerFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_flushes_total",
			Help:      "Total number of tick batch flushes",
		},
		[]string{"result"},
	)

	reg.MustRegister(r.writerRows)
	reg.MustRegister(r.writerFlushes)

	r.StatusChanged(model.StatusClosed)

	return r
}

// ReconnectCounter is the part of the feed store the registry reads.
type ReconnectCounter interface {
	ReconnectCount() int
}

// BindReconnectCount exposes the store's reconnect count as a gauge.
// It can be called once per registry.
func (r *Registry) BindReconnectCount(src ReconnectCounter) {
	r.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconnect_count",
			Help:      "Consecutive failures since the last successful open",
		},
		func() float64 { return float64(src.ReconnectCount()) },
	))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// StatusChanged sets the status gauge one-hot.
func (r *Registry) StatusChanged(status model.ConnectionStatus) {
	for _, s := range model.AllStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		r.feedStatus.WithLabelValues(string(s)).Set(v)
	}
	if status == model.StatusGivenUp {
		r.giveUps.Inc()
	}
}

// MessageReceived counts one stream frame.
func (r *Registry) MessageReceived() {
	r.messagesReceived.Inc()
}

// DecodeFailed counts one malformed frame.
func (r *Registry) DecodeFailed(error) {
	r.decodeFailures.Inc()
}

// RetryScheduled records a reconnect timer.
func (r *Registry) RetryScheduled(_ int, delay time.Duration) {
	r.retriesScheduled.Inc()
	r.retryDelay.Observe(delay.Seconds())
}

// PollCompleted records a dashboard poll cycle.
func (r *Registry) PollCompleted(duration time.Duration, err error) {
	r.pollCycles.WithLabelValues(resultLabel(err)).Inc()
	r.pollDuration.Observe(duration.Seconds())
}

// Flushed records a tick writer flush.
func (r *Registry) Flushed(inserted, conflicts int, err error) {
	r.writerFlushes.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return
	}
	r.writerRows.WithLabelValues("inserted").Add(float64(inserted))
	r.writerRows.WithLabelValues("conflict").Add(float64(conflicts))
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
