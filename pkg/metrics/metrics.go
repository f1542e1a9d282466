package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client-side Prometheus collectors
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Orchestration metrics
	OpenRequests *prometheus.GaugeVec

	// Cache metrics
	CacheLookupsTotal *prometheus.CounterVec
	ImageCacheTotal   *prometheus.CounterVec

	// Socket metrics
	SocketEventsTotal     *prometheus.CounterVec
	SocketReconnectsTotal prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// New creates a Metrics set on its own registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photostream_http_requests_total",
				Help: "Total number of HTTP requests sent to the photostream API",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "photostream_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 6, 10},
			},
			[]string{"method"},
		),
		OpenRequests: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "photostream_open_requests",
				Help: "Number of in-flight requests per request kind",
			},
			[]string{"kind"},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photostream_cache_lookups_total",
				Help: "Local cache lookups by table and result",
			},
			[]string{"table", "result"},
		),
		ImageCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photostream_image_cache_lookups_total",
				Help: "In-memory image cache lookups by result",
			},
			[]string{"result"},
		),
		SocketEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "photostream_socket_events_total",
				Help: "Socket events received by event name",
			},
			[]string{"event"},
		),
		SocketReconnectsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "photostream_socket_reconnects_total",
				Help: "Socket reconnection attempts",
			},
		),
	}
}

// Initialize returns the process-wide metrics set, creating it once
func Initialize() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// Get returns the process-wide metrics set
func Get() *Metrics {
	return Initialize()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
