package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the HTTP layer reports into.
type Recorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RecordGateRejection(gate, reason string)
}

// Collector holds the API's Prometheus collectors.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	gateRejections  *prometheus.CounterVec
}

// NewCollector registers the API collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psychchat_http_requests_total",
			Help: "HTTP requests by method, route template and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "psychchat_http_request_duration_seconds",
			Help:    "HTTP request latency by route template.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psychchat_gate_rejections_total",
			Help: "Requests stopped by an authorization gate.",
		}, []string{"gate", "reason"}),
	}

	reg.MustRegister(c.requests, c.requestDuration, c.gateRejections)
	return c
}

func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (c *Collector) RecordGateRejection(gate, reason string) {
	c.gateRejections.WithLabelValues(gate, reason).Inc()
}

// Handler exposes the gathered metrics in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}

func (Nop) RecordGateRejection(string, string) {}
