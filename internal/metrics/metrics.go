// Package metrics holds the Prometheus instruments of the tidings daemon.
package metrics

import (
	"time"

	"github.com/casualjim/tidings/internal/broker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// RequestsTotal counts broker requests by operation and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidings_rpc_requests_total",
			Help: "Total number of broker requests",
		},
		[]string{"op", "outcome"},
	)
	// RequestDuration is the latency of broker requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tidings_rpc_request_duration_seconds",
			Help:    "Broker request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// ObserveRequest records one handled request.
func ObserveRequest(op, outcome string, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(op, outcome).Inc()
	RequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// StatsSource reports broker counters.
type StatsSource interface {
	Stats() broker.Stats
}

var (
	topicsDesc = prometheus.NewDesc("tidings_topics",
		"Number of advertised topics", nil, nil)
	subscribersDesc = prometheus.NewDesc("tidings_subscribers",
		"Number of issued subscriber IDs", nil, nil)
	connectedDesc = prometheus.NewDesc("tidings_connected_subscribers",
		"Number of subscriber IDs bound to a live handle", nil, nil)
	keywordsDesc = prometheus.NewDesc("tidings_keywords",
		"Number of keywords with at least one subscriber", nil, nil)
	pendingEventsDesc = prometheus.NewDesc("tidings_pending_events",
		"Number of events that still have undelivered subscribers", nil, nil)
	pendingAdvertsDesc = prometheus.NewDesc("tidings_pending_advertisements",
		"Number of topics that still have unnotified subscribers", nil, nil)
)

// Collector exposes broker counters as gauges. Values are read on scrape.
type Collector struct {
	source StatsSource
}

// NewCollector returns a collector reading from source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- topicsDesc
	ch <- subscribersDesc
	ch <- connectedDesc
	ch <- keywordsDesc
	ch <- pendingEventsDesc
	ch <- pendingAdvertsDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(topicsDesc, prometheus.GaugeValue, float64(s.Topics))
	ch <- prometheus.MustNewConstMetric(subscribersDesc, prometheus.GaugeValue, float64(s.Subscribers))
	ch <- prometheus.MustNewConstMetric(connectedDesc, prometheus.GaugeValue, float64(s.Connected))
	ch <- prometheus.MustNewConstMetric(keywordsDesc, prometheus.GaugeValue, float64(s.Keywords))
	ch <- prometheus.MustNewConstMetric(pendingEventsDesc, prometheus.GaugeValue, float64(s.PendingEvents))
	ch <- prometheus.MustNewConstMetric(pendingAdvertsDesc, prometheus.GaugeValue, float64(s.PendingAdvertisements))
}
