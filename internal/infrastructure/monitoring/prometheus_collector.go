package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "edgestream"

type PrometheusCollector struct {
	activeSessions    prometheus.Gauge
	sessionsEvicted   *prometheus.CounterVec
	manifestsServed   *prometheus.CounterVec
	segmentsServed    *prometheus.CounterVec
	segmentBytes      prometheus.Counter
	analyticsEvents   *prometheus.CounterVec
	remoteEvents      *prometheus.CounterVec
	rateLimited       *prometheus.CounterVec
	qoeScore          prometheus.Histogram
	bandwidthEstimate prometheus.Histogram
	httpDuration      *prometheus.HistogramVec
}

// NewPrometheusCollector registers the edge metrics with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)

	return &PrometheusCollector{
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live playback sessions",
		}),

		sessionsEvicted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Sessions removed by the idle sweep or the capacity cap",
		}, []string{"reason"}),

		manifestsServed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manifests_served_total",
			Help:      "Playlists rendered, by kind",
		}, []string{"kind"}),

		segmentsServed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_served_total",
			Help:      "Segments served, by HTTP status",
		}, []string{"status"}),

		segmentBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_bytes_total",
			Help:      "Segment payload bytes served",
		}),

		analyticsEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_total",
			Help:      "Player analytics events received, by type",
		}, []string{"type"}),

		remoteEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_events_total",
			Help:      "Session events received from peer edge instances",
		}, []string{"type"}),

		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}, []string{"reason"}),

		qoeScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "qoe_score",
			Help:      "QoE scores computed after analytics batches",
			Buckets:   prometheus.LinearBuckets(0, 0.5, 11),
		}),

		bandwidthEstimate: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bandwidth_estimate_bps",
			Help:      "Smoothed per-session bandwidth estimates",
			Buckets:   prometheus.ExponentialBuckets(250_000, 2, 8),
		}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"method", "route", "status"}),
	}
}

func (p *PrometheusCollector) RecordManifest(kind string) {
	p.manifestsServed.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordSegment(status int, bytes int) {
	p.segmentsServed.WithLabelValues(strconv.Itoa(status)).Inc()
	p.segmentBytes.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordAnalyticsEvent(eventType string) {
	if eventType == "" {
		eventType = "unknown"
	}
	p.analyticsEvents.WithLabelValues(eventType).Inc()
}

func (p *PrometheusCollector) ObserveQoEScore(score float64) {
	p.qoeScore.Observe(score)
}

func (p *PrometheusCollector) ObserveBandwidthEstimate(bps float64) {
	p.bandwidthEstimate.Observe(bps)
}

func (p *PrometheusCollector) SetActiveSessions(n int) {
	p.activeSessions.Set(float64(n))
}

func (p *PrometheusCollector) RecordSessionEvicted(reason string) {
	p.sessionsEvicted.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordRemoteEvent(eventType string) {
	p.remoteEvents.WithLabelValues(eventType).Inc()
}

func (p *PrometheusCollector) RecordRateLimited(reason string) {
	p.rateLimited.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	p.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
