package services

// Metrics is the subset of the Prometheus collector the core services report to.
type Metrics interface {
	RecordManifest(kind string)
	RecordSegment(status int, bytes int)
	RecordAnalyticsEvent(eventType string)
	ObserveQoEScore(score float64)
	ObserveBandwidthEstimate(bps float64)
	SetActiveSessions(n int)
	RecordSessionEvicted(reason string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordManifest(string)           {}
func (NopMetrics) RecordSegment(int, int)          {}
func (NopMetrics) RecordAnalyticsEvent(string)     {}
func (NopMetrics) ObserveQoEScore(float64)         {}
func (NopMetrics) ObserveBandwidthEstimate(float64) {}
func (NopMetrics) SetActiveSessions(int)           {}
func (NopMetrics) RecordSessionEvicted(string)     {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
