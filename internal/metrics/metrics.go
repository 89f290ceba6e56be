// Package metrics registers the ingestor's Prometheus metrics under the
// exact contractual names the external interface spec fixes, so dashboards
// and alerts built against those names keep working across venue and
// implementation changes. Shaped after the teacher's
// internal/interfaces/http.MetricsRegistry (typed fields, one NewXxx
// constructor building every vector up front).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds every metric the ingestor reports. It implements
// internal/channels.Metrics so a ChannelRegistry can report through it
// directly.
type Registry struct {
	WSEventsTotal       *prometheus.CounterVec
	WSReconnectsTotal   *prometheus.CounterVec
	WSResnapshotTotal   *prometheus.CounterVec
	WSHeartbeatFailures *prometheus.CounterVec

	WSLagNs        *prometheus.GaugeVec
	PipelineP99Us  prometheus.Gauge

	QueueDepth          *prometheus.GaugeVec
	AdapterQueueDepth   *prometheus.GaugeVec
	BackpressureDropsTotal *prometheus.CounterVec
}

// New builds and registers every metric against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the global default
// registerer; pass prometheus.DefaultRegisterer in production so promhttp's
// default handler serves these alongside Go runtime metrics.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		WSEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_ws_events_total",
			Help: "Total WebSocket events received, by venue and event type.",
		}, []string{"venue", "event_type"}),

		WSReconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_ws_reconnects_total",
			Help: "Total WebSocket reconnect attempts, by venue.",
		}, []string{"venue"}),

		WSResnapshotTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_ws_resnapshot_total",
			Help: "Total order-book resnapshot fetches triggered by a sequence gap, by venue and symbol.",
		}, []string{"venue", "symbol"}),

		WSHeartbeatFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_heartbeat_failures",
			Help: "Total ping/pong heartbeat failures, by venue.",
		}, []string{"venue"}),

		WSLagNs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "md_ws_lag_ns",
			Help: "Most recent observed lag between event time and receipt time, in nanoseconds.",
		}, []string{"venue"}),

		PipelineP99Us: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "md_pipeline_p99_us",
			Help: "Processing latency of the most recently handled message, in microseconds.",
		}),

		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "md_queue_depth",
			Help: "Current occupancy of a fan-out class buffer as observed by the dispatcher.",
		}, []string{"channel"}),

		AdapterQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adapter_queue_depth",
			Help: "Current occupancy of a fan-out class buffer as observed by the producing adapter.",
		}, []string{"channel"}),

		BackpressureDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "md_backpressure_drops_total",
			Help: "Total messages dropped due to a saturated fan-out class buffer, by channel.",
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.WSEventsTotal,
		m.WSReconnectsTotal,
		m.WSResnapshotTotal,
		m.WSHeartbeatFailures,
		m.WSLagNs,
		m.PipelineP99Us,
		m.QueueDepth,
		m.AdapterQueueDepth,
		m.BackpressureDropsTotal,
	)
	return m
}

// SetQueueDepth implements internal/channels.Metrics.
func (m *Registry) SetQueueDepth(channel string, depth int) {
	m.QueueDepth.WithLabelValues(channel).Set(float64(depth))
}

// SetAdapterQueueDepth implements internal/channels.Metrics.
func (m *Registry) SetAdapterQueueDepth(channel string, depth int) {
	m.AdapterQueueDepth.WithLabelValues(channel).Set(float64(depth))
}

// IncBackpressureDrop implements internal/channels.Metrics.
func (m *Registry) IncBackpressureDrop(channel string) {
	m.BackpressureDropsTotal.WithLabelValues(channel).Inc()
}

// ObserveEvent records one received event for venue/eventType.
func (m *Registry) ObserveEvent(venue, eventType string) {
	m.WSEventsTotal.WithLabelValues(venue, eventType).Inc()
}

// ObserveReconnect records one reconnect attempt for venue.
func (m *Registry) ObserveReconnect(venue string) {
	m.WSReconnectsTotal.WithLabelValues(venue).Inc()
}

// ObserveResnapshot records one resnapshot fetch for venue/symbol.
func (m *Registry) ObserveResnapshot(venue, symbol string) {
	m.WSResnapshotTotal.WithLabelValues(venue, symbol).Inc()
}

// ObserveHeartbeatFailure records one missed-pong heartbeat failure.
func (m *Registry) ObserveHeartbeatFailure(venue string) {
	m.WSHeartbeatFailures.WithLabelValues(venue).Inc()
}

// SetLagNs records the most recent event-to-receipt lag for venue.
func (m *Registry) SetLagNs(venue string, lagNs int64) {
	m.WSLagNs.WithLabelValues(venue).Set(float64(lagNs))
}

// SetPipelineP99Us records the processing latency of one message; each call
// overwrites the previous value, and no percentile is computed.
func (m *Registry) SetPipelineP99Us(us float64) {
	m.PipelineP99Us.Set(us)
}
