package monitoring

import (
	"voicecast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exposes fanout-side broadcast metrics.
type PrometheusCollector struct {
	sessionsActive   prometheus.Gauge
	clientsConnected prometheus.Gauge
	framesRelayed    prometheus.Counter
	framesDropped    *prometheus.CounterVec
	rejectionsTotal  *prometheus.CounterVec
	roomListeners    *prometheus.GaugeVec
	relayFanout      prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voicecast_sessions_active_total",
			Help: "Number of live broadcast sessions",
		}),

		clientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "voicecast_clients_connected_total",
			Help: "Number of connected channel clients",
		}),

		framesRelayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecast_frames_relayed_total",
			Help: "Total audio frames relayed to listeners",
		}),

		framesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecast_frames_dropped_total",
			Help: "Total audio frames dropped before relay",
		}, []string{"reason"}),

		rejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecast_broadcast_rejections_total",
			Help: "Total broadcast start attempts rejected",
		}, []string{"reason"}),

		roomListeners: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "voicecast_room_members",
			Help: "Number of clients joined to each room's frame delivery",
		}, []string{"room"}),

		relayFanout: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecast_relay_fanout_size",
			Help:    "Recipients per relayed frame",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (p *PrometheusCollector) RecordSessionStarted() {
	p.sessionsActive.Inc()
}

func (p *PrometheusCollector) RecordSessionEnded() {
	p.sessionsActive.Dec()
}

func (p *PrometheusCollector) RecordClientConnected() {
	p.clientsConnected.Inc()
}

func (p *PrometheusCollector) RecordClientDisconnected() {
	p.clientsConnected.Dec()
}

func (p *PrometheusCollector) RecordFrameRelayed(recipients int) {
	p.framesRelayed.Inc()
	p.relayFanout.Observe(float64(recipients))
}

func (p *PrometheusCollector) RecordFrameDropped(reason string) {
	p.framesDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) RecordRejection(reason string) {
	p.rejectionsTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) SetRoomMembers(room domain.RoomID, count int) {
	p.roomListeners.WithLabelValues(string(room)).Set(float64(count))
}
