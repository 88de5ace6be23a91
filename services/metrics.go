package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/akinalp/nexus/models"
)

// Metrics, signaling çekirdeğinin Prometheus metrikleri.
//
// nil *Metrics geçerlidir: tüm metodlar nil receiver'da hiçbir şey yapmaz,
// testler metrik kurmadan service oluşturabilir.
type Metrics struct {
	callsInitiated  *prometheus.CounterVec
	callsTerminated *prometheus.CounterVec
	callsRejected   *prometheus.CounterVec
	callsActive     prometheus.Gauge
	callDuration    prometheus.Histogram

	iceBuffered prometheus.Counter
	iceFlushed  prometheus.Counter
	iceDirect   prometheus.Counter

	onlineUsers     prometheus.Gauge
	connections     prometheus.Gauge
	presenceEvents  *prometheus.CounterVec
	callLogsDropped prometheus.Counter
	callLogsWritten prometheus.Counter
}

// NewMetrics, metrikleri reg'e kaydeder. Production'da
// prometheus.DefaultRegisterer, testlerde prometheus.NewRegistry() verilir.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	const ns = "nexus"

	return &Metrics{
		callsInitiated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "calls", Name: "initiated_total",
			Help: "Calls that reached the ringing state, by kind",
		}, []string{"kind"}),
		callsTerminated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "calls", Name: "terminated_total",
			Help: "Calls that reached a terminal state, by state and end reason",
		}, []string{"state", "reason"}),
		callsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "calls", Name: "requests_rejected_total",
			Help: "Call operations refused synchronously, by error code",
		}, []string{"code"}),
		callsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "calls", Name: "active",
			Help: "Sessions currently in a non-terminal state",
		}),
		callDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "calls", Name: "duration_seconds",
			Help:    "Connected duration of completed calls",
			Buckets: []float64{5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}),
		iceBuffered: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "ice", Name: "candidates_buffered_total",
			Help: "ICE candidates queued until the recipient set its remote description",
		}),
		iceFlushed: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "ice", Name: "candidates_flushed_total",
			Help: "Buffered ICE candidates delivered on flush",
		}),
		iceDirect: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "ice", Name: "candidates_relayed_total",
			Help: "ICE candidates delivered without buffering",
		}),
		onlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "presence", Name: "online_users",
			Help: "Users with at least one live connection",
		}),
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "presence", Name: "connections",
			Help: "Live WebSocket connections",
		}),
		presenceEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "presence", Name: "events_total",
			Help: "Presence transitions announced to peers, by type",
		}, []string{"type"}),
		callLogsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "call_log", Name: "dropped_total",
			Help: "Call log records dropped because the queue was full",
		}),
		callLogsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "call_log", Name: "written_total",
			Help: "Call log records persisted",
		}),
	}
}

func (m *Metrics) CallInitiated(kind models.CallKind) {
	if m == nil {
		return
	}
	m.callsInitiated.WithLabelValues(string(kind)).Inc()
	m.callsActive.Inc()
}

func (m *Metrics) CallTerminated(state models.CallState, reason models.EndReason, connected time.Duration) {
	if m == nil {
		return
	}
	m.callsTerminated.WithLabelValues(string(state), string(reason)).Inc()
	m.callsActive.Dec()
	if connected > 0 {
		m.callDuration.Observe(connected.Seconds())
	}
}

func (m *Metrics) CallRequestRejected(code string) {
	if m == nil {
		return
	}
	m.callsRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) ICEBuffered() {
	if m == nil {
		return
	}
	m.iceBuffered.Inc()
}

func (m *Metrics) ICEFlushed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.iceFlushed.Add(float64(n))
}

func (m *Metrics) ICERelayed() {
	if m == nil {
		return
	}
	m.iceDirect.Inc()
}

func (m *Metrics) SetPresence(onlineUsers, connections int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(onlineUsers))
	m.connections.Set(float64(connections))
}

func (m *Metrics) PresenceAnnounced(eventType string) {
	if m == nil {
		return
	}
	m.presenceEvents.WithLabelValues(eventType).Inc()
}

func (m *Metrics) CallLogDropped() {
	if m == nil {
		return
	}
	m.callLogsDropped.Inc()
}

func (m *Metrics) CallLogWritten() {
	if m == nil {
		return
	}
	m.callLogsWritten.Inc()
}
