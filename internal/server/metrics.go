package server

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "connected_clients",
		Subsystem: "realtime",
		Help:      "Number of live websocket connections.",
	})

	onlineIdentities = prometheus.NewGauge(prometheus.GaugeOpts{
		Name:      "online_identities",
		Subsystem: "realtime",
		Help:      "Number of distinct identities with at least one connection.",
	})

	inboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "inbound_events_total",
		Subsystem: "realtime",
		Help:      "Inbound events accepted, labelled by event name.",
	}, []string{"event"})

	rejectedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "rejected_frames_total",
		Subsystem: "realtime",
		Help:      "Inbound frames dropped for failing protocol validation.",
	})

	eventDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "deliveries_total",
		Subsystem: "realtime",
		Help:      "Outbound events delivered to connections.",
	})

	droppedDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "dropped_deliveries_total",
		Subsystem: "realtime",
		Help:      "Outbound events dropped because the target connection was gone or backed up.",
	})

	blockedOrigins = prometheus.NewCounter(prometheus.CounterOpts{
		Name:      "blocked_origins_total",
		Subsystem: "realtime",
		Help:      "Websocket handshakes rejected by the origin allow-list.",
	})
)

func init() {
	prometheus.MustRegister(connectedClients)
	prometheus.MustRegister(onlineIdentities)
	prometheus.MustRegister(inboundEvents)
	prometheus.MustRegister(rejectedFrames)
	prometheus.MustRegister(eventDeliveries)
	prometheus.MustRegister(droppedDeliveries)
	prometheus.MustRegister(blockedOrigins)
}
