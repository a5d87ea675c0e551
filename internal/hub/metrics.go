package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	connections prometheus.Gauge
	events      *prometheus.CounterVec
	broadcasts  *prometheus.CounterVec
	dropped     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hearth_ws_connections",
			Help: "Currently open websocket connections.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_ws_events_total",
			Help: "Client events processed, by event name.",
		}, []string{"event"}),
		broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hearth_ws_broadcasts_total",
			Help: "Server events published to rooms, by event name.",
		}, []string{"event"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "hearth_ws_dropped_messages_total",
			Help: "Messages dropped because a connection's send queue was full.",
		}),
	}
}
