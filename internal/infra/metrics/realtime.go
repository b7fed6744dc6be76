package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(realtimeEventsTotal, realtimeReconnectsTotal)
}

var realtimeEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "realtime_events_total",
		Help: "Change events received on the push channel, labeled by kind.",
	},
	[]string{"kind"},
)

var realtimeReconnectsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "realtime_reconnects_total",
		Help: "Stream resubscriptions after a disconnect.",
	},
)

func IncRealtimeEvent(kind string) { realtimeEventsTotal.WithLabelValues(norm(kind)).Inc() }
func IncRealtimeReconnect()        { realtimeReconnectsTotal.Inc() }
