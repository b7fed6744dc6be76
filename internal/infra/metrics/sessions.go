package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(sessionValidationsTotal, sessionSignOutsTotal, sessionGuardBlocksTotal, sessionRecreatedTotal)
}

var sessionValidationsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "session_validations_total",
		Help: "Session validation ticks executed by the monitor.",
	},
)

var sessionSignOutsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "session_sign_outs_total",
		Help: "Sign-outs executed by the monitor, labeled by trigger.",
	},
	[]string{"trigger"}, // 'poll', 'push', 'voluntary'
)

var sessionGuardBlocksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "session_guard_blocks_total",
		Help: "Forced sign-outs deferred because jobs were in flight.",
	},
)

var sessionRecreatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "session_recreated_total",
		Help: "Session records recreated after a missing read.",
	},
)

func IncSessionValidation()        { sessionValidationsTotal.Inc() }
func IncSessionSignOut(trig string) { sessionSignOutsTotal.WithLabelValues(norm(trig)).Inc() }
func IncSessionGuardBlock()        { sessionGuardBlocksTotal.Inc() }
func IncSessionRecreated()         { sessionRecreatedTotal.Inc() }
