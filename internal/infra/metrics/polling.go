package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(pollChecksTotal, pollTransientErrorsTotal, pollTimeoutsTotal)
}

var pollChecksTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "poll_checks_total",
		Help: "Status checks issued by the polling schedule.",
	},
)

var pollTransientErrorsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "poll_transient_errors_total",
		Help: "Fetch failures absorbed without abandoning the schedule.",
	},
)

var pollTimeoutsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "poll_timeouts_total",
		Help: "Jobs locally marked timed_out at the polling deadline.",
	},
)

func IncPollCheck()          { pollChecksTotal.Inc() }
func IncPollTransientError() { pollTransientErrorsTotal.Inc() }
func IncPollTimeout()        { pollTimeoutsTotal.Inc() }
