package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsLaunchedTotal, jobsFinishedTotal, deliveriesTotal, deliveriesSuppressedTotal, deliveriesDroppedTotal, activeJobs)
}

var jobsLaunchedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_jobs_launched_total",
		Help: "Total analysis jobs dispatched, labeled by feature.",
	},
	[]string{"feature"},
)

var jobsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "analysis_jobs_finished_total",
		Help: "Total analysis jobs reaching a terminal status, labeled by status.",
	},
	[]string{"status"},
)

var deliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "result_deliveries_total",
		Help: "Result deliveries that fired a handler, labeled by channel.",
	},
	[]string{"source"},
)

var deliveriesSuppressedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "result_deliveries_suppressed_total",
		Help: "Duplicate deliveries absorbed by the fired flag, labeled by channel.",
	},
	[]string{"source"},
)

var deliveriesDroppedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "result_deliveries_dropped_total",
		Help: "Deliveries that arrived after the consumer detached.",
	},
)

var activeJobs = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "analysis_jobs_active",
		Help: "Jobs currently in flight for this client.",
	},
)

func IncJobLaunched(feature string)  { jobsLaunchedTotal.WithLabelValues(norm(feature)).Inc() }
func IncJobFinished(status string)   { jobsFinishedTotal.WithLabelValues(norm(status)).Inc() }
func IncDelivery(source string)      { deliveriesTotal.WithLabelValues(norm(source)).Inc() }
func IncDeliverySuppressed(s string) { deliveriesSuppressedTotal.WithLabelValues(norm(s)).Inc() }
func IncDeliveryDropped()            { deliveriesDroppedTotal.Inc() }
func SetActiveJobs(n int64)          { activeJobs.Set(float64(n)) }
