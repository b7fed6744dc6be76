package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(creditEngagesTotal, creditPrecheckBlocksTotal, creditResetsTotal)
}

var creditEngagesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credit_engages_total",
		Help: "Two-phase credit engagements, labeled by feature and outcome.",
	},
	[]string{"feature", "outcome"}, // 'ok', 'exhausted', 'duplicate'
)

var creditPrecheckBlocksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "credit_precheck_blocks_total",
		Help: "Launches refused by the read-only balance pre-check.",
	},
	[]string{"feature"},
)

var creditResetsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "credit_resets_total",
		Help: "Ledger rows refilled by the scheduled reset.",
	},
)

func IncCreditEngage(feature, outcome string) {
	creditEngagesTotal.WithLabelValues(norm(feature), norm(outcome)).Inc()
}
func IncCreditPrecheckBlock(feature string) {
	creditPrecheckBlocksTotal.WithLabelValues(norm(feature)).Inc()
}
func AddCreditResets(n int) { creditResetsTotal.Add(float64(n)) }
