package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo)
}

// buildInfo is the usual constant gauge carrying version labels, so a scrape
// can tell which core binary answered it.
var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Version and commit of the running trading-research-core binary.",
	},
	[]string{"version", "commit"},
)

// SetBuildInfo records the ldflags-injected version and commit once at
// startup.
func SetBuildInfo(version, commit string) {
	buildInfo.WithLabelValues(version, commit).Set(1)
}
