package orchestrator

import (
	"sync/atomic"

	"trading-research-core/internal/infra/metrics"
)

// ActiveJobs counts in-flight jobs for this client. The session monitor
// consults it before honoring any forced sign-out.
type ActiveJobs struct {
	n atomic.Int64
}

func NewActiveJobs() *ActiveJobs { return &ActiveJobs{} }

func (a *ActiveJobs) Inc() {
	metrics.SetActiveJobs(a.n.Add(1))
}

func (a *ActiveJobs) Dec() {
	v := a.n.Add(-1)
	if v < 0 {
		// Dec without a matching Inc is a bug upstream; clamp instead of
		// letting the guard go permanently negative.
		a.n.Store(0)
		v = 0
	}
	metrics.SetActiveJobs(v)
}

func (a *ActiveJobs) Value() int64 { return a.n.Load() }
