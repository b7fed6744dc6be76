package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/adapters/analysis"
	"trading-research-core/internal/infra/metrics"
)

// Schedule is the progressive poll cadence: a long first wait while the
// service warms up, then tighter checks, bounded by an absolute deadline
// measured from job start.
type Schedule struct {
	First    time.Duration
	Second   time.Duration
	Steady   time.Duration
	Deadline time.Duration
}

func DefaultSchedule() Schedule {
	return Schedule{
		First:    60 * time.Second,
		Second:   30 * time.Second,
		Steady:   15 * time.Second,
		Deadline: 5 * time.Minute,
	}
}

func (s Schedule) interval(attempt int) time.Duration {
	switch attempt {
	case 0:
		return s.First
	case 1:
		return s.Second
	default:
		return s.Steady
	}
}

// Poller drives the pull delivery channel: sequential status checks per job
// on the progressive schedule, feeding terminal results into the Registry.
type Poller struct {
	jobs     repository.JobRepository
	registry *Registry
	sched    Schedule
	log      *zerolog.Logger
}

func NewPoller(jobs repository.JobRepository, registry *Registry, sched Schedule, logger *zerolog.Logger) *Poller {
	pl := logger.With().Str("component", "Poller").Logger()
	return &Poller{jobs: jobs, registry: registry, sched: sched, log: &pl}
}

// Watch starts polling for the job in a background goroutine and returns a
// stop function that cancels all pending timers. Checks for one job never
// overlap: the loop is strictly sequential.
func (p *Poller) Watch(ctx context.Context, jobID string, startedAt time.Time) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	go p.run(ctx, jobID, startedAt)
	return cancel
}

func (p *Poller) run(ctx context.Context, jobID string, startedAt time.Time) {
	deadline := startedAt.Add(p.sched.Deadline)
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for attempt := 0; ; attempt++ {
		next := p.sched.interval(attempt)

		// The deadline is enforced before scheduling, not after firing: a
		// check must land strictly inside start+deadline or it is never
		// issued.
		if pastDeadline(time.Now(), next, deadline) {
			p.timeout(ctx, jobID)
			return
		}

		timer.Reset(next)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		metrics.IncPollCheck()
		job, err := p.jobs.Find(ctx, nil, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Transient by policy: a flaky fetch or an unparseable row never
			// abandons the job inside its deadline window.
			metrics.IncPollTransientError()
			p.log.Warn().Err(err).Str("job_id", jobID).Int("attempt", attempt+1).Msg("status check failed; keeping schedule")
			continue
		}

		if job.Terminal() {
			p.registry.Deliver(model.Delivery{
				JobID:  jobID,
				Status: job.Status,
				Result: analysis.Normalize(job.ResponsePayload),
				Source: model.SourcePoll,
			})
			return
		}
	}
}

// pastDeadline reports whether a check scheduled next from now would land on
// or beyond the deadline. Landing exactly on it counts as past.
func pastDeadline(now time.Time, next time.Duration, deadline time.Time) bool {
	return !now.Add(next).Before(deadline)
}

// timeout transitions the job locally and delivers the timed_out outcome on
// the pull channel. A near-simultaneous terminal push loses or wins at the
// Registry, never here.
func (p *Poller) timeout(ctx context.Context, jobID string) {
	metrics.IncPollTimeout()

	status := model.JobStatusTimedOut
	result := model.AnalysisResult{}
	err := p.jobs.Update(ctx, nil, jobID, model.JobPatch{Status: &status})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrJobTerminal):
		// The service finished right at the wire. Prefer its outcome.
		if job, ferr := p.jobs.Find(ctx, nil, jobID); ferr == nil {
			status = job.Status
			result = analysis.Normalize(job.ResponsePayload)
		}
	default:
		p.log.Warn().Err(err).Str("job_id", jobID).Msg("could not persist local timeout")
	}

	p.registry.Deliver(model.Delivery{
		JobID:  jobID,
		Status: status,
		Result: result,
		Source: model.SourcePoll,
	})
}
