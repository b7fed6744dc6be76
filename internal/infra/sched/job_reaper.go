package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/metrics"
)

// JobReaper sweeps jobs that outlived the absolute deadline without the
// launching process marking them. This covers crashes and closed browser
// tabs; the per-job pollers handle the live case.
type JobReaper struct {
	interval      time.Duration
	cutoffSeconds int
	jobs          repository.JobRepository
	publisher     adapter.EventPublisher
	log           *zerolog.Logger
}

func NewJobReaper(interval time.Duration, cutoff time.Duration, jobs repository.JobRepository, publisher adapter.EventPublisher, logger *zerolog.Logger) *JobReaper {
	reapLog := logger.With().Str("component", "JobReaper").Logger()
	return &JobReaper{
		interval:      interval,
		cutoffSeconds: int(cutoff / time.Second),
		jobs:          jobs,
		publisher:     publisher,
		log:           &reapLog,
	}
}

func (w *JobReaper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting job reaper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping job reaper")
			return ctx.Err()
		case <-ticker.C:
			if n := w.sweep(ctx); n > 0 {
				w.log.Info().Int("count", n).Msg("stuck jobs timed out")
			}
		}
	}
}

func (w *JobReaper) sweep(ctx context.Context) int {
	stuck, err := w.jobs.FindStuck(ctx, nil, w.cutoffSeconds)
	if err != nil {
		w.log.Error().Err(err).Msg("stuck job scan failed")
		return 0
	}

	reaped := 0
	for _, job := range stuck {
		status := model.JobStatusTimedOut
		err := w.jobs.Update(ctx, nil, job.ID, model.JobPatch{Status: &status})
		if errors.Is(err, domain.ErrJobTerminal) || errors.Is(err, domain.ErrJobNotFound) {
			continue // finished under us
		}
		if err != nil {
			w.log.Error().Err(err).Str("job_id", job.ID).Msg("could not time out stuck job")
			continue
		}
		reaped++
		metrics.IncJobFinished(string(model.JobStatusTimedOut))

		ev := adapter.ChangeEvent{
			Kind:   adapter.EventKindJob,
			UserID: job.UserID,
			JobID:  job.ID,
			Status: model.JobStatusTimedOut,
			At:     time.Now(),
		}
		if err := w.publisher.Publish(ctx, ev); err != nil {
			w.log.Debug().Err(err).Str("job_id", job.ID).Msg("could not publish reap event")
		}
	}
	return reaped
}
