package sched

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/metrics"
)

// CreditResetWorker refills ledgers to their plan grants on a cron
// schedule. The repository does the date comparison, so overlapping runs
// and restarts refill each ledger at most once per period.
type CreditResetWorker struct {
	spec    string
	period  string
	credits repository.CreditRepository
	cron    *cron.Cron
	log     *zerolog.Logger
}

func NewCreditResetWorker(spec, period string, credits repository.CreditRepository, logger *zerolog.Logger) *CreditResetWorker {
	rstLog := logger.With().Str("component", "CreditResetWorker").Logger()
	return &CreditResetWorker{
		spec:    spec,
		period:  period,
		credits: credits,
		log:     &rstLog,
	}
}

func (w *CreditResetWorker) Run(ctx context.Context) error {
	w.log.Info().Str("schedule", w.spec).Msg("Starting credit reset worker")
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.spec, func() { w.reset(ctx) }); err != nil {
		return err
	}
	w.cron.Start()

	<-ctx.Done()
	w.log.Info().Msg("Stopping credit reset worker")
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

func (w *CreditResetWorker) reset(ctx context.Context) {
	// Refill anything last reset before the current period boundary.
	n, err := w.credits.Reset(ctx, nil, w.periodStart(time.Now()))
	if err != nil {
		w.log.Error().Err(err).Msg("credit reset failed")
		return
	}
	if n > 0 {
		metrics.AddCreditResets(n)
		w.log.Info().Int("count", n).Msg("credit ledgers refilled")
	}
}

func (w *CreditResetWorker) periodStart(now time.Time) time.Time {
	if w.period == "monthly" {
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
