package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/usecase"
)

// SessionMonitor periodically re-validates the local session against the
// store. It is the pull half of session consistency; the realtime bridge is
// the push half, and both funnel into the same use case decision.
type SessionMonitor struct {
	interval time.Duration
	sessUC   usecase.SessionUseCase
	log      *zerolog.Logger
}

func NewSessionMonitor(interval time.Duration, sessUC usecase.SessionUseCase, logger *zerolog.Logger) *SessionMonitor {
	monLog := logger.With().Str("component", "SessionMonitor").Logger()
	return &SessionMonitor{
		interval: interval,
		sessUC:   sessUC,
		log:      &monLog,
	}
}

func (w *SessionMonitor) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting session monitor")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session monitor")
			return ctx.Err()
		case <-ticker.C:
			if err := w.sessUC.ValidateTick(ctx); err != nil {
				w.log.Error().Err(err).Msg("session validation tick failed")
			}
		}
	}
}
