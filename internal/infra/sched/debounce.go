package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/usecase"
)

// AuthDebouncer absorbs the burst of auth-provider events that arrive
// around a sign-in. Observations within the window collapse into one
// settled verdict; only a settled null observation triggers a re-verify
// against the store. Without this, a transient null during token refresh
// would tear down a healthy session.
type AuthDebouncer struct {
	window time.Duration
	sessUC usecase.SessionUseCase
	log    *zerolog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	lastNull bool
}

func NewAuthDebouncer(window time.Duration, sessUC usecase.SessionUseCase, logger *zerolog.Logger) *AuthDebouncer {
	dbLog := logger.With().Str("component", "AuthDebouncer").Logger()
	return &AuthDebouncer{
		window: window,
		sessUC: sessUC,
		log:    &dbLog,
	}
}

// Observe records one raw auth event. hasSession reports whether the
// provider currently claims a live session. Each call restarts the window;
// the verdict that settles is the last one observed.
func (d *AuthDebouncer) Observe(ctx context.Context, hasSession bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastNull = !hasSession
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, func() { d.settle(ctx) })
}

// Stop cancels any pending settlement.
func (d *AuthDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *AuthDebouncer) settle(ctx context.Context) {
	d.mu.Lock()
	wasNull := d.lastNull
	d.timer = nil
	d.mu.Unlock()

	if !wasNull {
		return
	}
	d.log.Debug().Msg("null auth observation settled; re-verifying against store")
	if err := d.sessUC.VerifyNullSession(ctx); err != nil {
		d.log.Error().Err(err).Msg("null session re-verify failed")
	}
}
