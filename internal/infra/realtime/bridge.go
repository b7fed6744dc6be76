package realtime

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/infra/adapters/analysis"
	"trading-research-core/internal/infra/metrics"
	"trading-research-core/internal/infra/orchestrator"
	"trading-research-core/internal/usecase"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Bridge is the push half of result delivery. It subscribes to the current
// user's change feed and forwards terminal job events into the registry,
// where the exactly-once gate arbitrates against the polling channel. It
// also routes session deactivation events into the session use case.
type Bridge struct {
	stream adapter.EventStream
	reg    *orchestrator.Registry
	sessUC usecase.SessionUseCase
	auth   *usecase.AuthState
	log    *zerolog.Logger
}

func NewBridge(stream adapter.EventStream, reg *orchestrator.Registry, sessUC usecase.SessionUseCase, auth *usecase.AuthState, logger *zerolog.Logger) *Bridge {
	brLog := logger.With().Str("component", "RealtimeBridge").Logger()
	return &Bridge{
		stream: stream,
		reg:    reg,
		sessUC: sessUC,
		auth:   auth,
		log:    &brLog,
	}
}

// Run keeps a subscription alive for the signed-in user, reconnecting with
// exponential backoff when the feed drops. It returns when ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info().Msg("Starting realtime bridge")
	backoff := reconnectBase

	for {
		if err := ctx.Err(); err != nil {
			b.log.Info().Msg("Stopping realtime bridge")
			return err
		}

		userID := b.auth.UserID()
		if userID == "" {
			// Signed out; nothing to subscribe to yet.
			sleep(ctx, reconnectBase)
			continue
		}

		ch, err := b.stream.Subscribe(ctx, userID)
		if err != nil {
			b.log.Warn().Err(err).Dur("backoff", backoff).Msg("subscribe failed; retrying")
			metrics.IncRealtimeReconnect()
			sleep(ctx, backoff)
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = reconnectBase
		b.log.Info().Str("user_id", userID).Msg("subscribed to change feed")

		b.pump(ctx, userID, ch)
		// Channel closed: feed dropped or user changed. Resubscribe; any
		// result that slipped through the gap arrives via polling.
		if ctx.Err() == nil {
			metrics.IncRealtimeReconnect()
		}
	}
}

func (b *Bridge) pump(ctx context.Context, userID string, ch <-chan adapter.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(ctx, ev)
			if b.auth.UserID() != userID {
				return // user switched under us; resubscribe
			}
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, ev adapter.ChangeEvent) {
	metrics.IncRealtimeEvent(string(ev.Kind))
	switch ev.Kind {
	case adapter.EventKindJob:
		b.handleJob(ev)
	case adapter.EventKindSession:
		if !ev.IsActive {
			b.sessUC.HandleRemoteDeactivation(ctx, ev.SessionID)
		}
	default:
		b.log.Debug().Str("kind", string(ev.Kind)).Msg("unknown event kind; ignoring")
	}
}

func (b *Bridge) handleJob(ev adapter.ChangeEvent) {
	if !ev.Status.IsTerminal() {
		return // progress updates are not deliveries
	}
	delivered := b.reg.Deliver(model.Delivery{
		JobID:  ev.JobID,
		Status: ev.Status,
		Result: analysis.Normalize(ev.Payload),
		Source: model.SourcePush,
	})
	if delivered {
		b.log.Debug().Str("job_id", ev.JobID).Str("status", string(ev.Status)).Msg("pushed result delivered")
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > reconnectMax {
		return reconnectMax
	}
	return next
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
