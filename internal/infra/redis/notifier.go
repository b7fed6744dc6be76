package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain/ports/adapter"
)

var (
	_ adapter.EventPublisher = (*Notifier)(nil)
	_ adapter.EventStream    = (*Notifier)(nil)
)

// Notifier carries row-level change events over per-user pub/sub channels.
// It is both the publish side (used by whatever mutates jobs and sessions)
// and the subscribe side consumed by the realtime bridge.
type Notifier struct {
	client *redClient
	log    *zerolog.Logger
}

func NewNotifier(client *redClient, logger *zerolog.Logger) *Notifier {
	nl := logger.With().Str("component", "Notifier").Logger()
	return &Notifier{client: client, log: &nl}
}

func userChannel(userID string) string {
	return fmt.Sprintf("events:user:%s", userID)
}

func (n *Notifier) Publish(ctx context.Context, ev adapter.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.client.cli.Publish(ctx, userChannel(ev.UserID), data).Err()
}

// Subscribe opens one pub/sub subscription for the user. The returned
// channel closes when the connection drops or ctx is cancelled; callers own
// resubscription.
func (n *Notifier) Subscribe(ctx context.Context, userID string) (<-chan adapter.ChangeEvent, error) {
	sub := n.client.cli.Subscribe(ctx, userChannel(userID))
	// Force the subscription handshake so a dead broker fails here, not on
	// first receive.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan adapter.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev adapter.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					n.log.Warn().Err(err).Str("user_id", userID).Msg("dropping malformed change event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
