package adapter

import (
	"context"
	"encoding/json"
	"time"

	"trading-research-core/internal/domain/model"
)

type EventKind string

const (
	EventKindJob     EventKind = "job"
	EventKindSession EventKind = "session"
)

// ChangeEvent is one row-level change notification for the current user:
// a job update or a session update.
type ChangeEvent struct {
	Kind      EventKind       `json:"kind"`
	UserID    string          `json:"user_id"`
	JobID     string          `json:"job_id,omitempty"`
	Status    model.JobStatus `json:"status,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	IsActive  bool            `json:"is_active,omitempty"`
	At        time.Time       `json:"at"`
}

// EventPublisher pushes change events onto the per-user stream.
type EventPublisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// EventStream is the subscribe side of the change-notification channel.
// The returned channel closes when the underlying connection drops; the
// caller owns resubscription.
type EventStream interface {
	Subscribe(ctx context.Context, userID string) (<-chan ChangeEvent, error)
}
