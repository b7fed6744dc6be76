package repository

import (
	"context"

	"trading-research-core/internal/domain/model"
)

type SessionRepository interface {
	Find(ctx context.Context, tx Tx, sessionID string) (*model.SessionRecord, error)
	// Activate upserts the given record as active and deactivates every
	// other session the user holds. Last writer wins; there is no lock
	// across devices, just a conditional update.
	Activate(ctx context.Context, tx Tx, rec *model.SessionRecord) (deactivated []string, err error)
	// Refresh bumps last_seen without touching is_active.
	Refresh(ctx context.Context, tx Tx, sessionID string) error
	Deactivate(ctx context.Context, tx Tx, sessionID string) error
}
