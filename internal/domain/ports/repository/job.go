package repository

import (
	"context"

	"trading-research-core/internal/domain/model"
)

// JobRepository is pure data access against the jobs table. No retries, no
// backoff, no policy; callers own the schedule.
type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	Find(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// Update applies a patch to a non-terminal job. A patch that would move
	// a terminal job returns domain.ErrJobTerminal; a missing row returns
	// domain.ErrJobNotFound. Callers decide whether either is fatal.
	Update(ctx context.Context, tx Tx, id string, patch model.JobPatch) error
	// FindStuck returns non-terminal jobs created before the cutoff.
	FindStuck(ctx context.Context, tx Tx, cutoffSeconds int) ([]*model.Job, error)
}
