package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/metrics"
)

// Compile-time check
var _ CreditGateway = (*creditUC)(nil)

// CreditGateway is the two-phase reserve protocol in front of the ledger:
// a read-only pre-check, then an atomic engage tagged with the job id.
type CreditGateway interface {
	CanLaunch(ctx context.Context, userID string, feature model.Feature) (allowed bool, remaining int, err error)
	// Engage burns one unit for the job. Returns false (no error) when the
	// balance is exhausted or the job id was already engaged; retries are
	// therefore safe and never double-charge.
	Engage(ctx context.Context, userID string, feature model.Feature, jobID string) (bool, error)
}

type creditUC struct {
	credits repository.CreditRepository
	log     *zerolog.Logger
}

func NewCreditGateway(credits repository.CreditRepository, logger *zerolog.Logger) *creditUC {
	cl := logger.With().Str("component", "CreditGateway").Logger()
	return &creditUC{credits: credits, log: &cl}
}

func (c *creditUC) CanLaunch(ctx context.Context, userID string, feature model.Feature) (bool, int, error) {
	entry, err := c.credits.Balance(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// No ledger row yet: nothing granted, nothing to spend.
			metrics.IncCreditPrecheckBlock(string(feature))
			return false, 0, nil
		}
		return false, 0, err
	}
	remaining := entry.RemainingFor(feature)
	if remaining <= 0 {
		metrics.IncCreditPrecheckBlock(string(feature))
		return false, 0, nil
	}
	return true, remaining, nil
}

func (c *creditUC) Engage(ctx context.Context, userID string, feature model.Feature, jobID string) (bool, error) {
	err := c.credits.Engage(ctx, nil, userID, feature, jobID)
	switch {
	case err == nil:
		metrics.IncCreditEngage(string(feature), "ok")
		return true, nil
	case errors.Is(err, domain.ErrAlreadyEngaged):
		// Idempotent retry: the unit was burned for this job already.
		metrics.IncCreditEngage(string(feature), "duplicate")
		c.log.Debug().Str("job_id", jobID).Msg("credit already engaged for job")
		return false, nil
	case errors.Is(err, domain.ErrCreditExhausted):
		metrics.IncCreditEngage(string(feature), "exhausted")
		return false, nil
	default:
		return false, err
	}
}
