package repository

import (
	"context"
	"time"

	"trading-research-core/internal/domain/model"
)

type CreditRepository interface {
	Balance(ctx context.Context, tx Tx, userID string) (*model.CreditLedgerEntry, error)
	// Engage decrements the feature balance by one unit, tagged with the
	// job id. The decrement is a single conditional statement at the store
	// level: it returns domain.ErrCreditExhausted when the balance is zero
	// and domain.ErrAlreadyEngaged when the job id was engaged before.
	Engage(ctx context.Context, tx Tx, userID string, feature model.Feature, jobID string) error
	// Reset refills balances to the plan grant for ledgers whose
	// last_reset_date is older than the cutoff. Returns rows refilled.
	Reset(ctx context.Context, tx Tx, olderThan time.Time) (int, error)
	Save(ctx context.Context, tx Tx, entry *model.CreditLedgerEntry) error
}
