package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/repository"
)

var _ repository.CreditRepository = (*creditRepo)(nil)

type creditRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewCreditRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *creditRepo {
	return &creditRepo{pool: pool, tm: tm}
}

func (r *creditRepo) Balance(ctx context.Context, tx repository.Tx, userID string) (*model.CreditLedgerEntry, error) {
	const q = `
SELECT user_id, plan_type, remaining, last_reset_date
FROM user_credits WHERE user_id=$1;`

	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}

	var (
		entry model.CreditLedgerEntry
		plan  string
		raw   []byte
	)
	if err := row.Scan(&entry.UserID, &plan, &raw, &entry.LastResetDate); err != nil {
		return nil, translateScanErr(err)
	}
	entry.PlanType = model.PlanType(plan)
	if err := json.Unmarshal(raw, &entry.Remaining); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &entry, nil
}

// Engage is the write half of the two-phase reserve protocol. The job id is
// recorded first so a retry is a no-op, and the decrement is one conditional
// UPDATE so a balance can never go negative under concurrent launches.
func (r *creditRepo) Engage(ctx context.Context, tx repository.Tx, userID string, feature model.Feature, jobID string) error {
	run := func(ctx context.Context, tx repository.Tx) error {
		const tag = `
INSERT INTO credit_engagements (job_id, user_id, feature, engaged_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (job_id) DO NOTHING;`

		ct, err := execSQL(ctx, r.pool, tx, tag, jobID, userID, string(feature))
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return domain.ErrAlreadyEngaged
		}

		const decrement = `
UPDATE user_credits
SET remaining = jsonb_set(remaining, ARRAY[$2], to_jsonb((remaining->>$2)::int - 1))
WHERE user_id=$1 AND COALESCE((remaining->>$2)::int, 0) > 0;`

		ct, err = execSQL(ctx, r.pool, tx, decrement, userID, string(feature))
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			// Rolls the engagement tag back with the transaction.
			return domain.ErrCreditExhausted
		}
		return nil
	}

	if tx != nil {
		return run(ctx, tx)
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, run)
}

func (r *creditRepo) Reset(ctx context.Context, tx repository.Tx, olderThan time.Time) (int, error) {
	// Refill stale ledgers to their plan grant.
	refilled := 0
	run := func(ctx context.Context, tx repository.Tx) error {
		const pick = `
SELECT user_id, plan_type FROM user_credits
WHERE last_reset_date < $1
FOR UPDATE SKIP LOCKED;`

		rows, err := pickRows(ctx, r.pool, tx, pick, olderThan)
		if err != nil {
			return err
		}
		type stale struct{ userID, plan string }
		var targets []stale
		for rows.Next() {
			var s stale
			if err := rows.Scan(&s.userID, &s.plan); err != nil {
				rows.Close()
				return domain.ErrReadDatabaseRow
			}
			targets = append(targets, s)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		const refill = `
UPDATE user_credits SET remaining=$2, last_reset_date=NOW() WHERE user_id=$1;`

		for _, t := range targets {
			grant, err := json.Marshal(model.PlanGrants(model.PlanType(t.plan)))
			if err != nil {
				return err
			}
			if _, err := execSQL(ctx, r.pool, tx, refill, t.userID, grant); err != nil {
				return err
			}
			refilled++
		}
		return nil
	}

	var err error
	if tx != nil {
		err = run(ctx, tx)
	} else {
		err = r.tm.WithTx(ctx, pgx.TxOptions{}, run)
	}
	return refilled, err
}

func (r *creditRepo) Save(ctx context.Context, tx repository.Tx, entry *model.CreditLedgerEntry) error {
	raw, err := json.Marshal(entry.Remaining)
	if err != nil {
		return err
	}
	if entry.LastResetDate.IsZero() {
		entry.LastResetDate = time.Now()
	}

	const q = `
INSERT INTO user_credits (user_id, plan_type, remaining, last_reset_date)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
  plan_type = EXCLUDED.plan_type,
  remaining = EXCLUDED.remaining,
  last_reset_date = EXCLUDED.last_reset_date;`

	_, err = execSQL(ctx, r.pool, tx, q, entry.UserID, string(entry.PlanType), raw, entry.LastResetDate)
	return err
}

// IsNoLedger reports whether the error means the user simply has no ledger
// row yet.
func IsNoLedger(err error) bool { return errors.Is(err, domain.ErrNotFound) }
