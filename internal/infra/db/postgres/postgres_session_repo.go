package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/repository"
)

var _ repository.SessionRepository = (*sessionRepo)(nil)

type sessionRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewSessionRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *sessionRepo {
	return &sessionRepo{pool: pool, tm: tm}
}

func (r *sessionRepo) Find(ctx context.Context, tx repository.Tx, sessionID string) (*model.SessionRecord, error) {
	const q = `
SELECT session_id, user_id, device_info, is_active, last_seen
FROM user_sessions WHERE session_id=$1;`

	row, err := pickRow(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	var rec model.SessionRecord
	if err := row.Scan(&rec.SessionID, &rec.UserID, &rec.DeviceInfo, &rec.IsActive, &rec.LastSeen); err != nil {
		if errors.Is(translateScanErr(err), domain.ErrNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &rec, nil
}

// Activate claims the active session for this device and retires every
// other session of the same user. Last writer wins; rows are never
// hard-deleted so a refresh racing a fresh sign-in cannot lose the record.
func (r *sessionRepo) Activate(ctx context.Context, tx repository.Tx, rec *model.SessionRecord) ([]string, error) {
	var deactivated []string

	run := func(ctx context.Context, tx repository.Tx) error {
		const retire = `
UPDATE user_sessions SET is_active=false
WHERE user_id=$1 AND session_id<>$2 AND is_active
RETURNING session_id;`

		rows, err := pickRows(ctx, r.pool, tx, retire, rec.UserID, rec.SessionID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return domain.ErrReadDatabaseRow
			}
			deactivated = append(deactivated, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		const claim = `
INSERT INTO user_sessions (session_id, user_id, device_info, is_active, last_seen)
VALUES ($1, $2, $3, true, NOW())
ON CONFLICT (session_id) DO UPDATE SET
  is_active = true,
  device_info = EXCLUDED.device_info,
  last_seen = NOW();`

		_, err = execSQL(ctx, r.pool, tx, claim, rec.SessionID, rec.UserID, rec.DeviceInfo)
		return err
	}

	if tx != nil {
		return deactivated, run(ctx, tx)
	}
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, run)
	return deactivated, err
}

func (r *sessionRepo) Refresh(ctx context.Context, tx repository.Tx, sessionID string) error {
	const q = `UPDATE user_sessions SET last_seen=NOW() WHERE session_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *sessionRepo) Deactivate(ctx context.Context, tx repository.Tx, sessionID string) error {
	const q = `UPDATE user_sessions SET is_active=false, last_seen=NOW() WHERE session_id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, sessionID)
	return err
}
