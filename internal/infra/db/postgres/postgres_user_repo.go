package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	const q = `
SELECT id, email, display_name, plan, registered_at, last_active_at
FROM users WHERE id=$1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var (
		u    model.User
		plan string
		last *time.Time
	)
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &plan, &u.RegisteredAt, &last); err != nil {
		return nil, translateScanErr(err)
	}
	u.Plan = model.PlanType(plan)
	if last != nil {
		u.LastActiveAt = *last
	}
	return &u, nil
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, user *model.User) error {
	const q = `
INSERT INTO users (id, email, display_name, plan, registered_at, last_active_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  display_name = EXCLUDED.display_name,
  plan = EXCLUDED.plan;`

	var last *time.Time
	if !user.LastActiveAt.IsZero() {
		last = &user.LastActiveAt
	}
	_, err := execSQL(ctx, r.pool, tx, q, user.ID, user.Email, user.DisplayName, string(user.Plan), user.RegisteredAt, last)
	return err
}

func (r *userRepo) TouchLastActive(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE users SET last_active_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id)
	return err
}
