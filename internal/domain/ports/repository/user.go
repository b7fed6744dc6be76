package repository

import (
	"context"

	"trading-research-core/internal/domain/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	Save(ctx context.Context, tx Tx, user *model.User) error
	TouchLastActive(ctx context.Context, tx Tx, id string) error
}
