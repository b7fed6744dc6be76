package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/metrics"
	red "trading-research-core/internal/infra/redis"
)

var _ repository.CreditRepository = (*creditRepoCacheDecorator)(nil)

// creditRepoCacheDecorator caches Balance reads for the pre-check path.
// Engage stays authoritative against Postgres, so a slightly stale balance
// can only make CanLaunch optimistic, never oversell a credit.
type creditRepoCacheDecorator struct {
	inner repository.CreditRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewCreditRepoCacheDecorator(inner repository.CreditRepository, cache red.RedisClient) repository.CreditRepository {
	return &creditRepoCacheDecorator{
		inner: inner,
		cache: cache,
		ttl:   30 * time.Second,
	}
}

func balanceKey(userID string) string {
	return fmt.Sprintf("credit:balance:%s", userID)
}

func (d *creditRepoCacheDecorator) Balance(ctx context.Context, tx repository.Tx, userID string) (*model.CreditLedgerEntry, error) {
	// A transactional read must see the row it locked, never the cache.
	if tx == nil {
		if val, err := d.cache.Get(ctx, balanceKey(userID)); err == nil {
			var entry model.CreditLedgerEntry
			if json.Unmarshal([]byte(val), &entry) == nil {
				metrics.IncCacheRequest("credit_balance", "hit")
				return &entry, nil
			}
		}
		metrics.IncCacheRequest("credit_balance", "miss")
	}

	entry, err := d.inner.Balance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		if bytes, err := json.Marshal(entry); err == nil {
			_ = d.cache.Set(ctx, balanceKey(userID), bytes, d.ttl)
		}
	}
	return entry, nil
}

func (d *creditRepoCacheDecorator) Engage(ctx context.Context, tx repository.Tx, userID string, feature model.Feature, jobID string) error {
	err := d.inner.Engage(ctx, tx, userID, feature, jobID)
	if err == nil {
		_ = d.cache.Del(ctx, balanceKey(userID))
	}
	return err
}

func (d *creditRepoCacheDecorator) Reset(ctx context.Context, tx repository.Tx, olderThan time.Time) (int, error) {
	// Refills touch an unknown set of users; the per-user keys expire on
	// their own short TTL.
	return d.inner.Reset(ctx, tx, olderThan)
}

func (d *creditRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, entry *model.CreditLedgerEntry) error {
	err := d.inner.Save(ctx, tx, entry)
	if err == nil {
		_ = d.cache.Del(ctx, balanceKey(entry.UserID))
	}
	return err
}
