package redis

import (
	"context"
	"fmt"
	"time"
)

type RateLimiter struct {
	client *redClient
}

func NewRateLimiter(client *redClient) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow implements a fixed-window counter per key.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	count, err := r.client.Incr(ctx, key)
	if err != nil {
		return false, err
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, window); err != nil {
			return false, err
		}
	}

	return count <= int64(limit), nil
}

func LaunchKey(userID, feature string) string {
	return fmt.Sprintf("rate:launch:%s:%s", userID, feature)
}
