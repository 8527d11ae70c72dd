package gateway

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayGuard deduplicates IPN notifications within a TTL window so a
// re-delivered notification never re-applies an order status. A key is
// only held for outcomes that were actually applied; Release gives the
// key back when the apply step fails, keeping the notification
// retryable.
type ReplayGuard interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisReplay implements ReplayGuard on top of Redis SETNX.
type RedisReplay struct {
	R *redis.Client
}

// Acquire claims the key, returning false when it was already claimed.
func (g RedisReplay) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if g.R == nil {
		return true, nil
	}
	return g.R.SetNX(ctx, key, "1", ttl).Result()
}

// Release gives a claimed key back.
func (g RedisReplay) Release(ctx context.Context, key string) error {
	if g.R == nil {
		return nil
	}
	return g.R.Del(ctx, key).Err()
}

func replayKey(collectionID string) string {
	return fmt.Sprintf("ipn:mercadopago:%s", collectionID)
}
