package dedup

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store is the subset of the redis client the guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Guard rejects repeated Idempotency-Key values within a TTL window.
type Guard struct {
	store  Store
	ttl    time.Duration
	prefix string
}

// NewGuard constructs a duplicate-submission guard.
func NewGuard(store Store, ttl time.Duration, prefix string) *Guard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if prefix == "" {
		prefix = "relay:call:idem"
	}
	return &Guard{store: store, ttl: ttl, prefix: prefix}
}

// Claim reserves key. It returns false when the key was already claimed and
// has not yet expired.
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.store.SetNX(ctx, g.key(key), time.Now().UTC().Format(time.RFC3339Nano), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

// Release drops a claim so the same key may be submitted again. Used when the
// request never reached the provider.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.store.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

func (g *Guard) key(key string) string {
	return fmt.Sprintf("%s:%s", g.prefix, key)
}
