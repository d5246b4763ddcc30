package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Guard is a Redis-backed once-per-window gate. The refresh loop uses
// it to run AI enrichment at most once per cache day and to keep
// repeating log lines quiet between state changes.
type Guard struct {
	rdb *redis.Client
}

// New creates a Guard backed by Redis.
func New(redisURL, password string) (*Guard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Guard{rdb: rdb}, nil
}

// Close shuts down the Redis connection.
func (g *Guard) Close() error {
	return g.rdb.Close()
}

// Once atomically claims key for the TTL window and reports whether
// this caller won the claim. On Redis errors it returns true: the
// guarded work is best-effort enrichment, and running it twice is
// cheaper than never running it because Redis blipped.
func (g *Guard) Once(ctx context.Context, key string, ttl time.Duration) bool {
	won, err := g.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return true
	}
	return won
}

// Seen reports whether key is currently claimed.
func (g *Guard) Seen(ctx context.Context, key string) bool {
	exists, err := g.rdb.Exists(ctx, key).Result()
	return err == nil && exists > 0
}

// Clear releases a key so the guarded action can fire again when the
// condition resets.
func (g *Guard) Clear(ctx context.Context, key string) {
	g.rdb.Del(ctx, key) //nolint:errcheck
}

// Ping reports backend liveness, for the readiness probe.
func (g *Guard) Ping(ctx context.Context) error {
	return g.rdb.Ping(ctx).Err()
}
