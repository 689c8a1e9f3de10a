// README: Redis client for the identity role cache; an unreachable Redis degrades to Postgres lookups.
package infra

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 2 * time.Second

// NewRedis builds the cache client. Timeouts stay short: every authenticated
// request reads the cache. A failed start-up ping is logged, not fatal.
func NewRedis(ctx context.Context, addr string, log *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  time.Second,
		ReadTimeout:  250 * time.Millisecond,
		WriteTimeout: 250 * time.Millisecond,
		MaxRetries:   1,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable; role cache disabled until it recovers", "action", "redis_unavailable", "addr", addr, "error", err)
	} else {
		log.Info("connected to redis", "action", "redis_connected", "addr", addr)
	}
	return client
}
