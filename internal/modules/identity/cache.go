// README: Role cache backed by Redis; misses and Redis errors fall through to Postgres.
package identity

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"seatshare/internal/modules/user"
)

const roleKeyPrefix = "identity:role:"

type RoleCache interface {
	Get(ctx context.Context, uid string) (user.Role, bool)
	Set(ctx context.Context, uid string, role user.Role)
}

type RedisRoleCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	return &RedisRoleCache{redis: client, ttl: ttl}
}

func (c *RedisRoleCache) Get(ctx context.Context, uid string) (user.Role, bool) {
	val, err := c.redis.Get(ctx, roleKeyPrefix+uid).Result()
	if err != nil {
		return "", false
	}
	return user.Role(val), true
}

func (c *RedisRoleCache) Set(ctx context.Context, uid string, role user.Role) {
	_ = c.redis.Set(ctx, roleKeyPrefix+uid, string(role), c.ttl).Err()
}

type noCache struct{}

func (noCache) Get(context.Context, string) (user.Role, bool) { return "", false }
func (noCache) Set(context.Context, string, user.Role)        {}
