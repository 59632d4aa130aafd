package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinic/internal/platform/db"
	"github.com/clinicdesk/clinic/internal/platform/kv"
)

// ensureAtLeastScript raises a hash field to ARGV[2] when it is lower.
var ensureAtLeastScript = redis.NewScript(`
local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local want = tonumber(ARGV[2])
if cur < want then
  redis.call('HSET', KEYS[1], ARGV[1], want)
  return want
end
return cur
`)

// RedisCounter keeps all counters of a tenant in one hash, one field per
// doctor. HINCRBY is atomic on the server, but it cannot join a database
// transaction.
type RedisCounter struct {
	client *redis.Client
}

func NewCounterRedis(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) hashKey(ctx context.Context) (string, error) {
	tenantID := db.TenantFromContext(ctx)
	if tenantID == "" {
		return "", errors.New("no tenant in context")
	}
	return kv.Key(tenantID, countersCollection), nil
}

func (c *RedisCounter) Next(ctx context.Context, doctorID string) (int64, error) {
	key, err := c.hashKey(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.client.HIncrBy(ctx, key, doctorID, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment counter for %s: %w", doctorID, err)
	}
	return n, nil
}

func (c *RedisCounter) Current(ctx context.Context, doctorID string) (int64, error) {
	key, err := c.hashKey(ctx)
	if err != nil {
		return 0, err
	}
	n, err := c.client.HGet(ctx, key, doctorID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter for %s: %w", doctorID, err)
	}
	return n, nil
}

func (c *RedisCounter) EnsureAtLeast(ctx context.Context, doctorID string, n int64) (int64, error) {
	key, err := c.hashKey(ctx)
	if err != nil {
		return 0, err
	}
	v, err := ensureAtLeastScript.Run(ctx, c.client, []string{key}, doctorID, n).Int64()
	if err != nil {
		return 0, fmt.Errorf("raise counter for %s: %w", doctorID, err)
	}
	return v, nil
}
