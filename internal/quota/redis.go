package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window TTLs give Redis room for clock skew while keeping dead windows
// from accumulating.
const (
	dailyTTL   = 48 * time.Hour
	monthlyTTL = 35 * 24 * time.Hour
)

// RedisCounter is the distributed counter store, enabled when REDIS_HOST is
// configured. Counter semantics match MemoryCounter; keys are period-scoped
// so windows roll over without a reset job.
type RedisCounter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisCounter creates a Redis-backed counter store.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{
		client: client,
		now:    time.Now,
	}
}

func (c *RedisCounter) dailyKey(userID string) string {
	return fmt.Sprintf("quota:daily:%s:%s", userID, c.now().UTC().Format("20060102"))
}

func (c *RedisCounter) monthlyKey(userID string) string {
	return fmt.Sprintf("quota:monthly:%s:%s", userID, c.now().UTC().Format("200601"))
}

func (c *RedisCounter) activeKey(userID string) string {
	return fmt.Sprintf("quota:active:%s", userID)
}

func (c *RedisCounter) getInt(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return val, nil
}

// DailyRequests returns the request count for the current UTC day.
func (c *RedisCounter) DailyRequests(ctx context.Context, userID string) (int, error) {
	val, err := c.getInt(ctx, c.dailyKey(userID))
	return int(val), err
}

// MonthlyTokens returns the token count for the current UTC month.
func (c *RedisCounter) MonthlyTokens(ctx context.Context, userID string) (int64, error) {
	return c.getInt(ctx, c.monthlyKey(userID))
}

// ActiveJobs returns the current in-flight count.
func (c *RedisCounter) ActiveJobs(ctx context.Context, userID string) (int, error) {
	val, err := c.getInt(ctx, c.activeKey(userID))
	return int(val), err
}

// IncrActiveJobs increments and returns the new in-flight count.
func (c *RedisCounter) IncrActiveJobs(ctx context.Context, userID string) (int, error) {
	val, err := c.client.Incr(ctx, c.activeKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve job slot: %w", err)
	}
	return int(val), nil
}

// DecrActiveJobs decrements the in-flight count.
func (c *RedisCounter) DecrActiveJobs(ctx context.Context, userID string) error {
	key := c.activeKey(userID)
	val, err := c.client.Decr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to release job slot: %w", err)
	}
	if val < 0 {
		// A crashed holder can leave the counter behind; clamp instead of
		// going negative.
		return c.client.Set(ctx, key, 0, 0).Err()
	}
	return nil
}

// CommitUsage adds one request and the consumed tokens to the rolling
// counters.
func (c *RedisCounter) CommitUsage(ctx context.Context, userID string, tokens int64) error {
	pipe := c.client.TxPipeline()

	dailyKey := c.dailyKey(userID)
	pipe.Incr(ctx, dailyKey)
	pipe.Expire(ctx, dailyKey, dailyTTL)

	monthlyKey := c.monthlyKey(userID)
	pipe.IncrBy(ctx, monthlyKey, tokens)
	pipe.Expire(ctx, monthlyKey, monthlyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to commit usage: %w", err)
	}
	return nil
}
