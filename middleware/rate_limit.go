package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"teamcollab/apperror"
	"teamcollab/utils"
)

const rateLimitPrefix = "rl:"

// WriteRateLimiter throttles write-heavy endpoints per user (or per IP before
// authentication). A nil storage keeps the counters in memory.
func WriteRateLimiter(max int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			key := "ip:" + c.IP()
			if user := CurrentUser(c); user != nil {
				key = fmt.Sprintf("user:%d", user.ID)
			}
			return utils.GenerateRateLimitKey(key, c.Path())
		},
		LimitReached: func(c *fiber.Ctx) error {
			fields := map[string]interface{}{
				"endpoint":   c.Path(),
				"ip":         c.IP(),
				"user_agent": c.Get(fiber.HeaderUserAgent),
			}
			if user := CurrentUser(c); user != nil {
				fields["user_id"] = user.ID
			}
			utils.LogEvent("rate_limit_hit", fields)

			c.Set(fiber.HeaderRetryAfter, "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(apperror.Body{
				Error: "Too many requests. Please wait before trying again.",
				Code:  "RATE_LIMITED",
				Kind:  "RATE_LIMITED",
			})
		},
		Storage: storage,
	})
}

// RedisStorage implements fiber.Storage for Redis
type RedisStorage struct {
	client *redis.Client
}

func NewRedisStorage(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// Get returns nil, nil for a missing key as fiber.Storage requires.
func (r *RedisStorage) Get(key string) ([]byte, error) {
	val, err := r.client.Get(context.Background(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (r *RedisStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return r.client.Set(context.Background(), key, val, exp).Err()
}

func (r *RedisStorage) Delete(key string) error {
	return r.client.Del(context.Background(), key).Err()
}

// Reset removes the limiter keys only; the database is shared with the relay.
func (r *RedisStorage) Reset() error {
	ctx := context.Background()
	iter := r.client.Scan(ctx, 0, rateLimitPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client is owned by main.
func (r *RedisStorage) Close() error {
	return nil
}
