package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wavedeck/studio/pkg/response"
)

type RateLimiter struct {
	redis *redis.Client
	log   zerolog.Logger
}

// NewRateLimiter creates a limiter; a nil client disables limiting
func NewRateLimiter(redisClient *redis.Client, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{redis: redisClient, log: log}
}

// Limit creates a rate limiting middleware keyed by a hash of the caller's credential
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		credential := GetCredential(c)
		if rl.redis == nil || maxRequests <= 0 || credential == "" {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, credentialHash(credential))
		ctx := c.UserContext()

		// Increment counter
		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request but log the error
			rl.log.Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			// Get TTL for retry-after header
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		// Add rate limit headers
		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// GenerateLimit limits generation starts per hour
func (rl *RateLimiter) GenerateLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("generate", maxPerHour, time.Hour)
}

// EncodeLimit limits image encodes per minute
func (rl *RateLimiter) EncodeLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("encode", maxPerMin, time.Minute)
}

// credentialHash keeps raw API keys out of Redis.
func credentialHash(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])[:16]
}
