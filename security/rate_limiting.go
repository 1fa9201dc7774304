package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
}

// NewRateLimiter allows perMinute requests per client in a fixed one-minute
// window. A nil client disables limiting.
func NewRateLimiter(redisClient *redis.Client, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{redis: redisClient, limit: int64(perMinute), window: time.Minute}
}

func Key(identifier string) string {
	return fmt.Sprintf("ratelimit:%s", identifier)
}

// Allow counts one request for identifier and reports whether it is within
// the limit.
func (r *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	if r == nil || r.redis == nil {
		return true, nil
	}
	key := Key(identifier)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return true, err
		}
	}
	return count <= r.limit, nil
}

// ActionRateLimit guards the mutating marketplace routes.
func (r *RateLimiter) ActionRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if IsSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		allowed, err := r.Allow(e.Request.Context(), e.RealIP())
		if err != nil {
			// fail open: Redis trouble must not take the marketplace down
			slog.Warn("Rate limiter unavailable", "error", err)
		}
		if !allowed {
			return apis.NewTooManyRequestsError("Too many requests", nil)
		}
		return e.Next()
	}
}

func IsSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
