package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/edusystems/school_management/internal/logging"
)

// Limiter is a fixed-window counter in redis, keyed by client IP. It sits
// in front of /login to slow credential stuffing; a nil client disables it
// so the app degrades rather than refusing to start without redis.
type Limiter struct {
	RDB    *redis.Client
	Limit  int64
	Window time.Duration
	Prefix string
}

func NewLimiter(rdb *redis.Client, limit int64, window time.Duration) *Limiter {
	return &Limiter{RDB: rdb, Limit: limit, Window: window, Prefix: "rl"}
}

func (l *Limiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if l == nil || l.RDB == nil {
			return next
		}
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := fmt.Sprintf("%s:%s:%s", l.Prefix, c.Request().URL.Path, c.RealIP())

			n, err := l.RDB.Incr(ctx, key).Result()
			if err != nil {
				// Redis being down must not take logins down with it.
				logging.FromContext(ctx).Warn("rate_limit_skipped", "error", err)
				return next(c)
			}
			if n == 1 {
				l.RDB.Expire(ctx, key, l.Window)
			}
			if n > l.Limit {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			}
			return next(c)
		}
	}
}
