package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	limits "github.com/tech-arch1tect/gatekeep/services/ratelimit"
	"go.uber.org/zap"
)

// Config configures the per-client request guard. It sits in front of the
// per-action limiter and only bounds raw request volume.
type Config struct {
	Store          limits.Store
	Rate           int
	Period         time.Duration
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context, retryAfter int) error
	Logger         *logging.Service
	clock          func() time.Time
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = limits.NewMemoryStore()
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.clock == nil {
		cfg.clock = time.Now
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if cfg.Rate <= 0 {
			return next
		}

		return func(c echo.Context) error {
			attempt, err := cfg.Store.Attempt(c.Request().Context(), cfg.KeyGenerator(c), cfg.Rate, cfg.Period)
			if err != nil {
				// fail open; the per-action limiter still guards the workflow
				cfg.Logger.Error("request guard store failed", zap.Error(err))
				return next(c)
			}

			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Rate))
			header.Set("X-RateLimit-Remaining", strconv.Itoa(max(cfg.Rate-attempt.Count, 0)))
			header.Set("X-RateLimit-Reset", strconv.FormatInt(attempt.ResetAt.Unix(), 10))

			if !attempt.Allowed {
				header.Set("X-RateLimit-Remaining", "0")
				retryAfter := max(int(attempt.ResetAt.Sub(cfg.clock()).Seconds()+0.999), 1)
				return cfg.OnLimitReached(c, retryAfter)
			}

			return next(c)
		}
	}
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "guard:" + realIP
}

func DefaultOnLimitReached(c echo.Context, retryAfter int) error {
	c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}
