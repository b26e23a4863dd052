package ratelimit

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/validation"
	"go.uber.org/zap"
)

const (
	ActionLogin              = "login"
	ActionRegister           = "register"
	ActionForgotPassword     = "forgot-password"
	ActionResetPassword      = "reset-password"
	ActionVerifyEmail        = "verify-email"
	ActionResendVerification = "resend-verification"
)

// Limiter throttles authentication actions per (action, fingerprint) bucket.
type Limiter struct {
	store  Store
	config *config.RateLimitConfig
	logger *logging.Service
	clock  func() time.Time
}

func NewLimiter(store Store, cfg *config.RateLimitConfig, logger *logging.Service) *Limiter {
	return &Limiter{
		store:  store,
		config: cfg,
		logger: logger,
		clock:  time.Now,
	}
}

func (l *Limiter) SetClock(clock func() time.Time) {
	l.clock = clock
}

// Fingerprint identifies a requester as a one-way hash of the submitted
// email and client IP.
func Fingerprint(email, ip string) string {
	sum := sha1.Sum([]byte(email + ip))
	return hex.EncodeToString(sum[:])
}

func Key(action, fingerprint string) string {
	return "auth:" + action + ":" + fingerprint
}

// Limits returns the (max attempts, decay window) for an action, falling
// back to the configured defaults.
func (l *Limiter) Limits(action string) (int, time.Duration) {
	max := l.config.DefaultAttempts
	if v, ok := l.config.Attempts[action]; ok {
		max = v
	}

	decay := l.config.DefaultDecaySeconds
	if v, ok := l.config.DecaySeconds[action]; ok {
		decay = v
	}

	return max, time.Duration(decay) * time.Second
}

// Throttle records one attempt for the bucket, or fails with a
// rate-limited validation error when the bucket is already full. A
// rejected call does not count against the bucket.
func (l *Limiter) Throttle(ctx context.Context, action, fingerprint string) error {
	max, decay := l.Limits(action)
	key := Key(action, fingerprint)

	attempt, err := l.store.Attempt(ctx, key, max, decay)
	if err != nil {
		l.logger.Error("rate limit store failed", zap.Error(err), zap.String("action", action))
		return fmt.Errorf("failed to throttle %s: %w", action, err)
	}

	if attempt.Allowed {
		return nil
	}

	retryAfter := int(math.Ceil(attempt.ResetAt.Sub(l.clock()).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}

	l.logger.Warn("rate limit exceeded",
		zap.String("action", action),
		zap.Int("max_attempts", max),
		zap.Int("retry_after", retryAfter))

	return validation.RateLimited(retryAfter)
}

func (l *Limiter) Clear(ctx context.Context, action, fingerprint string) error {
	if err := l.store.Reset(ctx, Key(action, fingerprint)); err != nil {
		return fmt.Errorf("failed to clear %s limit: %w", action, err)
	}
	return nil
}
