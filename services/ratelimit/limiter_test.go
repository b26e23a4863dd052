package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/validation"
)

func newTestLimiter(cfg *config.RateLimitConfig) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	store := NewMemoryStore()
	store.SetClock(clock.Now)

	limiter := NewLimiter(store, cfg, nil)
	limiter.SetClock(clock.Now)
	return limiter, clock
}

func TestLimiter_Throttle(t *testing.T) {
	ctx := context.Background()

	t.Run("third call within window is rate limited", func(t *testing.T) {
		limiter, clock := newTestLimiter(&config.RateLimitConfig{DefaultAttempts: 2, DefaultDecaySeconds: 60})
		fp := Fingerprint("a@x.com", "10.0.0.1")

		require.NoError(t, limiter.Throttle(ctx, ActionLogin, fp))
		require.NoError(t, limiter.Throttle(ctx, ActionLogin, fp))

		clock.Advance(15 * time.Second)
		err := limiter.Throttle(ctx, ActionLogin, fp)

		require.Error(t, err)
		assert.True(t, errors.Is(err, validation.ErrRateLimited))
		verr, ok := validation.As(err)
		require.True(t, ok)
		assert.Equal(t, 45, verr.RetryAfter)
		assert.Equal(t, "email", verr.Field)
	})

	t.Run("call after window elapses succeeds", func(t *testing.T) {
		limiter, clock := newTestLimiter(&config.RateLimitConfig{DefaultAttempts: 2, DefaultDecaySeconds: 60})
		fp := Fingerprint("a@x.com", "10.0.0.1")

		limiter.Throttle(ctx, ActionLogin, fp)
		limiter.Throttle(ctx, ActionLogin, fp)
		require.Error(t, limiter.Throttle(ctx, ActionLogin, fp))

		clock.Advance(61 * time.Second)

		assert.NoError(t, limiter.Throttle(ctx, ActionLogin, fp))
	})

	t.Run("actions and fingerprints are independent", func(t *testing.T) {
		limiter, _ := newTestLimiter(&config.RateLimitConfig{DefaultAttempts: 1, DefaultDecaySeconds: 60})
		fp := Fingerprint("a@x.com", "10.0.0.1")

		require.NoError(t, limiter.Throttle(ctx, ActionLogin, fp))
		require.Error(t, limiter.Throttle(ctx, ActionLogin, fp))

		assert.NoError(t, limiter.Throttle(ctx, ActionRegister, fp))
		assert.NoError(t, limiter.Throttle(ctx, ActionLogin, Fingerprint("a@x.com", "10.0.0.2")))
		assert.NoError(t, limiter.Throttle(ctx, ActionLogin, Fingerprint("b@x.com", "10.0.0.1")))
	})

	t.Run("per action override", func(t *testing.T) {
		limiter, clock := newTestLimiter(&config.RateLimitConfig{
			DefaultAttempts:     5,
			DefaultDecaySeconds: 60,
			Attempts:            map[string]int{ActionForgotPassword: 1},
			DecaySeconds:        map[string]int{ActionForgotPassword: 600},
		})
		fp := Fingerprint("a@x.com", "10.0.0.1")

		require.NoError(t, limiter.Throttle(ctx, ActionForgotPassword, fp))
		clock.Advance(5 * time.Minute)

		err := limiter.Throttle(ctx, ActionForgotPassword, fp)
		verr, ok := validation.As(err)
		require.True(t, ok)
		assert.Equal(t, 300, verr.RetryAfter)
	})

	t.Run("clear resets the bucket", func(t *testing.T) {
		limiter, _ := newTestLimiter(&config.RateLimitConfig{DefaultAttempts: 1, DefaultDecaySeconds: 60})
		fp := Fingerprint("a@x.com", "10.0.0.1")

		limiter.Throttle(ctx, ActionVerifyEmail, fp)
		require.NoError(t, limiter.Clear(ctx, ActionVerifyEmail, fp))

		assert.NoError(t, limiter.Throttle(ctx, ActionVerifyEmail, fp))
	})

	t.Run("store failure is not a validation error", func(t *testing.T) {
		_, client := newTestRedis(t)
		client.Close()
		limiter := NewLimiter(NewRedisStore(client, ""), &config.RateLimitConfig{DefaultAttempts: 1, DefaultDecaySeconds: 60}, nil)

		err := limiter.Throttle(ctx, ActionLogin, "fp")

		require.Error(t, err)
		_, ok := validation.As(err)
		assert.False(t, ok)
	})
}

func TestLimiter_Limits(t *testing.T) {
	limiter := NewLimiter(NewMemoryStore(), &config.RateLimitConfig{
		DefaultAttempts:     5,
		DefaultDecaySeconds: 60,
		Attempts:            map[string]int{ActionLogin: 3},
	}, nil)

	max, decay := limiter.Limits(ActionLogin)
	assert.Equal(t, 3, max)
	assert.Equal(t, time.Minute, decay)

	max, decay = limiter.Limits(ActionResendVerification)
	assert.Equal(t, 5, max)
	assert.Equal(t, time.Minute, decay)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("a@x.com", "1.2.3.4"), Fingerprint("a@x.com", "1.2.3.4"))
	assert.NotEqual(t, Fingerprint("a@x.com", "1.2.3.4"), Fingerprint("a@x.com", "1.2.3.5"))
	assert.Len(t, Fingerprint("a@x.com", "1.2.3.4"), 40)
	assert.Equal(t, "auth:login:abc", Key(ActionLogin, "abc"))
}
