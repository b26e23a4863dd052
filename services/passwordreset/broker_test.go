package passwordreset

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/notify"
	"github.com/tech-arch1tect/gatekeep/services/password"
	"github.com/tech-arch1tect/gatekeep/services/users"
	"github.com/tech-arch1tect/gatekeep/testutils"
	"github.com/tech-arch1tect/gatekeep/validation"
	"gorm.io/gorm"
)

type fixture struct {
	broker   *Broker
	users    *users.Store
	policy   *password.Policy
	notifier *testutils.MockNotifier
	clock    *testutils.Clock
	cfg      *config.Config
	user     *users.User
}

func setup(t *testing.T) *fixture {
	t.Helper()

	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &users.User{}, &ResetToken{})
	store := users.NewStore(db, nil)

	hasher, err := password.NewHasher(&cfg.Auth)
	require.NoError(t, err)
	policy := password.NewPolicy(&cfg.Auth, hasher, nil, nil)

	hash, err := policy.Secure(context.Background(), testutils.TestPasswords.Valid)
	require.NoError(t, err)
	user, err := store.Create(context.Background(), users.NewUser{Name: "Ann", Email: "ann@example.com", Password: hash})
	require.NoError(t, err)

	notifier := &testutils.MockNotifier{}
	notifier.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	notifier.On("SendPasswordChanged", mock.Anything, mock.Anything).Return(nil)

	clock := testutils.NewClock()
	broker := NewBroker(cfg, store, policy, notifier, nil)
	broker.SetClock(clock.Now)

	return &fixture{broker: broker, users: store, policy: policy, notifier: notifier, clock: clock, cfg: cfg, user: user}
}

func (f *fixture) sentToken(t *testing.T) string {
	t.Helper()

	link := f.notifier.LastLink("SendPasswordReset")
	require.NotEmpty(t, link)
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	return parsed.Query().Get("token")
}

func TestBroker_SendResetLink(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a frontend link for a known user", func(t *testing.T) {
		f := setup(t)

		require.NoError(t, f.broker.SendResetLink(ctx, "  Ann@Example.com "))

		f.notifier.AssertCalled(t, "SendPasswordReset", mock.Anything,
			notify.Recipient{Email: "ann@example.com", Name: "Ann"}, mock.Anything, f.clock.Now().Add(time.Hour))

		link, err := url.Parse(f.notifier.LastLink("SendPasswordReset"))
		require.NoError(t, err)
		assert.Equal(t, "localhost:3000", link.Host)
		assert.Equal(t, "/reset-password", link.Path)
		assert.Equal(t, "ann@example.com", link.Query().Get("email"))
		assert.Len(t, link.Query().Get("token"), 64)

		var row ResetToken
		require.NoError(t, f.users.DB().First(&row, "email = ?", "ann@example.com").Error)
		assert.NotEqual(t, link.Query().Get("token"), row.TokenHash)
	})

	t.Run("unknown email is silent", func(t *testing.T) {
		f := setup(t)

		require.NoError(t, f.broker.SendResetLink(ctx, "nobody@example.com"))
		f.notifier.AssertNotCalled(t, "SendPasswordReset", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("repeat request inside throttle window is silent", func(t *testing.T) {
		f := setup(t)

		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		first := f.sentToken(t)

		f.clock.Advance(30 * time.Second)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		f.notifier.AssertNumberOfCalls(t, "SendPasswordReset", 1)

		f.clock.Advance(31 * time.Second)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		f.notifier.AssertNumberOfCalls(t, "SendPasswordReset", 2)

		second := f.sentToken(t)
		assert.NotEqual(t, first, second)

		var count int64
		f.users.DB().Model(&ResetToken{}).Count(&count)
		assert.EqualValues(t, 1, count)

		// the replaced token no longer works
		_, err := f.broker.Consume(ctx, "ann@example.com", first, testutils.TestPasswords.Other)
		assert.ErrorIs(t, err, validation.ErrInvalidToken)
	})

	t.Run("falls back to app url", func(t *testing.T) {
		f := setup(t)
		f.cfg.App.FrontendURL = ""

		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))

		link, err := url.Parse(f.notifier.LastLink("SendPasswordReset"))
		require.NoError(t, err)
		assert.Equal(t, "localhost:8080", link.Host)
	})

	t.Run("delivery failure is returned", func(t *testing.T) {
		f := setup(t)
		failing := &testutils.MockNotifier{}
		failing.On("SendPasswordReset", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))
		f.broker.notifier = failing

		assert.Error(t, f.broker.SendResetLink(ctx, "ann@example.com"))
	})
}

func TestBroker_Consume(t *testing.T) {
	ctx := context.Background()

	t.Run("valid token resets the password once", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		token := f.sentToken(t)
		oldRemember := f.user.RememberToken

		user, err := f.broker.Consume(ctx, "ann@example.com", token, testutils.TestPasswords.Other)
		require.NoError(t, err)

		reloaded, err := f.users.FindByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, f.policy.Check(testutils.TestPasswords.Other, reloaded.Password))
		assert.False(t, f.policy.Check(testutils.TestPasswords.Valid, reloaded.Password))
		assert.Len(t, reloaded.RememberToken, 60)
		assert.NotEqual(t, oldRemember, reloaded.RememberToken)
		f.notifier.AssertCalled(t, "SendPasswordChanged", mock.Anything, notify.Recipient{Email: "ann@example.com", Name: "Ann"})

		_, err = f.broker.Consume(ctx, "ann@example.com", token, "Another789")
		assert.ErrorIs(t, err, validation.ErrInvalidToken)
	})

	t.Run("unknown user", func(t *testing.T) {
		f := setup(t)

		_, err := f.broker.Consume(ctx, "nobody@example.com", "token", testutils.TestPasswords.Other)

		assert.ErrorIs(t, err, validation.ErrInvalidUser)
		verr, ok := validation.As(err)
		require.True(t, ok)
		assert.Equal(t, "email", verr.Field)
	})

	t.Run("no outstanding token", func(t *testing.T) {
		f := setup(t)

		_, err := f.broker.Consume(ctx, "ann@example.com", "token", testutils.TestPasswords.Other)

		assert.ErrorIs(t, err, validation.ErrInvalidToken)
		verr, _ := validation.As(err)
		assert.Equal(t, "token", verr.Field)
	})

	t.Run("wrong token", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))

		_, err := f.broker.Consume(ctx, "ann@example.com", "not-the-token", testutils.TestPasswords.Other)
		assert.ErrorIs(t, err, validation.ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		token := f.sentToken(t)

		f.clock.Advance(f.cfg.Auth.PasswordResetExpiry)

		_, err := f.broker.Consume(ctx, "ann@example.com", token, testutils.TestPasswords.Other)
		assert.ErrorIs(t, err, validation.ErrInvalidToken)
	})

	t.Run("weak password keeps the token", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		token := f.sentToken(t)

		_, err := f.broker.Consume(ctx, "ann@example.com", token, testutils.TestPasswords.TooShort)
		assert.ErrorIs(t, err, validation.ErrWeakPassword)

		_, err = f.broker.Consume(ctx, "ann@example.com", token, testutils.TestPasswords.Other)
		assert.NoError(t, err)
	})
}

func TestBroker_ConsumeRace(t *testing.T) {
	ctx := context.Background()

	t.Run("token spent after it was read is rejected", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		token := f.sentToken(t)
		before, err := f.users.FindByID(ctx, f.user.ID)
		require.NoError(t, err)

		// another reset commits between this read and the delete
		spent := false
		err = f.users.DB().Callback().Query().After("gorm:query").Register("test:spend_reset", func(tx *gorm.DB) {
			if spent || tx.Statement.Table != "password_reset_tokens" {
				return
			}
			spent = true
			tx.AddError(tx.Session(&gorm.Session{NewDB: true}).Exec("DELETE FROM password_reset_tokens").Error)
		})
		require.NoError(t, err)

		_, err = f.broker.Consume(ctx, "ann@example.com", token, testutils.TestPasswords.Other)
		assert.ErrorIs(t, err, validation.ErrInvalidToken)
		assert.True(t, spent)

		after, err := f.users.FindByID(ctx, f.user.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Password, after.Password)
		f.notifier.AssertNotCalled(t, "SendPasswordChanged", mock.Anything, mock.Anything)
	})

	t.Run("weak password fails before the token is looked at", func(t *testing.T) {
		f := setup(t)

		_, err := f.broker.Consume(ctx, "nobody@example.com", "token", testutils.TestPasswords.TooShort)
		assert.ErrorIs(t, err, validation.ErrWeakPassword)
	})

	t.Run("breach lookup does not hold the connection", func(t *testing.T) {
		f := setup(t)
		require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))
		token := f.sentToken(t)

		auth := f.cfg.Auth
		auth.UncompromisedCheck = true
		hasher, err := password.NewHasher(&auth)
		require.NoError(t, err)

		var lookupErr error
		breach := &testutils.MockBreachChecker{}
		breach.On("Count", mock.Anything, testutils.TestPasswords.Other).Return(0, nil).Run(func(mock.Arguments) {
			lookupCtx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			_, lookupErr = f.users.Exists(lookupCtx, "ann@example.com")
		})

		broker := NewBroker(f.cfg, f.users, password.NewPolicy(&auth, hasher, breach, nil), f.notifier, nil)
		broker.SetClock(f.clock.Now)

		_, err = broker.Consume(ctx, "ann@example.com", token, testutils.TestPasswords.Other)
		require.NoError(t, err)
		assert.NoError(t, lookupErr)
		breach.AssertExpectations(t)
	})
}

func TestBroker_PruneExpired(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	require.NoError(t, f.broker.SendResetLink(ctx, "ann@example.com"))

	pruned, err := f.broker.PruneExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)

	f.clock.Advance(f.cfg.Auth.PasswordResetExpiry + time.Second)

	pruned, err = f.broker.PruneExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)
}
