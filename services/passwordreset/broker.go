package passwordreset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/notify"
	"github.com/tech-arch1tect/gatekeep/services/password"
	"github.com/tech-arch1tect/gatekeep/services/users"
	"github.com/tech-arch1tect/gatekeep/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Broker struct {
	config   *config.Config
	users    *users.Store
	policy   *password.Policy
	notifier notify.Notifier
	logger   *logging.Service
	clock    func() time.Time
}

func NewBroker(cfg *config.Config, store *users.Store, policy *password.Policy, notifier notify.Notifier, logger *logging.Service) *Broker {
	return &Broker{
		config:   cfg,
		users:    store,
		policy:   policy,
		notifier: notifier,
		logger:   logger,
		clock:    time.Now,
	}
}

func (b *Broker) SetClock(clock func() time.Time) {
	b.clock = clock
}

// SendResetLink mails a reset link when the address belongs to a user. It
// reports nothing about whether that happened; only store and delivery
// failures are returned.
func (b *Broker) SendResetLink(ctx context.Context, email string) error {
	email = users.NormalizeEmail(email)

	user, err := b.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		b.logger.Info("password reset requested for unknown email", zap.String("email", email))
		return nil
	}

	db := b.users.DB().WithContext(ctx)
	now := b.clock()

	var existing ResetToken
	err = db.Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		if now.Before(existing.CreatedAt.Add(b.config.Auth.PasswordResetThrottle)) {
			b.logger.Info("password reset throttled", zap.String("email", email))
			return nil
		}
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to load password reset token: %w", err)
	}

	token, err := b.generateToken()
	if err != nil {
		return err
	}

	row := ResetToken{Email: email, TokenHash: hashToken(token), CreatedAt: now}
	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "created_at"}),
	}).Create(&row).Error
	if err != nil {
		b.logger.Error("failed to store password reset token", zap.Error(err), zap.String("email", email))
		return fmt.Errorf("failed to store password reset token: %w", err)
	}

	expires := now.Add(b.config.Auth.PasswordResetExpiry)
	to := notify.Recipient{Email: user.Email, Name: user.Name}
	if err := b.notifier.SendPasswordReset(ctx, to, b.resetURL(token, email), expires); err != nil {
		b.logger.Error("failed to send password reset email", zap.Error(err), zap.String("email", email))
		return fmt.Errorf("failed to send password reset email: %w", err)
	}

	b.logger.Info("password reset link sent", zap.String("email", email), zap.Time("expires_at", expires))
	return nil
}

// Consume checks the token for email and, when it is valid, spends the token
// and replaces the user's password. The password is checked before any
// database work. Failures are validation errors for an unknown user, a bad
// token or a weak password.
func (b *Broker) Consume(ctx context.Context, email, token, newPassword string) (*users.User, error) {
	email = users.NormalizeEmail(email)

	hash, err := b.policy.Secure(ctx, newPassword)
	if err != nil {
		return nil, err
	}

	var user *users.User
	err = b.users.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := b.users.WithTx(tx)

		var err error
		user, err = store.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if user == nil {
			b.logger.Warn("password reset for unknown email", zap.String("email", email))
			return validation.ErrInvalidUser
		}

		var row ResetToken
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("email = ?", email).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			b.logger.Warn("password reset without outstanding token", zap.String("email", email))
			return validation.ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("failed to load password reset token: %w", err)
		}

		if subtle.ConstantTimeCompare([]byte(row.TokenHash), []byte(hashToken(token))) != 1 {
			b.logger.Warn("password reset token mismatch", zap.String("email", email))
			return validation.ErrInvalidToken
		}

		if !b.clock().Before(row.CreatedAt.Add(b.config.Auth.PasswordResetExpiry)) {
			b.logger.Warn("expired password reset token", zap.String("email", email), zap.Time("created_at", row.CreatedAt))
			return validation.ErrInvalidToken
		}

		spent := tx.Where("email = ? AND token_hash = ?", email, row.TokenHash).Delete(&ResetToken{})
		if spent.Error != nil {
			return fmt.Errorf("failed to delete password reset token: %w", spent.Error)
		}
		if spent.RowsAffected != 1 {
			b.logger.Warn("password reset token already spent", zap.String("email", email))
			return validation.ErrInvalidToken
		}

		return store.SetPassword(ctx, user, hash)
	})
	if err != nil {
		return nil, err
	}

	b.logger.Info("password reset completed", zap.String("email", email), zap.Uint("user_id", user.ID))

	if err := b.notifier.SendPasswordChanged(ctx, notify.Recipient{Email: user.Email, Name: user.Name}); err != nil {
		b.logger.Warn("failed to send password changed notice", zap.Error(err), zap.String("email", email))
	}

	return user, nil
}

func (b *Broker) PruneExpired(ctx context.Context) (int64, error) {
	cutoff := b.clock().Add(-b.config.Auth.PasswordResetExpiry)
	result := b.users.DB().WithContext(ctx).Where("created_at <= ?", cutoff).Delete(&ResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune expired password reset tokens: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		b.logger.Info("pruned expired password reset tokens", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

func (b *Broker) resetURL(token, email string) string {
	base := b.config.App.FrontendURL
	if base == "" {
		base = b.config.App.URL
	}
	return fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		strings.TrimRight(base, "/"), url.QueryEscape(token), url.QueryEscape(email))
}

func (b *Broker) generateToken() (string, error) {
	bytes := make([]byte, b.config.Auth.PasswordResetTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
