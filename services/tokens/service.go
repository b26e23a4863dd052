package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTokenInvalid          = errors.New("invalid access token")
	ErrTokenExpired          = errors.New("access token expired")
	ErrTokenGenerationFailed = errors.New("failed to generate secure token")
)

const secretLength = 40

type Issuer struct {
	db     *gorm.DB
	logger *logging.Service
	clock  func() time.Time
}

func NewIssuer(db *gorm.DB, logger *logging.Service) *Issuer {
	return &Issuer{
		db:     db,
		logger: logger,
		clock:  time.Now,
	}
}

func (s *Issuer) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *Issuer) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx)
}

// Issue creates a token for userID on tx (or the issuer's handle when tx is
// nil) and returns its "<id>|<secret>" plaintext.
func (s *Issuer) Issue(ctx context.Context, tx *gorm.DB, userID uint, name string, abilities []string, expiresAt *time.Time) (*NewToken, error) {
	secret, err := generateSecret()
	if err != nil {
		s.logger.Error("failed to generate access token secret", zap.Error(err))
		return nil, ErrTokenGenerationFailed
	}

	if len(abilities) == 0 {
		abilities = []string{AbilityAll}
	}

	now := s.clock()
	token := &AuthToken{
		UserID:    userID,
		Name:      name,
		TokenHash: hashSecret(secret),
		Abilities: abilities,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.conn(ctx, tx).Create(token).Error; err != nil {
		s.logger.Error("failed to store access token", zap.Error(err), zap.Uint("user_id", userID))
		return nil, fmt.Errorf("failed to store access token: %w", err)
	}

	s.logger.Info("access token issued",
		zap.Uint("user_id", userID),
		zap.Uint("token_id", token.ID),
		zap.String("name", name))

	return &NewToken{
		Token:     token,
		PlainText: strconv.FormatUint(uint64(token.ID), 10) + "|" + secret,
	}, nil
}

// RevokeExcess keeps the limit most recent tokens of userID and deletes the
// rest, returning how many were deleted.
func (s *Issuer) RevokeExcess(ctx context.Context, tx *gorm.DB, userID uint, limit int) (int64, error) {
	limit = max(limit, 1)

	db := s.conn(ctx, tx)

	var ids []uint
	err := db.Model(&AuthToken{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list access tokens: %w", err)
	}

	if len(ids) <= limit {
		return 0, nil
	}

	result := db.Where("id IN ?", ids[limit:]).Delete(&AuthToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to revoke excess access tokens: %w", result.Error)
	}

	s.logger.Info("revoked excess access tokens",
		zap.Uint("user_id", userID),
		zap.Int("max", limit),
		zap.Int64("count", result.RowsAffected))

	return result.RowsAffected, nil
}

// IssueCapped issues a token and trims the user's tokens to limit in one
// transaction. The user row is locked first so concurrent logins for the
// same user run one after another.
func (s *Issuer) IssueCapped(ctx context.Context, userID uint, name string, abilities []string, expiresAt *time.Time, limit int) (*NewToken, error) {
	var issued *NewToken
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner users.User
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", userID).Limit(1).Find(&owner)
		if result.Error != nil {
			return fmt.Errorf("failed to lock user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return users.ErrUserNotFound
		}

		var err error
		issued, err = s.Issue(ctx, tx, userID, name, abilities, expiresAt)
		if err != nil {
			return err
		}
		_, err = s.RevokeExcess(ctx, tx, userID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// Authenticate resolves a plaintext token. Unknown, malformed and mismatched
// tokens are ErrTokenInvalid; expired ones are ErrTokenExpired.
func (s *Issuer) Authenticate(ctx context.Context, plaintext string) (*AuthToken, error) {
	db := s.db.WithContext(ctx)

	var token AuthToken
	idPart, secret, found := strings.Cut(plaintext, "|")
	if found {
		id, err := strconv.ParseUint(idPart, 10, 64)
		if err != nil || secret == "" {
			return nil, ErrTokenInvalid
		}
		err = db.First(&token, uint(id)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load access token: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(token.TokenHash), []byte(hashSecret(secret))) != 1 {
			s.logger.Warn("access token secret mismatch", zap.Uint("token_id", token.ID))
			return nil, ErrTokenInvalid
		}
	} else {
		err := db.Where("token_hash = ?", hashSecret(plaintext)).First(&token).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load access token: %w", err)
		}
	}

	now := s.clock()
	if token.Expired(now) {
		s.logger.Debug("expired access token presented", zap.Uint("token_id", token.ID))
		return nil, ErrTokenExpired
	}

	if err := db.Model(&token).UpdateColumn("last_used_at", now).Error; err != nil {
		s.logger.Warn("failed to update access token last used time", zap.Error(err), zap.Uint("token_id", token.ID))
	} else {
		token.LastUsedAt = &now
	}

	return &token, nil
}

// Revoke deletes one token. Revoking an absent token is not an error.
func (s *Issuer) Revoke(ctx context.Context, tokenID uint) error {
	result := s.db.WithContext(ctx).Where("id = ?", tokenID).Delete(&AuthToken{})
	if result.Error != nil {
		s.logger.Error("failed to revoke access token", zap.Error(result.Error), zap.Uint("token_id", tokenID))
		return fmt.Errorf("failed to revoke access token: %w", result.Error)
	}

	s.logger.Info("access token revoked",
		zap.Uint("token_id", tokenID),
		zap.Int64("affected_rows", result.RowsAffected))
	return nil
}

func (s *Issuer) RevokeAll(ctx context.Context, userID uint) error {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&AuthToken{})
	if result.Error != nil {
		return fmt.Errorf("failed to revoke user access tokens: %w", result.Error)
	}

	s.logger.Info("all user access tokens revoked",
		zap.Uint("user_id", userID),
		zap.Int64("count", result.RowsAffected))
	return nil
}

func (s *Issuer) Count(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&AuthToken{}).Where("user_id = ?", userID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count access tokens: %w", err)
	}
	return count, nil
}

func (s *Issuer) PruneExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.clock()).Delete(&AuthToken{})
	if result.Error != nil {
		s.logger.Error("failed to prune expired access tokens", zap.Error(result.Error))
		return 0, fmt.Errorf("failed to prune expired access tokens: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("pruned expired access tokens", zap.Int64("count", result.RowsAffected))
	} else {
		s.logger.Debug("no expired access tokens to prune")
	}
	return result.RowsAffected, nil
}

// StartPruneWorker runs PruneExpired every interval until ctx is done.
func (s *Issuer) StartPruneWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.PruneExpired(ctx); err != nil && ctx.Err() == nil {
					s.logger.Error("access token prune worker failed", zap.Error(err))
				}
			}
		}
	}()

	s.logger.Info("started access token prune worker", zap.Duration("interval", interval))
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func generateSecret() (string, error) {
	out := make([]byte, secretLength)
	limit := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out), nil
}
