package users

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken      = errors.New("email already registered")
	ErrUserNotFound    = errors.New("user not found")
	ErrAlreadyVerified = errors.New("email already verified")
)

const rememberTokenLength = 60

type Store struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewStore(db *gorm.DB, logger *logging.Service) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the handle so callers can run their own transactions and pass
// the tx back through WithTx.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithTx returns a Store bound to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, logger: s.logger}
}

// FindByEmail returns nil, nil when no user has the address.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns nil, nil when the id is unknown.
func (s *Store) FindByID(ctx context.Context, id uint) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return &user, nil
}

func (s *Store) Exists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", NormalizeEmail(email)).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return count > 0, nil
}

// Create inserts a user with an already-hashed password. A concurrent
// insert of the same address fails with ErrEmailTaken.
func (s *Store) Create(ctx context.Context, in NewUser) (*User, error) {
	user := &User{
		Name:     in.Name,
		Email:    NormalizeEmail(in.Email),
		Password: in.Password,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("failed to create user", zap.Error(err), zap.String("email", user.Email))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}

// MarkVerified sets the verification time only while it is unset; a user
// verified by someone else in the meantime yields ErrAlreadyVerified.
func (s *Store) MarkVerified(ctx context.Context, user *User, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND email_verified_at IS NULL", user.ID).
		Update("email_verified_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to mark email as verified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyVerified
	}
	user.EmailVerifiedAt = &at
	return nil
}

// SetPassword stores a new hash and rotates the remember token.
func (s *Store) SetPassword(ctx context.Context, user *User, hash string) error {
	remember, err := randomString(rememberTokenLength)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"password":       hash,
		"remember_token": remember,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	user.Password = hash
	user.RememberToken = remember
	return nil
}

// UpdatePasswordHash replaces the hash without touching the remember token;
// used for transparent rehashing on login.
func (s *Store) UpdatePasswordHash(ctx context.Context, user *User, hash string) error {
	if err := s.db.WithContext(ctx).Model(user).Update("password", hash).Error; err != nil {
		return fmt.Errorf("failed to rehash password: %w", err)
	}
	user.Password = hash
	return nil
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) (string, error) {
	out := make([]byte, n)
	limit := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out), nil
}
