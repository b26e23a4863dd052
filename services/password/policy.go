package password

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/validation"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const MessageCompromised = "Password has been compromised elsewhere."

// Policy enforces password strength and turns accepted passwords into
// hashes with the configured hasher.
type Policy struct {
	config    *config.AuthConfig
	hasher    Hasher
	breach    BreachChecker
	logger    *logging.Service
	dummyOnce sync.Once
	dummy     string
}

func NewPolicy(cfg *config.AuthConfig, hasher Hasher, breach BreachChecker, logger *logging.Service) *Policy {
	return &Policy{
		config: cfg,
		hasher: hasher,
		breach: breach,
		logger: logger,
	}
}

// NewHasher returns the hasher named by cfg.HashDriver.
func NewHasher(cfg *config.AuthConfig) (Hasher, error) {
	switch cfg.HashDriver {
	case "bcrypt", "":
		return NewBcryptHasher(cfg.BcryptCost), nil
	case "argon2id":
		return NewArgon2Hasher(Argon2Params{
			Memory:      cfg.Argon2Memory,
			Time:        cfg.Argon2Time,
			Parallelism: cfg.Argon2Parallelism,
		})
	default:
		return nil, fmt.Errorf("unsupported hash driver: %s", cfg.HashDriver)
	}
}

// Validate applies the configured strength rules.
func (p *Policy) Validate(plain string) error {
	if len([]rune(plain)) < p.config.MinLength {
		p.logger.Debug("password rejected: insufficient length", zap.Int("min_required", p.config.MinLength))
		return validation.WeakPassword(fmt.Sprintf("The password must be at least %d characters.", p.config.MinLength))
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range plain {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if p.config.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if p.config.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if p.config.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if p.config.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		p.logger.Debug("password rejected: missing requirements", zap.Strings("missing_requirements", missing))
		return validation.WeakPassword("The password must contain at least " + strings.Join(missing, ", ") + ".")
	}

	return nil
}

// Secure returns a hash for value. A value that is already a current hash
// is returned as is; anything else must pass Validate and the breach check
// before it is hashed.
func (p *Policy) Secure(ctx context.Context, value string) (string, error) {
	if p.hasher.Recognizes(value) && !p.hasher.NeedsRehash(value) {
		return value, nil
	}

	if err := p.Validate(value); err != nil {
		return "", err
	}

	if err := p.checkUncompromised(ctx, value); err != nil {
		return "", err
	}

	hash, err := p.hasher.Hash(value)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", validation.WeakPassword("The password must not be greater than 72 bytes.")
		}
		p.logger.Error("password hashing failed", zap.Error(err))
		return "", err
	}
	return hash, nil
}

func (p *Policy) checkUncompromised(ctx context.Context, plain string) error {
	if !p.config.UncompromisedCheck || p.breach == nil {
		return nil
	}

	count, err := p.breach.Count(ctx, plain)
	if err != nil {
		// availability of the breach api must not block sign-ups
		p.logger.Warn("breach check unavailable, skipping", zap.Error(err))
		return nil
	}

	if count > p.config.UncompromisedThreshold {
		p.logger.Info("password rejected: found in breach corpus", zap.Int("occurrences", count))
		return validation.WeakPassword(MessageCompromised)
	}
	return nil
}

func (p *Policy) Check(plain, hash string) bool {
	return p.hasher.Check(plain, hash)
}

func (p *Policy) NeedsRehash(hash string) bool {
	return p.hasher.NeedsRehash(hash)
}

// Rehash hashes plain without policy checks; used to upgrade the stored
// hash of a password that was already accepted.
func (p *Policy) Rehash(plain string) (string, error) {
	return p.hasher.Hash(plain)
}

// CheckDummy spends the same work as Check against a throwaway hash, so a
// login for an unknown email takes as long as one with a wrong password.
func (p *Policy) CheckDummy(plain string) {
	p.dummyOnce.Do(func() {
		hash, err := p.hasher.Hash("gatekeep-dummy-password")
		if err != nil {
			p.logger.Error("failed to prepare dummy hash", zap.Error(err))
			return
		}
		p.dummy = hash
	})
	if p.dummy != "" {
		p.hasher.Check(plain, p.dummy)
	}
}
