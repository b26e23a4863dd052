package verification

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/notify"
	"github.com/tech-arch1tect/gatekeep/services/users"
	"github.com/tech-arch1tect/gatekeep/validation"
	"go.uber.org/zap"
)

// Verifier flips a user's verification state once the link signature has
// been checked by a SignatureVerifier.
type Verifier struct {
	users    *users.Store
	signer   *LinkSigner
	notifier notify.Notifier
	logger   *logging.Service
	clock    func() time.Time
}

func NewVerifier(store *users.Store, signer *LinkSigner, notifier notify.Notifier, logger *logging.Service) *Verifier {
	return &Verifier{
		users:    store,
		signer:   signer,
		notifier: notifier,
		logger:   logger,
		clock:    time.Now,
	}
}

func (v *Verifier) SetClock(clock func() time.Time) {
	v.clock = clock
}

// Verify marks the user verified when id and hash both match the stored
// account. A second verification of the same account fails.
func (v *Verifier) Verify(ctx context.Context, id, hash string) (*users.User, error) {
	userID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		v.logger.Warn("verification with malformed user id", zap.String("user_id", id))
		return nil, validation.ErrInvalidSignature
	}

	user, err := v.users.FindByID(ctx, uint(userID))
	if err != nil {
		return nil, err
	}
	if user == nil {
		v.logger.Warn("verification for unknown user", zap.String("user_id", id))
		return nil, validation.ErrInvalidSignature
	}

	idMatch := equal(strconv.FormatUint(uint64(user.ID), 10), id)
	hashMatch := equal(EmailHash(user.Email), hash)
	if !idMatch || !hashMatch {
		v.logger.Warn("verification hash mismatch", zap.Uint("user_id", user.ID))
		return nil, validation.ErrInvalidSignature
	}

	if user.IsVerified() {
		v.logger.Info("verification replay for verified user", zap.Uint("user_id", user.ID))
		return nil, validation.ErrAlreadyVerified
	}

	if err := v.users.MarkVerified(ctx, user, v.clock()); err != nil {
		if errors.Is(err, users.ErrAlreadyVerified) {
			v.logger.Info("verification raced with another request", zap.Uint("user_id", user.ID))
			return nil, validation.ErrAlreadyVerified
		}
		return nil, err
	}

	v.logger.Info("email verified", zap.Uint("user_id", user.ID), zap.String("email", user.Email))
	return user, nil
}

// SendVerification signs a fresh link for user and hands it to the notifier.
func (v *Verifier) SendVerification(ctx context.Context, user *users.User) error {
	link, expires, err := v.signer.Sign(user)
	if err != nil {
		return err
	}

	to := notify.Recipient{Email: user.Email, Name: user.Name}
	if err := v.notifier.SendVerification(ctx, to, link, expires); err != nil {
		v.logger.Error("failed to send verification email", zap.Error(err), zap.Uint("user_id", user.ID))
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	v.logger.Info("verification email sent", zap.Uint("user_id", user.ID), zap.Time("expires_at", expires))
	return nil
}

// ResendVerification sends a new link only for an existing unverified
// account and says nothing about which case applied.
func (v *Verifier) ResendVerification(ctx context.Context, email string) error {
	user, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		v.logger.Info("verification resend for unknown email", zap.String("email", users.NormalizeEmail(email)))
		return nil
	}
	if user.IsVerified() {
		v.logger.Info("verification resend for verified user", zap.Uint("user_id", user.ID))
		return nil
	}

	return v.SendVerification(ctx, user)
}
