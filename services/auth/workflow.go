// Package auth composes the credential store, password policy, token
// issuer, reset broker and email verifier into the request-level
// authentication operations. Every operation that takes a Request is
// throttled before any other work is done.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/password"
	"github.com/tech-arch1tect/gatekeep/services/passwordreset"
	"github.com/tech-arch1tect/gatekeep/services/ratelimit"
	"github.com/tech-arch1tect/gatekeep/services/tokens"
	"github.com/tech-arch1tect/gatekeep/services/users"
	"github.com/tech-arch1tect/gatekeep/services/verification"
	"github.com/tech-arch1tect/gatekeep/validation"
	"go.uber.org/zap"
)

const (
	MessageRegistered         = "Registration successful. Please verify your email."
	MessageVerificationSent   = "Verification email sent. Please check your inbox."
	MessageVerificationResent = "Verification email resent. Please check your inbox."
	MessageResetLinkSent      = "We have emailed your password reset link."
	MessagePasswordReset      = "Your password has been reset."
	MessageEmailVerified      = "Email verified successfully."
	MessageLoggedIn           = "Login successful."
	MessageLoggedOut          = "Logged out successfully."
)

// Request carries the requester details used to fingerprint rate limits
// and name devices.
type Request struct {
	Email     string
	IP        string
	UserAgent string
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceName string
	Remember   bool
}

type ResetInput struct {
	Email    string
	Token    string
	Password string
}

type LoginResult struct {
	User  *users.User
	Token string
}

type Workflow struct {
	config   *config.Config
	limiter  *ratelimit.Limiter
	users    *users.Store
	policy   *password.Policy
	tokens   *tokens.Issuer
	resets   *passwordreset.Broker
	verifier *verification.Verifier
	logger   *logging.Service
	clock    func() time.Time
}

func NewWorkflow(
	cfg *config.Config,
	limiter *ratelimit.Limiter,
	store *users.Store,
	policy *password.Policy,
	issuer *tokens.Issuer,
	resets *passwordreset.Broker,
	verifier *verification.Verifier,
	logger *logging.Service,
) *Workflow {
	return &Workflow{
		config:   cfg,
		limiter:  limiter,
		users:    store,
		policy:   policy,
		tokens:   issuer,
		resets:   resets,
		verifier: verifier,
		logger:   logger,
		clock:    time.Now,
	}
}

func (w *Workflow) SetClock(clock func() time.Time) {
	w.clock = clock
}

func (w *Workflow) throttle(ctx context.Context, action string, req Request) error {
	return w.limiter.Throttle(ctx, action, ratelimit.Fingerprint(users.NormalizeEmail(req.Email), req.IP))
}

// Register creates the account and sends a verification link when the
// email is new. The outcome is the same for an existing email.
func (w *Workflow) Register(ctx context.Context, req Request, in RegisterInput) error {
	if err := w.throttle(ctx, ratelimit.ActionRegister, req); err != nil {
		return err
	}

	email := users.NormalizeEmail(in.Email)
	hash, err := w.policy.Secure(ctx, in.Password)
	if err != nil {
		return err
	}

	exists, err := w.users.Exists(ctx, email)
	if err != nil {
		return err
	}
	if exists {
		w.logger.Info("registration for existing email", zap.String("email", email))
		return nil
	}

	user, err := w.users.Create(ctx, users.NewUser{Name: in.Name, Email: email, Password: hash})
	if errors.Is(err, users.ErrEmailTaken) {
		w.logger.Info("concurrent registration for existing email", zap.String("email", email))
		return nil
	}
	if err != nil {
		return err
	}

	w.logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("email", email))

	if err := w.verifier.SendVerification(ctx, user); err != nil {
		w.logger.Warn("registered user without verification email", zap.Error(err), zap.Uint("user_id", user.ID))
	}
	return nil
}

// Login checks credentials, then the verified state, then issues a device
// token while keeping the user under the configured token cap.
func (w *Workflow) Login(ctx context.Context, req Request, in LoginInput) (*LoginResult, error) {
	if err := w.throttle(ctx, ratelimit.ActionLogin, req); err != nil {
		return nil, err
	}

	email := users.NormalizeEmail(in.Email)
	user, err := w.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if user == nil {
		w.policy.CheckDummy(in.Password)
		w.logger.Info("login failed", zap.String("email", email), zap.String("reason", "unknown email"))
		return nil, validation.ErrInvalidCredentials
	}
	if !w.policy.Check(in.Password, user.Password) {
		w.logger.Info("login failed", zap.String("email", email), zap.String("reason", "password mismatch"))
		return nil, validation.ErrInvalidCredentials
	}

	w.logger.Info("user authenticated", zap.Uint("user_id", user.ID))

	if !user.IsVerified() {
		w.logger.Info("login refused for unverified email", zap.Uint("user_id", user.ID))
		return nil, validation.ErrEmailNotVerified
	}

	if w.policy.NeedsRehash(user.Password) {
		w.rehash(ctx, user, in.Password)
	}

	var expiresAt *time.Time
	if !in.Remember {
		at := w.clock().AddDate(0, 0, w.config.Auth.TokenExpiryDays)
		expiresAt = &at
	}

	device := DeviceName(in.DeviceName, req.UserAgent)
	issued, err := w.tokens.IssueCapped(ctx, user.ID, device, []string{tokens.AbilityAll}, expiresAt, w.config.Auth.MaxDeviceTokens)
	if err != nil {
		return nil, err
	}

	w.logger.Info("login succeeded",
		zap.Uint("user_id", user.ID),
		zap.String("device", device),
		zap.Bool("remember", in.Remember))

	return &LoginResult{User: user, Token: issued.PlainText}, nil
}

func (w *Workflow) rehash(ctx context.Context, user *users.User, plain string) {
	hash, err := w.policy.Rehash(plain)
	if err == nil {
		err = w.users.UpdatePasswordHash(ctx, user, hash)
	}
	if err != nil {
		w.logger.Warn("failed to upgrade password hash", zap.Error(err), zap.Uint("user_id", user.ID))
		return
	}
	w.logger.Info("password hash upgraded", zap.Uint("user_id", user.ID))
}

// Logout revokes the token the request authenticated with. Without one it
// does nothing and still succeeds.
func (w *Workflow) Logout(ctx context.Context, token *tokens.AuthToken) error {
	if token == nil {
		w.logger.Debug("logout without access token")
		return nil
	}

	if err := w.tokens.Revoke(ctx, token.ID); err != nil {
		return err
	}

	w.logger.Info("user logged out", zap.Uint("user_id", token.UserID), zap.Uint("token_id", token.ID))
	return nil
}

func (w *Workflow) ForgotPassword(ctx context.Context, req Request, email string) error {
	if err := w.throttle(ctx, ratelimit.ActionForgotPassword, req); err != nil {
		return err
	}

	if err := w.resets.SendResetLink(ctx, email); err != nil {
		// the response must not reveal whether a link went out
		w.logger.Error("password reset link not sent", zap.Error(err), zap.String("email", users.NormalizeEmail(email)))
	}
	return nil
}

func (w *Workflow) ResetPassword(ctx context.Context, req Request, in ResetInput) error {
	if err := w.throttle(ctx, ratelimit.ActionResetPassword, req); err != nil {
		return err
	}

	_, err := w.resets.Consume(ctx, in.Email, in.Token, in.Password)
	return err
}

func (w *Workflow) VerifyEmail(ctx context.Context, req Request, id, hash string) (*users.User, error) {
	if err := w.throttle(ctx, ratelimit.ActionVerifyEmail, req); err != nil {
		return nil, err
	}

	return w.verifier.Verify(ctx, id, hash)
}

func (w *Workflow) ResendVerification(ctx context.Context, req Request, email string) error {
	if err := w.throttle(ctx, ratelimit.ActionResendVerification, req); err != nil {
		return err
	}

	if err := w.verifier.ResendVerification(ctx, email); err != nil {
		w.logger.Error("verification email not resent", zap.Error(err), zap.String("email", users.NormalizeEmail(email)))
	}
	return nil
}
