// Package validation defines the field-tagged failures returned by the
// authentication services. Every failure here is rendered as a 422 by the
// HTTP layer; anything else is an infrastructure error.
package validation

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeRateLimited        Code = "rate_limited"
	CodeWeakPassword       Code = "weak_password"
	CodeInvalidCredentials Code = "invalid_credentials"
	CodeEmailNotVerified   Code = "email_not_verified"
	CodeInvalidUser        Code = "invalid_user"
	CodeInvalidToken       Code = "invalid_token"
	CodeInvalidSignature   Code = "invalid_signature"
	CodeAlreadyVerified    Code = "already_verified"
	CodeInvalidInput       Code = "invalid_input"
)

type Error struct {
	Code    Code
	Field   string
	Message string
	// RetryAfter is set for CodeRateLimited, in whole seconds.
	RetryAfter int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is matches on Code so callers can compare against the sentinels below
// while the returned value carries its own message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Errors converts the failure into the field bag rendered in responses.
func (e *Error) Errors() Errors {
	return Errors{e.Field: {e.Message}}
}

var (
	ErrRateLimited        = &Error{Code: CodeRateLimited, Field: "email", Message: "Too many attempts."}
	ErrWeakPassword       = &Error{Code: CodeWeakPassword, Field: "password", Message: "The password is too weak."}
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Field: "email", Message: "Invalid credentials."}
	ErrEmailNotVerified   = &Error{Code: CodeEmailNotVerified, Field: "email_verification", Message: "Please verify your email before logging in."}
	ErrInvalidUser        = &Error{Code: CodeInvalidUser, Field: "email", Message: "We can't find a user with that email address."}
	ErrInvalidToken       = &Error{Code: CodeInvalidToken, Field: "token", Message: "This password reset token is invalid."}
	ErrInvalidSignature   = &Error{Code: CodeInvalidSignature, Field: "token", Message: "Invalid verification token."}
	ErrAlreadyVerified    = &Error{Code: CodeAlreadyVerified, Field: "email", Message: "Email already verified."}
)

func RateLimited(retryAfter int) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Field:      "email",
		Message:    fmt.Sprintf("Too many attempts. Try again in %d seconds.", retryAfter),
		RetryAfter: retryAfter,
	}
}

func WeakPassword(message string) *Error {
	return &Error{Code: CodeWeakPassword, Field: "password", Message: message}
}

// InvalidSignedLink is the failure for a verification link whose signature
// or expiry does not check out.
func InvalidSignedLink() *Error {
	return &Error{Code: CodeInvalidSignature, Field: "signature", Message: "Invalid or expired verification link."}
}

// As extracts a *Error from err, if any.
func As(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// Errors maps a request field to its messages.
type Errors map[string][]string

func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e Errors) Empty() bool {
	return len(e) == 0
}
