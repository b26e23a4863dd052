// Package notify delivers the account emails the authentication workflow
// produces: verification links, password reset links and the password
// changed notice.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Recipient struct {
	Email string
	Name  string
}

type Notifier interface {
	SendVerification(ctx context.Context, to Recipient, link string, expires time.Time) error
	SendPasswordReset(ctx context.Context, to Recipient, link string, expires time.Time) error
	SendPasswordChanged(ctx context.Context, to Recipient) error
}

// Message is a rendered plain-text email.
type Message struct {
	To      Recipient
	Subject string
	Body    string
	// Kind names the notification for logs without exposing the body.
	Kind string
}

const (
	KindVerification    = "verification"
	KindPasswordReset   = "password_reset"
	KindPasswordChanged = "password_changed"
)

// Composer renders notification bodies for one application name.
type Composer struct {
	AppName string
}

func (c Composer) Verification(to Recipient, link string, expires time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greetingName(to))
	fmt.Fprintf(&b, "Please confirm your email address for %s by opening the link below:\n\n", c.AppName)
	fmt.Fprintf(&b, "%s\n\n", link)
	fmt.Fprintf(&b, "The link expires at %s.\n", expires.UTC().Format(time.RFC1123))
	b.WriteString("If you did not create an account, no further action is required.\n")

	return Message{To: to, Subject: "Verify Email Address", Body: b.String(), Kind: KindVerification}
}

func (c Composer) PasswordReset(to Recipient, link string, expires time.Time) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greetingName(to))
	fmt.Fprintf(&b, "You are receiving this email because we received a password reset request for your %s account.\n\n", c.AppName)
	fmt.Fprintf(&b, "%s\n\n", link)
	fmt.Fprintf(&b, "This password reset link expires at %s.\n", expires.UTC().Format(time.RFC1123))
	b.WriteString("If you did not request a password reset, no further action is required.\n")

	return Message{To: to, Subject: "Reset Password Notification", Body: b.String(), Kind: KindPasswordReset}
}

func (c Composer) PasswordChanged(to Recipient) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", greetingName(to))
	fmt.Fprintf(&b, "The password for your %s account was just changed.\n", c.AppName)
	b.WriteString("If this was not you, reset your password immediately.\n")

	return Message{To: to, Subject: "Your password was changed", Body: b.String(), Kind: KindPasswordChanged}
}

func greetingName(to Recipient) string {
	if to.Name != "" {
		return to.Name
	}
	return to.Email
}
