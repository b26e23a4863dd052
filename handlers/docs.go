package handlers

import (
	"net/http"

	"github.com/tech-arch1tect/gatekeep/config"
	"github.com/tech-arch1tect/gatekeep/openapi"
	"github.com/tech-arch1tect/gatekeep/services/users"
)

const bearerScheme = "bearerAuth"

type LoginData struct {
	User  users.User `json:"user"`
	Token string     `json:"token" doc:"Plaintext access token, shown once"`
}

type EmailData struct {
	Email string `json:"email"`
}

type MessageData struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	Success bool      `json:"success"`
	Data    LoginData `json:"data"`
	Message string    `json:"message"`
}

type EmailResponse struct {
	Success bool      `json:"success"`
	Data    EmailData `json:"data"`
	Message string    `json:"message"`
}

type MessageResponse struct {
	Success bool        `json:"success"`
	Data    MessageData `json:"data"`
	Message string      `json:"message"`
}

type EmptyResponse struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Message string         `json:"message"`
}

// NewDocument describes the routes mounted by AuthHandler.Routes and the
// health check.
func NewDocument(cfg *config.Config) *openapi.Document {
	doc := openapi.New(cfg.App.Name, "1.0.0").
		Description("Account registration, login, password reset and email verification.").
		Server(cfg.App.URL, "").
		Tag("auth", "Authentication").
		Tag("system", "Service status").
		BearerAuth(bearerScheme, "Access token returned by login")

	throttled := func(rb *openapi.RouteBuilder) *openapi.RouteBuilder {
		return rb.
			Response(http.StatusUnprocessableEntity, ErrorEnvelope{}, "Validation failed or too many attempts").
			Header(http.StatusUnprocessableEntity, "Retry-After", "Seconds until the next attempt is allowed").
			Response(http.StatusTooManyRequests, ErrorEnvelope{}, "Request volume exceeded").
			Header(http.StatusTooManyRequests, "Retry-After", "Seconds until the next request is allowed")
	}

	throttled(doc.Route(http.MethodPost, "/v1/auth/register").
		OperationID("register").
		Summary("Register an account").
		Tags("auth").
		Body(RegisterRequest{}, "New account details").
		Response(http.StatusCreated, MessageResponse{}, "Registration accepted")).
		Build()

	throttled(doc.Route(http.MethodPost, "/v1/auth/login").
		OperationID("login").
		Summary("Exchange credentials for an access token").
		Tags("auth").
		Body(LoginRequest{}, "Credentials").
		Response(http.StatusOK, LoginResponse{}, "Authenticated")).
		Build()

	doc.Route(http.MethodPost, "/v1/auth/logout").
		OperationID("logout").
		Summary("Revoke the presented access token").
		Tags("auth").
		OptionalSecurity(bearerScheme).
		Response(http.StatusOK, EmptyResponse{}, "Logged out").
		Build()

	throttled(doc.Route(http.MethodPost, "/v1/auth/forgot-password").
		OperationID("forgotPassword").
		Summary("Email a password reset link").
		Tags("auth").
		Body(EmailRequest{}, "Account email").
		Response(http.StatusOK, EmailResponse{}, "Link sent if the account exists")).
		Build()

	throttled(doc.Route(http.MethodPost, "/v1/auth/reset-password").
		OperationID("resetPassword").
		Summary("Set a new password with a reset token").
		Tags("auth").
		Body(ResetPasswordRequest{}, "Reset token and new password").
		Response(http.StatusOK, EmailResponse{}, "Password changed")).
		Build()

	throttled(doc.Route(http.MethodGet, "/v1/auth/verify/:id/:hash").
		OperationID("verifyEmail").
		Summary("Confirm an email address from a signed link").
		Tags("auth").
		PathParam("id", "User id").
		PathParam("hash", "SHA-1 of the email address").
		QueryParam("expires", "Link expiry as a unix timestamp", true).
		QueryParam("signature", "Link signature", true).
		Response(http.StatusOK, MessageResponse{}, "Email verified")).
		Build()

	throttled(doc.Route(http.MethodPost, "/v1/auth/resend-verification").
		OperationID("resendVerification").
		Summary("Send a fresh verification link").
		Tags("auth").
		Body(EmailRequest{}, "Account email").
		Response(http.StatusOK, MessageResponse{}, "Link sent if the account is unverified")).
		Build()

	doc.Route(http.MethodGet, "/healthz").
		OperationID("health").
		Summary("Database reachability").
		Tags("system").
		Response(http.StatusOK, HealthStatus{}, "Healthy").
		Response(http.StatusServiceUnavailable, HealthStatus{}, "Database unreachable").
		Build()

	return doc
}
