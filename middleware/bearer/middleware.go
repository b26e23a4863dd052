package bearer

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/tokens"
	"go.uber.org/zap"
)

const (
	UserIDKey = "_bearer_user_id"
	TokenKey  = "_bearer_token"
)

// Authenticator resolves a plaintext bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, plaintext string) (*tokens.AuthToken, error)
}

func RequireToken(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			plaintext := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if plaintext == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Access token required")
			}

			token, err := auth.Authenticate(c.Request().Context(), plaintext)
			if err != nil {
				switch {
				case errors.Is(err, tokens.ErrTokenExpired):
					return echo.NewHTTPError(http.StatusUnauthorized, "Access token has expired")
				case errors.Is(err, tokens.ErrTokenInvalid):
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token")
				default:
					return err
				}
			}

			c.Set(UserIDKey, token.UserID)
			c.Set(TokenKey, token)

			return next(c)
		}
	}
}

// OptionalToken attaches the token when the request carries a valid one and
// otherwise passes the request through untouched.
func OptionalToken(auth Authenticator, logger *logging.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			plaintext, ok := strings.CutPrefix(authHeader, "Bearer ")
			plaintext = strings.TrimSpace(plaintext)
			if !ok || plaintext == "" {
				return next(c)
			}

			token, err := auth.Authenticate(c.Request().Context(), plaintext)
			if errors.Is(err, tokens.ErrTokenInvalid) || errors.Is(err, tokens.ErrTokenExpired) {
				logger.Debug("ignoring unusable bearer token", zap.Error(err))
				return next(c)
			}
			if err != nil {
				return err
			}

			c.Set(UserIDKey, token.UserID)
			c.Set(TokenKey, token)

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) uint {
	if userID, ok := c.Get(UserIDKey).(uint); ok {
		return userID
	}
	return 0
}

func GetToken(c echo.Context) *tokens.AuthToken {
	if token, ok := c.Get(TokenKey).(*tokens.AuthToken); ok {
		return token
	}
	return nil
}
