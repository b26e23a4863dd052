package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/validation"
	"go.uber.org/zap"
)

const MessageValidationFailed = "Validation failed"

type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

type ErrorEnvelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  validation.Errors `json:"errors,omitempty"`
}

// InputError is a request that failed shape validation before reaching the
// workflow.
type InputError struct {
	Errors validation.Errors
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %d field(s)", len(e.Errors))
}

func success(c echo.Context, status int, message string, data any) error {
	if data == nil {
		data = map[string]any{}
	}
	return c.JSON(status, Envelope{Success: true, Data: data, Message: message})
}

// ErrorHandler renders every error as an envelope: validation failures as
// 422 with the field bag, echo errors with their own status and anything
// else as a logged 500.
func ErrorHandler(logger *logging.Service) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err, c, logger)

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error("failed to write error response", zap.Error(err))
		}
	}
}

func render(err error, c echo.Context, logger *logging.Service) (int, ErrorEnvelope) {
	if verr, ok := validation.As(err); ok {
		if verr.RetryAfter > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(verr.RetryAfter))
		}
		return http.StatusUnprocessableEntity, ErrorEnvelope{Message: MessageValidationFailed, Errors: verr.Errors()}
	}

	var inputErr *InputError
	if errors.As(err, &inputErr) {
		return http.StatusUnprocessableEntity, ErrorEnvelope{Message: MessageValidationFailed, Errors: inputErr.Errors}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Internal != nil {
			logger.Debug("http error", zap.Error(httpErr.Internal))
		}
		message := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok && m != "" {
			message = m
		}
		return httpErr.Code, ErrorEnvelope{Message: message}
	}

	logger.Error("unhandled request error",
		zap.Error(err),
		zap.String("method", c.Request().Method),
		zap.String("path", c.Request().URL.Path))

	return http.StatusInternalServerError, ErrorEnvelope{Message: "Server Error"}
}
