package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/gatekeep/middleware/bearer"
	"github.com/tech-arch1tect/gatekeep/services/auth"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"github.com/tech-arch1tect/gatekeep/services/verification"
)

type AuthHandler struct {
	workflow   *auth.Workflow
	signatures verification.SignatureVerifier
	logger     *logging.Service
}

func NewAuthHandler(workflow *auth.Workflow, signatures verification.SignatureVerifier, logger *logging.Service) *AuthHandler {
	return &AuthHandler{
		workflow:   workflow,
		signatures: signatures,
		logger:     logger,
	}
}

// Routes mounts the auth endpoints on g, which is expected to be /v1.
func (h *AuthHandler) Routes(g *echo.Group, tokens bearer.Authenticator) {
	g.POST("/auth/register", h.Register)
	g.POST("/auth/login", h.Login)
	g.POST("/auth/logout", h.Logout, bearer.OptionalToken(tokens, h.logger))
	g.POST("/auth/forgot-password", h.ForgotPassword)
	g.POST("/auth/reset-password", h.ResetPassword)
	g.GET("/auth/verify/:id/:hash", h.Verify)
	g.POST("/auth/resend-verification", h.ResendVerification)
}

func requestFrom(c echo.Context, email string) auth.Request {
	return auth.Request{
		Email:     email,
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}

type validatable interface {
	Validate() error
}

func bind(c echo.Context, req validatable) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Malformed request body").SetInternal(err)
	}
	return req.Validate()
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	err := h.workflow.Register(c.Request().Context(), requestFrom(c, req.Email), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return success(c, http.StatusCreated, auth.MessageRegistered, map[string]any{
		"message": auth.MessageVerificationSent,
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.workflow.Login(c.Request().Context(), requestFrom(c, req.Email), auth.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceName: req.DeviceName,
		Remember:   req.Remember,
	})
	if err != nil {
		return err
	}

	return success(c, http.StatusOK, auth.MessageLoggedIn, map[string]any{
		"user":  result.User,
		"token": result.Token,
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	if err := h.workflow.Logout(c.Request().Context(), bearer.GetToken(c)); err != nil {
		return err
	}
	return success(c, http.StatusOK, auth.MessageLoggedOut, nil)
}

func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.workflow.ForgotPassword(c.Request().Context(), requestFrom(c, req.Email), req.Email); err != nil {
		return err
	}

	return success(c, http.StatusOK, auth.MessageResetLinkSent, map[string]any{"email": req.Email})
}

func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	err := h.workflow.ResetPassword(c.Request().Context(), requestFrom(c, req.Email), auth.ResetInput{
		Email:    req.Email,
		Token:    req.Token,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	return success(c, http.StatusOK, auth.MessagePasswordReset, map[string]any{"email": req.Email})
}

// Verify checks the link signature before the workflow sees the request.
func (h *AuthHandler) Verify(c echo.Context) error {
	id, hash := c.Param("id"), c.Param("hash")

	if err := h.signatures.VerifySignature(id, hash, c.QueryParam("expires"), c.QueryParam("signature")); err != nil {
		return err
	}

	if _, err := h.workflow.VerifyEmail(c.Request().Context(), requestFrom(c, ""), id, hash); err != nil {
		return err
	}

	return success(c, http.StatusOK, auth.MessageEmailVerified, map[string]any{
		"message": auth.MessageEmailVerified,
	})
}

func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req EmailRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.workflow.ResendVerification(c.Request().Context(), requestFrom(c, req.Email), req.Email); err != nil {
		return err
	}

	return success(c, http.StatusOK, auth.MessageVerificationResent, map[string]any{
		"message": auth.MessageVerificationResent,
	})
}
