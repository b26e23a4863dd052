package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/gatekeep/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const healthTimeout = 2 * time.Second

type HealthHandler struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewHealthHandler(db *gorm.DB, logger *logging.Service) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

type HealthStatus struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
}

// Check pings the database and answers 503 when it is unreachable.
func (h *HealthHandler) Check(c echo.Context) error {
	status := HealthStatus{OK: true, Database: "up"}

	if err := h.ping(c.Request().Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		status = HealthStatus{OK: false, Database: "down"}
		return c.JSON(http.StatusServiceUnavailable, status)
	}

	return c.JSON(http.StatusOK, status)
}

func (h *HealthHandler) ping(ctx context.Context) error {
	if h.db == nil {
		return nil
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
