// Package api exposes the pipeline control surface over HTTP.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/camtrap-go/internal/conf"
	"github.com/tphakala/camtrap-go/internal/logging"
	"github.com/tphakala/camtrap-go/internal/pipeline"
)

// statusCacheTTL bounds how often a polling client can force a fresh
// read-only store open per study.
const statusCacheTTL = 2 * time.Second

// Controller manages the API routes and handlers.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings
	Manager  *pipeline.Manager

	statusCache *cache.Cache
	logger      *slog.Logger
}

// New creates the API controller and registers its routes on the given Echo
// instance.
func New(e *echo.Echo, settings *conf.Settings, manager *pipeline.Manager) *Controller {
	logger := logging.ForService("api")
	if logger == nil {
		logger = slog.Default().With("service", "api")
	}

	c := &Controller{
		Echo:        e,
		Settings:    settings,
		Manager:     manager,
		statusCache: cache.New(statusCacheTTL, time.Minute),
		logger:      logger,
	}

	e.Use(middleware.Recover())

	c.Group = e.Group("/api/v1")
	c.initRoutes()

	e.GET("/healthz", c.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return c
}

func (c *Controller) initRoutes() {
	c.Group.POST("/studies", c.StartStudy)
	c.Group.POST("/studies/:id/media", c.AddMedia)
	c.Group.POST("/studies/:id/stop", c.StopStudy)
	c.Group.POST("/studies/:id/resume", c.ResumeStudy)
	c.Group.GET("/studies/:id/status", c.StudyStatus)
}

// Healthz reports process liveness.
func (c *Controller) Healthz(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "ok")
}

// ErrorResponse is the JSON error body returned by all handlers.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError constructs and returns an appropriate error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := &ErrorResponse{
		Error:         err.Error(),
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}

	c.logger.Error("API error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", err.Error(),
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP(),
	)

	return ctx.JSON(code, resp)
}

// generateCorrelationID creates a short random identifier for error tracking.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}
