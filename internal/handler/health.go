package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/config"
	"cors-relay/internal/cors"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	policy  *cors.Policy
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, p *cors.Policy, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, policy: p, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version and the active relay policy.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":          "ok",
		"version":         string(h.version),
		"allowed_origins": h.policy.AllowedOrigins(),
		"allow_private":   h.cfg.Target.AllowPrivate,
		"allowed_hosts":   h.cfg.Target.AllowedHosts,
	})
}
