package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/guard"
	"cors-relay/internal/metrics"
	"cors-relay/internal/model"
	"cors-relay/internal/service"
)

// RelayHandler forwards caller-described requests to their targets.
type RelayHandler struct {
	service *service.RelayService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRelayHandler creates a RelayHandler.
// The metrics parameter is optional; pass nil to disable outcome recording.
func NewRelayHandler(svc *service.RelayService, logger *slog.Logger, m *metrics.Metrics) *RelayHandler {
	return &RelayHandler{
		service: svc,
		logger:  logger.With("component", "relay_handler"),
		metrics: m,
	}
}

// Handle relays POST bodies and GET ?url= requests. Preflight OPTIONS never
// reaches here; the CORS middleware answers it.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	var (
		rr  *model.RelayRequest
		err error
	)
	switch req.Method {
	case http.MethodPost:
		rr, err = h.service.FromPOST(req.Body)
	case http.MethodGet:
		rr, err = h.service.FromGET(req.URL.Query())
	default:
		return c.JSON(http.StatusMethodNotAllowed, model.ErrorEnvelope{Error: "Method not allowed"})
	}
	if err != nil {
		return h.mapError(c, err)
	}

	res, err := h.service.Relay(req.Context(), rr)
	if err != nil {
		return h.mapError(c, err)
	}

	if res.StatusCode == http.StatusOK {
		h.recordOutcome(metrics.OutcomeSuccess)
	} else {
		h.recordOutcome(metrics.OutcomeUpstream)
	}
	return c.JSON(res.StatusCode, res.Body)
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrURLRequired) {
		h.recordOutcome(metrics.OutcomeInvalid)
		return c.JSON(http.StatusBadRequest, model.ErrorEnvelope{Error: "URL is required"})
	}

	if errors.Is(err, guard.ErrTargetForbidden) {
		h.recordOutcome(metrics.OutcomeForbidden)
		h.logger.Warn("target rejected",
			"err", err,
			"remote_ip", c.RealIP(),
		)
		return c.JSON(http.StatusForbidden, model.FailureEnvelope{
			Error:   "Target not allowed",
			Message: err.Error(),
		})
	}

	h.recordOutcome(metrics.OutcomeFailed)
	h.logger.Error("relay error",
		"err", err,
		"method", c.Request().Method,
	)
	return c.JSON(http.StatusInternalServerError, model.FailureEnvelope{
		Error:   "Failed to fetch from Target",
		Message: err.Error(),
	})
}

func (h *RelayHandler) recordOutcome(outcome string) {
	if h.metrics != nil {
		h.metrics.RelayOutcomes.WithLabelValues(outcome).Inc()
	}
}
