package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/metrics"
)

// MetricsMiddleware records inbound traffic: in-flight count, request totals
// and latency keyed by normalized method, status and route, plus which CORS
// origin mode each response went out with. It must run outside the CORS
// middleware so the CORS headers are present when it inspects the response.
func MetricsMiddleware(m *metrics.Metrics, metricsPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			err := next(c)
			elapsed := time.Since(start).Seconds()

			req := c.Request()
			labels := []string{
				metrics.NormalizeMethod(req.Method),
				strconv.Itoa(responseStatus(c, err)),
				metrics.NormalizePath(req.URL.Path, metricsPath),
			}
			m.RequestsTotal.WithLabelValues(labels...).Inc()
			m.RequestDuration.WithLabelValues(labels...).Observe(elapsed)

			if mode := allowOriginMode(c.Response().Header()); mode != "" {
				preflight := strconv.FormatBool(req.Method == http.MethodOptions)
				m.CORSResponses.WithLabelValues(mode, preflight).Inc()
			}

			return err
		}
	}
}

// responseStatus is the status the caller will see. An *echo.HTTPError has
// not been written yet when it propagates through the chain.
func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if err != nil && errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}

func allowOriginMode(h http.Header) string {
	switch v := h.Get(echo.HeaderAccessControlAllowOrigin); v {
	case "":
		return ""
	case "*":
		return "wildcard"
	default:
		return "echoed"
	}
}
