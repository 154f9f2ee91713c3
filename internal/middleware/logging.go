// Package middleware provides the Echo middleware chain in front of the
// relay: request logging, CORS, metrics and response hardening.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger logs one slog line per inbound request. Preflights are logged
// at debug since browsers send one before most relay calls; 4xx responses
// log at warn and 5xx at error.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req := c.Request()
			res := c.Response()
			status := responseStatus(c, err)

			logger.LogAttrs(req.Context(), requestLevel(req.Method, status), "request",
				slog.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", status),
				slog.String("origin", req.Header.Get(echo.HeaderOrigin)),
				slog.String("remote_ip", c.RealIP()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.Int64("bytes_out", res.Size),
			)

			return err
		}
	}
}

func requestLevel(method string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodOptions:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
