package middleware

import (
	"github.com/labstack/echo/v4"
)

// connectionHeaders describe the inbound hop only and are removed before the
// relay handler sees the request.
var connectionHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// responseHeaders go on every relay response. Envelopes are data for
// cross-origin scripts, never documents to render or frame.
var responseHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"Referrer-Policy":              "no-referrer",
	"Cross-Origin-Resource-Policy": "cross-origin",
}

// SecurityHeaders strips connection-scoped request headers and stamps the
// response headers before the handler runs, so Echo's error handler output
// carries them as well.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			in := c.Request().Header
			for _, name := range connectionHeaders {
				in.Del(name)
			}

			out := c.Response().Header()
			for name, value := range responseHeaders {
				out.Set(name, value)
			}

			return next(c)
		}
	}
}
