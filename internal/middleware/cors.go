package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-relay/internal/cors"
)

// CORS returns an Echo middleware that stamps the policy's header set on every
// response and answers OPTIONS preflights with an empty 204.
//
// Headers are written before the handler runs so that error responses
// produced later by Echo's error handler carry them too.
func CORS(p *cors.Policy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response().Header()
			for k, v := range p.Headers(c.Request().Header.Get(echo.HeaderOrigin)) {
				res[k] = v
			}
			res.Add(echo.HeaderVary, echo.HeaderOrigin)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
