package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders_AddsHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	})

	for _, path := range []string{"/", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		for name, want := range responseHeaders {
			assert.Equal(t, want, rec.Header().Get(name), "path %s header %s", path, name)
		}
	}
}

func TestSecurityHeaders_StripsConnectionHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())

	var seen http.Header
	e.POST("/", func(c echo.Context) error {
		seen = c.Request().Header.Clone()
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Authorization", "Bearer t")
	e.ServeHTTP(httptest.NewRecorder(), req)

	assert.Empty(t, seen.Get("Connection"))
	assert.Empty(t, seen.Get("Proxy-Authorization"))
	assert.Empty(t, seen.Get("Upgrade"))
	assert.Equal(t, "Bearer t", seen.Get("Authorization"))
}
