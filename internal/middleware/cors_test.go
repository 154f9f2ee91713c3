package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"cors-relay/internal/cors"
)

func newCORSEcho() *echo.Echo {
	e := echo.New()
	e.Use(CORS(cors.NewPolicy([]string{"https://fhaji.dev"})))
	e.Any("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	})
	return e
}

func assertStaticCORS(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, cors.AllowMethods, h.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, cors.AllowHeaders, h.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, cors.MaxAge, h.Get("Access-Control-Max-Age"))
}

func TestCORS_Preflight(t *testing.T) {
	e := newCORSEcho()

	for _, path := range []string{"/", "/anything", "/healthz"} {
		req := httptest.NewRequest(http.MethodOptions, path, http.NoBody)
		req.Header.Set(echo.HeaderOrigin, "https://fhaji.dev")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, "path %s", path)
		assert.Empty(t, rec.Body.String(), "path %s", path)
		assertStaticCORS(t, rec.Header())
		assert.Equal(t, "https://fhaji.dev", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORS_OriginResolution(t *testing.T) {
	e := newCORSEcho()

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"allow-listed", "https://fhaji.dev", "https://fhaji.dev"},
		{"localhost", "http://localhost:8080", "http://localhost:8080"},
		{"other", "https://other.example", "*"},
		{"absent", "", "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
			if tt.origin != "" {
				req.Header.Set(echo.HeaderOrigin, tt.origin)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assertStaticCORS(t, rec.Header())
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Values(echo.HeaderVary), echo.HeaderOrigin)
		})
	}
}

func TestCORS_ErrorResponsesCarryHeaders(t *testing.T) {
	e := newCORSEcho()

	req := httptest.NewRequest(http.MethodGet, "/missing", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assertStaticCORS(t, rec.Header())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
