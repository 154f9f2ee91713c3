package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cors-relay/internal/config"
	"cors-relay/internal/cors"
)

func TestHealthz(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := NewHealthHandler(&config.Config{}, cors.NewPolicy(nil), "test")
	require.NoError(t, h.Healthz(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatus(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/relay/status", http.NoBody)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	cfg := &config.Config{
		Target: config.TargetConfig{AllowPrivate: true, AllowedHosts: []string{"api.example.com"}},
	}
	h := NewHealthHandler(cfg, cors.NewPolicy([]string{"https://fhaji.dev"}), "1.2.3")
	require.NoError(t, h.Status(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status         string   `json:"status"`
		Version        string   `json:"version"`
		AllowedOrigins []string `json:"allowed_origins"`
		AllowPrivate   bool     `json:"allow_private"`
		AllowedHosts   []string `json:"allowed_hosts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, []string{"https://fhaji.dev"}, body.AllowedOrigins)
	assert.True(t, body.AllowPrivate)
	assert.Equal(t, []string{"api.example.com"}, body.AllowedHosts)
}
