package client

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"cors-relay/internal/config"
	"cors-relay/internal/guard"
	"cors-relay/internal/metrics"
)

func testConfig(timeout int, allowPrivate bool) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			TimeoutSeconds:  timeout,
			IdleConnections: 10,
		},
		Target: config.TargetConfig{AllowPrivate: allowPrivate},
	}
}

func newTestClient(cfg *config.Config, m *metrics.Metrics) *TargetClient {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTargetClient(cfg, guard.New(cfg), logger, m)
}

func TestTargetClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	m := metrics.New()
	c := newTestClient(testConfig(10, true), m)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/test", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q, want %q", string(body), `{"status":"ok"}`)
	}

	if got := testutil.ToFloat64(m.UpstreamResponses.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("upstream_responses_total{GET,200} = %v, want 1", got)
	}
}

func TestTargetClient_Do_Unreachable(t *testing.T) {
	c := newTestClient(testConfig(1, true), nil)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://127.0.0.1:1/nonexistent", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Do(req)
	if err == nil {
		t.Fatal("Do() expected error for unreachable host, got nil")
	}
	if errors.Is(err, guard.ErrTargetForbidden) {
		t.Errorf("Do() error = %v; allow_private should not reject loopback", err)
	}
}

func TestTargetClient_Do_GuardRejectsLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("request should never reach a loopback target")
	}))
	defer srv.Close()

	c := newTestClient(testConfig(5, false), nil)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Do(req)
	if !errors.Is(err, guard.ErrTargetForbidden) {
		t.Fatalf("Do() error = %v, want ErrTargetForbidden", err)
	}
}

func TestTargetClient_Do_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simulate a slow target; the request should be canceled before this completes.
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(testConfig(30, true), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/slow", http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Do(req); err == nil {
		t.Fatal("Do() expected error for canceled context, got nil")
	}
}

func TestTargetClient_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 16)))
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		limit   int64
		wantErr bool
	}{
		{"exact fit", 16, false},
		{"unlimited", 0, false},
		{"overflow", 15, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(10, true)
			cfg.Upstream.MaxBodyBytes = tt.limit
			c := newTestClient(cfg, nil)

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
			if err != nil {
				t.Fatal(err)
			}
			resp, err := c.Do(req)
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}
			defer func() { _ = resp.Body.Close() }()

			body, err := io.ReadAll(resp.Body)
			if tt.wantErr {
				if !errors.Is(err, ErrBodyTooLarge) {
					t.Fatalf("ReadAll() error = %v, want ErrBodyTooLarge", err)
				}
				if int64(len(body)) > tt.limit {
					t.Errorf("read %d bytes, want at most %d", len(body), tt.limit)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if len(body) != 16 {
				t.Errorf("read %d bytes, want 16", len(body))
			}
		})
	}
}

func TestTargetClient_DecodesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = w.Write([]byte(`{"a":1}`))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		zw := gzip.NewWriter(w)
		_, _ = zw.Write([]byte(`{"a":1}`))
		_ = zw.Close()
	}))
	defer srv.Close()

	c := newTestClient(testConfig(10, true), nil)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, http.NoBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != `{"a":1}` {
		t.Errorf("body = %q, want %q", body, `{"a":1}`)
	}
}
