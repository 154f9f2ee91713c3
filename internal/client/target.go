// Package client provides the outbound HTTP client that reaches relay targets.
package client

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"cors-relay/internal/config"
	"cors-relay/internal/guard"
	"cors-relay/internal/metrics"
)

// ErrBodyTooLarge is returned while reading a target body that exceeds
// [upstream] max_body_bytes.
var ErrBodyTooLarge = errors.New("target body exceeds upstream.max_body_bytes")

// TargetClient sends relayed requests to caller-chosen targets.
type TargetClient struct {
	httpClient   *http.Client
	maxBodyBytes int64
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// NewTargetClient creates a TargetClient with connection pooling, timeouts and
// a dialer that refuses addresses the guard rejects.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewTargetClient(cfg *config.Config, g *guard.Guard, logger *slog.Logger, m *metrics.Metrics) *TargetClient {
	dialer := g.Dialer(&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	})

	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext:         dialer.DialContext,
	}

	return &TargetClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		maxBodyBytes: cfg.Upstream.MaxBodyBytes,
		logger:       logger.With("component", "target_client"),
		metrics:      m,
	}
}

// Do executes req against its target and returns the raw response. Reading
// past the configured body limit fails with ErrBodyTooLarge.
// The caller is responsible for closing the response body.
func (c *TargetClient) Do(req *http.Request) (*http.Response, error) {
	c.logger.Debug("target request",
		"method", req.Method,
		"host", req.URL.Host,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("target request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	if c.maxBodyBytes > 0 {
		resp.Body = &limitedBody{ReadCloser: resp.Body, remaining: c.maxBodyBytes}
	}
	return resp, nil
}

// limitedBody reads at most remaining bytes and reports ErrBodyTooLarge as
// soon as the underlying body holds more.
type limitedBody struct {
	io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, ErrBodyTooLarge
	}
	// One byte past the limit tells an exact fit from an overflow.
	if int64(len(p)) > b.remaining+1 {
		p = p[:b.remaining+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n - 1, ErrBodyTooLarge
	}
	return n, err
}
