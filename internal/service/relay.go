// Package service implements the relay pipeline: translate the inbound
// request, wait out the dispatch delay, call the target once, and translate
// its response.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"cors-relay/internal/client"
	"cors-relay/internal/guard"
	"cors-relay/internal/identity"
	"cors-relay/internal/metrics"
	"cors-relay/internal/model"
)

// ErrURLRequired is returned when the inbound request names no target.
var ErrURLRequired = errors.New("URL is required")

// ErrBodilessStatus is returned for target statuses (1xx, 304) whose
// response cannot carry the JSON envelope.
var ErrBodilessStatus = errors.New("target status cannot carry a response body")

var errNullBody = errors.New("relay body is null")

// Browser-like defaults sent with every outbound request.
const (
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	defaultAcceptLanguage = "en-US,en;q=0.9"
	defaultCacheControl   = "max-age=0"
)

// maxDetailRunes caps the target body echoed back in an upstream error.
const maxDetailRunes = 500

// excludedCallerHeaders are never copied from caller-supplied headers; they
// belong to the outbound transport. Accept-Encoding stays with the transport
// so it negotiates gzip and hands back a decoded body.
var excludedCallerHeaders = map[string]bool{
	"host":            true,
	"connection":      true,
	"accept-encoding": true,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RelayService builds, dispatches and translates relayed requests.
type RelayService struct {
	client   *client.TargetClient
	guard    *guard.Guard
	identity *identity.Identity
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewRelayService creates a RelayService.
// The metrics parameter is optional; pass nil to disable relay metrics recording.
func NewRelayService(c *client.TargetClient, g *guard.Guard, id *identity.Identity, logger *slog.Logger, m *metrics.Metrics) *RelayService {
	return &RelayService{
		client:   c,
		guard:    g,
		identity: id,
		logger:   logger.With("component", "relay_service"),
		metrics:  m,
	}
}

// FromPOST decodes a JSON relay body into a RelayRequest. The outbound
// method defaults to POST.
//
// The body must be exactly one JSON value. null is a decode failure; any
// other non-object value names no target.
func (s *RelayService) FromPOST(body io.Reader) (*model.RelayRequest, error) {
	dec := json.NewDecoder(body)
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode relay body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode relay body: unexpected data after JSON value")
	}

	raw = bytes.TrimSpace(raw)
	var rb model.RelayBody
	switch raw[0] {
	case 'n':
		return nil, fmt.Errorf("decode relay body: %w", errNullBody)
	case '{':
		if err := json.Unmarshal(raw, &rb); err != nil {
			return nil, fmt.Errorf("decode relay body: %w", err)
		}
	}
	if rb.URL == "" {
		return nil, ErrURLRequired
	}

	method := strings.ToUpper(rb.Method)
	if method == "" {
		method = http.MethodPost
	}

	rr := &model.RelayRequest{
		TargetURL: rb.URL,
		Method:    method,
		Header:    s.buildHeaders(method, rb.Headers),
	}
	if hasBody(method) && truthy(rb.Query) {
		rr.Body = rb.Query
	}
	return rr, nil
}

// FromGET builds a GET RelayRequest from the url query parameter.
func (s *RelayService) FromGET(query url.Values) (*model.RelayRequest, error) {
	target := query.Get("url")
	if target == "" {
		return nil, ErrURLRequired
	}
	return &model.RelayRequest{
		TargetURL: target,
		Method:    http.MethodGet,
		Header:    s.buildHeaders(http.MethodGet, nil),
	}, nil
}

// buildHeaders layers caller headers over the browser defaults. Caller values
// win, except Host and Connection which are dropped in any letter case.
func (s *RelayService) buildHeaders(method string, caller map[string]string) http.Header {
	idx, ua := s.identity.Pick()
	if s.metrics != nil {
		s.metrics.UserAgentsUsed.WithLabelValues(strconv.Itoa(idx)).Inc()
	}

	h := make(http.Header)
	h.Set("User-Agent", ua)
	h.Set("Accept", defaultAccept)
	h.Set("Accept-Language", defaultAcceptLanguage)
	h.Set("Cache-Control", defaultCacheControl)
	h.Set("Upgrade-Insecure-Requests", "1")
	if hasBody(method) {
		h.Set("Content-Type", "application/json")
	}

	for k, v := range caller {
		if excludedCallerHeaders[strings.ToLower(k)] {
			continue
		}
		h.Set(k, v)
	}
	return h
}

// Relay validates the target, waits out the dispatch delay, calls the target
// exactly once and translates its response. Target error statuses produce a
// Result; failures to obtain a relayable response return an error.
func (s *RelayService) Relay(ctx context.Context, rr *model.RelayRequest) (*model.Result, error) {
	u, err := s.guard.CheckURL(rr.TargetURL)
	if err != nil {
		return nil, err
	}

	var body io.Reader = http.NoBody
	if len(rr.Body) > 0 {
		body = bytes.NewReader(rr.Body)
	}
	req, err := http.NewRequestWithContext(ctx, rr.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build target request: %w", err)
	}
	req.Header = rr.Header

	delay, err := s.identity.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch delay: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DispatchDelay.Observe(delay.Seconds())
	}

	s.logger.Debug("relaying request",
		"method", rr.Method,
		"host", u.Host,
		"delay_ms", delay.Milliseconds(),
	)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay to target: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	return translate(resp)
}

// translate maps a target response onto the caller-facing envelope. Statuses
// that forbid a body are refused, since the envelope could never reach the
// caller.
func translate(resp *http.Response) (*model.Result, error) {
	if resp.StatusCode < 200 || resp.StatusCode == http.StatusNotModified {
		return nil, fmt.Errorf("%w: %d", ErrBodilessStatus, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read target body: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.Result{
			StatusCode: resp.StatusCode,
			Body: model.UpstreamErrorEnvelope{
				Error:   "API error",
				Status:  resp.StatusCode,
				Details: truncateRunes(string(raw), maxDetailRunes),
			},
		}, nil
	}

	var data any = string(raw)
	if json.Valid(raw) {
		data = json.RawMessage(raw)
	}
	return &model.Result{
		StatusCode: http.StatusOK,
		Body:       model.SuccessEnvelope{Success: true, Data: data},
	}, nil
}

func hasBody(method string) bool {
	return method != http.MethodGet && method != http.MethodHead
}

// truthy reports whether a JSON value should be forwarded as a body:
// absent, null, false, zero and the empty string are not.
func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}
	switch string(v) {
	case "null", "false", `""`:
		return false
	}
	if v[0] == '-' || (v[0] >= '0' && v[0] <= '9') {
		f, err := strconv.ParseFloat(string(v), 64)
		return err != nil || f != 0
	}
	return true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
