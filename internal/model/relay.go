// Package model defines shared types for the relay.
package model

import (
	"encoding/json"
	"net/http"
)

// RelayRequest describes one outbound call, derived fresh from each inbound
// request and discarded once the call completes.
type RelayRequest struct {
	TargetURL string
	Method    string
	Header    http.Header
	Body      json.RawMessage // nil means no outbound body
}

// RelayBody is the JSON body a caller POSTs to the relay.
type RelayBody struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Query   json.RawMessage   `json:"query,omitempty"`
}

// Result is a translated target response ready to send to the caller.
type Result struct {
	StatusCode int
	Body       any
}

// SuccessEnvelope wraps a 2xx target response. Data holds the parsed JSON
// value, or the raw text as a JSON string when the body was not JSON.
type SuccessEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// UpstreamErrorEnvelope reports a non-2xx target response.
type UpstreamErrorEnvelope struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details"`
}

// FailureEnvelope reports a relay that never produced a target response.
type FailureEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorEnvelope is the bare {"error": ...} body.
type ErrorEnvelope struct {
	Error string `json:"error"`
}
