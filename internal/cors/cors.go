// Package cors resolves the cross-origin response headers for a request.
package cors

import (
	"net/http"
	"slices"
	"strings"
)

// Static header values sent on every response.
const (
	AllowMethods = "GET, POST, OPTIONS"
	AllowHeaders = "Content-Type, Authorization"
	MaxAge       = "86400"
)

// Policy decides which origins are echoed back instead of the wildcard.
// It is immutable once built and safe for concurrent use.
type Policy struct {
	allowed []string
}

// NewPolicy creates a Policy from an origin allow-list.
func NewPolicy(allowed []string) *Policy {
	return &Policy{allowed: slices.Clone(allowed)}
}

// AllowedOrigins returns a copy of the allow-list.
func (p *Policy) AllowedOrigins() []string {
	return slices.Clone(p.allowed)
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin.
// Allow-listed origins and anything mentioning localhost are echoed verbatim;
// everything else, including an empty origin, gets "*".
func (p *Policy) AllowOrigin(origin string) string {
	if origin == "" {
		return "*"
	}
	if slices.Contains(p.allowed, origin) || strings.Contains(origin, "localhost") {
		return origin
	}
	return "*"
}

// Headers returns the full CORS header set for a request from origin.
func (p *Policy) Headers(origin string) http.Header {
	h := make(http.Header, 4)
	h.Set("Access-Control-Allow-Methods", AllowMethods)
	h.Set("Access-Control-Allow-Headers", AllowHeaders)
	h.Set("Access-Control-Max-Age", MaxAge)
	h.Set("Access-Control-Allow-Origin", p.AllowOrigin(origin))
	return h
}
