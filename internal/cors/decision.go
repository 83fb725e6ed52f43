package cors

import (
	"net/http"
	"strings"
)

// Response and request header names used by the policy.
const (
	HeaderOrigin                        = "Origin"
	HeaderVary                          = "Vary"
	HeaderAccessControlRequestMethod    = "Access-Control-Request-Method"
	HeaderAccessControlRequestHeaders   = "Access-Control-Request-Headers"
	HeaderAccessControlAllowOrigin      = "Access-Control-Allow-Origin"
	HeaderAccessControlAllowMethods     = "Access-Control-Allow-Methods"
	HeaderAccessControlAllowHeaders     = "Access-Control-Allow-Headers"
	HeaderAccessControlAllowCredentials = "Access-Control-Allow-Credentials"
	HeaderAccessControlExposeHeaders    = "Access-Control-Expose-Headers"
	HeaderAccessControlMaxAge           = "Access-Control-Max-Age"
)

// Outcome is the verdict of a policy on one request.
type Outcome uint8

const (
	// NoOp means the policy does not apply: no CORS headers are added.
	NoOp Outcome = iota
	// Allowed means the cross-origin request is honoured.
	Allowed
	// Denied means no CORS headers are emitted and the browser blocks the
	// response. It is an expected outcome, not an error.
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "noop"
	}
}

// Denial reasons.
const (
	DeniedOrigin  = "origin"
	DeniedMethod  = "method"
	DeniedHeaders = "headers"
)

// Decision is the result of evaluating a request against a policy.
type Decision struct {
	Outcome   Outcome
	Preflight bool
	// Reason names the failed check on a denial.
	Reason string
	// Pattern is the origin pattern that matched, if any.
	Pattern string
	// Header holds the headers to add to the response.
	Header http.Header
}

// Kind is "preflight" or "actual".
func (d Decision) Kind() string {
	if d.Preflight {
		return "preflight"
	}
	return "actual"
}

// Apply copies the decision's headers onto h. Vary values are merged
// with those already present.
func (d Decision) Apply(h http.Header) {
	for key, values := range d.Header {
		if key == HeaderVary {
			for _, v := range values {
				addVary(h, v)
			}
			continue
		}
		h[key] = append([]string(nil), values...)
	}
}

func addVary(h http.Header, value string) {
	for _, existing := range h.Values(HeaderVary) {
		for _, token := range strings.Split(existing, ",") {
			token = strings.TrimSpace(token)
			if token == "*" || strings.EqualFold(token, value) {
				return
			}
		}
	}
	h.Add(HeaderVary, value)
}
