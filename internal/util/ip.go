package util

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address of the calling client, preferring the
// headers set by reverse proxies over the connection's remote address.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" && ip != "unknown" {
		return ip
	}

	// client, proxy1, proxy2, ...
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" && ip != "unknown" {
			return ip
		}
	}

	if forwarded := r.Header.Get("Forwarded"); forwarded != "" {
		if ip := forwardedFor(forwarded); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// forwardedFor extracts the first for= node of an RFC 7239 header
func forwardedFor(header string) string {
	element, _, _ := strings.Cut(header, ",")
	for _, pair := range strings.Split(element, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || !strings.EqualFold(key, "for") {
			continue
		}
		value = strings.Trim(value, `"`)

		// [2001:db8:cafe::17]:4711
		if strings.HasPrefix(value, "[") {
			if i := strings.Index(value, "]"); i > 0 {
				return value[1:i]
			}
			return ""
		}
		if host, _, err := net.SplitHostPort(value); err == nil {
			return host
		}
		return value
	}
	return ""
}
