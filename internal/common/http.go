package common

import (
	"net/http"
	"strings"
)

// UnknownClient is returned when no proxy header identifies the caller.
const UnknownClient = "unknown"

// ClientIdentifier derives a rate-limit key from proxy headers. The header
// order is fixed: X-Forwarded-For (first hop), CF-Connecting-IP, X-Real-IP.
func ClientIdentifier(h http.Header) string {
	if h == nil {
		return UnknownClient
	}
	if fwd := h.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(h.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if ip := strings.TrimSpace(h.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}
