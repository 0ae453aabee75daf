package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP determines the caller address, trusting proxy headers only
// when they carry a parseable IP.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if raw := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); raw != "" {
		candidate := strings.TrimSpace(strings.Split(raw, ",")[0])
		if net.ParseIP(candidate) != nil {
			return candidate
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
