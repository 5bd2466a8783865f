// Package httputil holds request helpers shared by the API middleware.
package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the address used to key request logs and per-client
// limits. When trustProxy is true the leftmost X-Forwarded-For entry, then
// X-Real-IP, is used if it parses as an IP (an optional port is dropped).
// Otherwise, or if neither header holds an address, the host of RemoteAddr
// is returned. Only enable trustProxy behind a reverse proxy that
// overwrites these headers.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := parseIP(first); ip != "" {
				return ip
			}
		}
		if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseIP normalizes "1.2.3.4", "1.2.3.4:80", "::1" and "[::1]:80" to the
// bare address. Anything else yields "".
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	ip := net.ParseIP(strings.Trim(s, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}
