package api

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/lorenzopantano/orbvision/internal/httputil"
)

const (
	defaultMaxInflightPerIP = 4
	defaultMaxInflightTotal = 256
)

// inflightLimiter tracks in-flight catalog requests per client IP and globally.
type inflightLimiter struct {
	mu       sync.Mutex
	requests map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

func newInflightLimiter(maxPerIP, maxTotal int) *inflightLimiter {
	if maxPerIP < 1 {
		maxPerIP = defaultMaxInflightPerIP
	}
	if maxTotal < 1 {
		maxTotal = defaultMaxInflightTotal
	}
	return &inflightLimiter{
		requests: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// acquire attempts to register a new request for the given IP.
// Returns false if the IP or global limit has been reached.
func (l *inflightLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return false
	}
	if l.requests[ip] >= l.maxPerIP {
		return false
	}

	l.requests[ip]++
	l.total++
	return true
}

// release decrements the request count for the given IP.
func (l *inflightLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requests[ip]--
	l.total--
	if l.requests[ip] <= 0 {
		delete(l.requests, ip)
	}
}

// count returns the number of in-flight requests for the given IP.
func (l *inflightLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests[ip]
}

// limited reports whether path may reach the upstream catalog.
func limited(path string) bool {
	return strings.HasPrefix(path, "/api/v1/gp") && path != "/api/v1/gp/vocabulary"
}

// limitMiddleware answers 429 when a client already has too many catalog
// requests in flight.
func limitMiddleware(l *inflightLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limited(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			ip := httputil.ClientIP(r, trustProxy)
			if !l.acquire(ip) {
				logger.WarnContext(r.Context(), "too many in-flight requests",
					"component", "api",
					"remote_ip", ip,
					"in_flight", l.count(ip),
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "too many concurrent requests")
				return
			}
			defer l.release(ip)

			next.ServeHTTP(w, r)
		})
	}
}
