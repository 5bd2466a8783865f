package health

import (
	"net/http"
	"sync/atomic"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Readiness tracks whether the service should receive traffic. It starts
// ready and is cleared when shutdown begins so load balancers drain first.
type Readiness struct {
	draining atomic.Bool
}

// SetDraining marks the service as shutting down.
func (r *Readiness) SetDraining() {
	r.draining.Store(true)
}

// Ready reports whether the service accepts traffic.
func (r *Readiness) Ready() bool {
	return !r.draining.Load()
}

// Readyz returns 200 "ready\n", or 503 once draining.
func (r *Readiness) Readyz(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if !r.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("draining\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
