// Package metrics exposes the process's health and Prometheus endpoints,
// mirroring the teacher's /health and /health/detailed HTTP handlers
// built on net/http and a mutex-guarded status struct.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is a mutex-guarded health snapshot, updated as subsystems come
// online during startup.
type Status struct {
	mu        sync.Mutex
	startedAt time.Time
	ready     map[string]bool
}

// NewStatus creates an empty, not-yet-ready Status.
func NewStatus() *Status {
	return &Status{startedAt: time.Now(), ready: map[string]bool{}}
}

// SetReady marks component as up (or down).
func (s *Status) SetReady(component string, ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready[component] = ready
}

func (s *Status) snapshot() (time.Time, map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.ready))
	for k, v := range s.ready {
		out[k] = v
	}
	return s.startedAt, out
}

// Handler builds the /health, /health/detailed, and /metrics mux this
// system exposes alongside the websocket listener.
func Handler(reg *prometheus.Registry, status *Status) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/health/detailed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		startedAt, components := status.snapshot()
		json.NewEncoder(w).Encode(map[string]any{
			"uptimeSeconds": time.Since(startedAt).Seconds(),
			"components":    components,
		})
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
