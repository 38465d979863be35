// Package handler exposes readiness/liveness for Kubernetes, load balancers, and CI.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is anything that can report storage connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler reports service health. A nil pinger means no storage is wired and
// the service is considered healthy on its own.
type Handler struct {
	pinger Pinger
}

// NewHandler returns a health Handler over the given pinger. pinger may be nil.
func NewHandler(pinger Pinger) *Handler {
	return &Handler{pinger: pinger}
}

// ServeHTTP answers 200 with {"status":"ok"} when healthy and 503 with
// {"status":"unavailable"} when the storage ping fails.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.PingContext(ctx); err != nil {
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
