// Package server exposes liveness, readiness and metrics over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/telhawk-stream/common/httputil"
	"github.com/telhawk-systems/telhawk-stream/common/middleware"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/heartbeat"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/metrics"
	"github.com/telhawk-systems/telhawk-stream/streamer/internal/supervisor"
)

// SessionSource returns the running session, or nil between sessions.
type SessionSource interface {
	Current() *supervisor.Session
}

type healthResponse struct {
	Status  string              `json:"status"`
	Session string              `json:"session,omitempty"`
	Attempt int                 `json:"attempt,omitempty"`
	Heart   *heartbeat.Snapshot `json:"heart,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Handlers serves the health endpoints.
type Handlers struct {
	sessions     SessionSource
	readyTimeout time.Duration
}

// NewHandlers creates Handlers backed by src.
func NewHandlers(src SessionSource) *Handlers {
	return &Handlers{sessions: src, readyTimeout: 2 * time.Second}
}

// Health reports 200 while the current session is starting or running.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "no session"})
		return
	}

	snap := sess.Heart.Snapshot()
	resp := healthResponse{Status: "healthy", Session: sess.ID, Attempt: sess.Attempt, Heart: &snap}
	code := http.StatusOK
	switch snap.State {
	case heartbeat.StateStalled.String(), heartbeat.StateTerminating.String():
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, resp)
}

// Ready reports 200 once the feed is connected and the queue answers.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Current()
	if sess == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()
	if err := sess.Ready(ctx); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "not ready",
			Session: sess.ID,
			Attempt: sess.Attempt,
			Error:   err.Error(),
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ready", Session: sess.ID, Attempt: sess.Attempt})
}

// NewRouter constructs a ServeMux with the health routes registered.
func NewRouter(h *Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /readyz", h.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	observe := func(route string, status int, _ time.Duration) {
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
	return middleware.RequestID(middleware.Instrument(logger, observe)(mux))
}
