package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fbz-tec/pgxserve/internal/version"
	"github.com/go-chi/render"
)

const pingTimeout = 2 * time.Second

// HealthHandler reports liveness.
type HealthHandler struct {
	pinger Pinger
}

// NewHealthHandler returns a handler; pinger may be nil when no
// database connection is held.
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Health handles GET /healthz
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: version.AppVersion}
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Database = "down"
			resp.Error = err.Error()
			render.Status(r, http.StatusServiceUnavailable)
		} else {
			resp.Database = "up"
		}
	}
	render.JSON(w, r, resp)
}
