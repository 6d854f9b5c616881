package handler

import (
	"net/http"
)

// handleHealth reports liveness, the build version and which integrations
// came up. A disabled integration does not make the service unhealthy.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	integrations := h.opts.Integrations
	if integrations == nil {
		integrations = map[string]bool{}
	}
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Version:      h.opts.Version,
		Integrations: integrations,
	})
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status       string          `json:"status"`
	Version      string          `json:"version,omitempty"`
	Integrations map[string]bool `json:"integrations"`
}
