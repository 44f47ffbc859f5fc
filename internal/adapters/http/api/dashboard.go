// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
)

// DashboardHandler handles aggregate snapshot requests.
type DashboardHandler struct {
	deps Dependencies
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(deps Dependencies) *DashboardHandler {
	return &DashboardHandler{deps: deps}
}

// HandleDashboard handles GET /dashboard requests.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	snap, err := h.deps.Dashboard(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
