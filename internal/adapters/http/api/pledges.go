// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/niavasha/greenledger/internal/adapters/ledger"
	"github.com/niavasha/greenledger/internal/domain/model"
)

// PledgesHandler serves the pledge CRUD surface.
type PledgesHandler struct {
	deps Dependencies
}

// NewPledgesHandler creates a pledges handler.
func NewPledgesHandler(deps Dependencies) *PledgesHandler {
	return &PledgesHandler{deps: deps}
}

// HandleCollection handles POST /pledges and GET /pledges.
func (h *PledgesHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	const op = "api.pledges"
	switch r.Method {
	case http.MethodPost:
		var req pledgeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		p, err := req.toModel()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		created, err := h.deps.CreatePledge(r.Context(), p)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		q := r.URL.Query()
		filter := ledger.PledgeFilter{
			Status:     model.PledgeStatus(q.Get("status")),
			Department: q.Get("department"),
			Unit:       q.Get("unit"),
		}
		pledges, err := h.deps.ListPledges(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pledges)

	default:
		http.NotFound(w, r)
	}
}

// HandleItem handles /pledges/{id} and its subresources:
// GET /pledges/{id}, DELETE /pledges/{id} (soft invalidation),
// POST /pledges/{id}/status, GET /pledges/{id}/events,
// GET /pledges/{id}/progress.
func (h *PledgesHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	const op = "api.pledge"
	path := strings.TrimPrefix(r.URL.Path, "/pledges/")
	id, sub, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		p, err := h.deps.GetPledge(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case sub == "" && r.Method == http.MethodDelete:
		if err := h.deps.InvalidatePledge(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})

	case sub == "status" && r.Method == http.MethodPost:
		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		p, err := h.deps.TransitionPledge(r.Context(), id, model.PledgeStatus(req.Status))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case sub == "events" && r.Method == http.MethodGet:
		events, err := h.deps.EventsByPledge(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)

	case sub == "progress" && r.Method == http.MethodGet:
		view, err := h.deps.Progress(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)

	default:
		http.NotFound(w, r)
	}
}
