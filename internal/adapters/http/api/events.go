// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/niavasha/greenledger/internal/domain/model"
)

// EventsHandler accepts progress events for asynchronous intake.
type EventsHandler struct {
	deps Dependencies
}

// NewEventsHandler creates an events handler.
func NewEventsHandler(deps Dependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	occurredAt, _ := time.Parse(time.RFC3339, req.OccurredAt) // validated above

	ack, err := h.deps.LogProgress(r.Context(), model.ProgressEvent{
		EventID:    req.EventID,
		PledgeID:   req.PledgeID,
		Value:      req.Value,
		OccurredAt: occurredAt,
		AuthorID:   req.AuthorID,
		Note:       req.Note,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if !ack.Accepted {
		writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
		return
	}
	if ack.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", EventID: ack.EventID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", EventID: ack.EventID})
}
