// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/internal/report"
)

// ReportsHandler handles narrative report requests.
type ReportsHandler struct {
	deps Dependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps Dependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// reportRequest mirrors the JSON schema for POST /reports.
type reportRequest struct {
	SubjectID string `json:"subject_id"`
	Period    string `json:"period,omitempty"`
}

type reportResponse struct {
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at"`
	GeneratedAt string `json:"generated_at,omitempty"`
	ArtifactRef string `json:"artifact_ref,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

func toReportResponse(rep model.Report) reportResponse {
	out := reportResponse{
		ID:          rep.ID,
		SubjectID:   rep.SubjectID,
		Status:      string(rep.Status),
		RequestedAt: rep.RequestedAt.UTC().Format(time.RFC3339),
		ArtifactRef: rep.ArtifactRef,
		ErrorDetail: rep.ErrorDetail,
	}
	if !rep.GeneratedAt.IsZero() {
		out.GeneratedAt = rep.GeneratedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// HandleCollection handles POST /reports requests.
func (h *ReportsHandler) HandleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.SubjectID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing subject_id"))
		return
	}
	rep, err := h.deps.RequestReport(r.Context(), req.SubjectID, req.Period)
	if err != nil {
		if rep.Status == model.ReportFailed {
			writeJSON(w, http.StatusBadGateway, toReportResponse(rep))
			return
		}
		writeStoreError(w, err)
		return
	}
	status := http.StatusOK
	if !rep.Status.Terminal() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toReportResponse(rep))
}

// HandleItem handles GET /reports/{id} and GET /reports/{id}/artifact.
func (h *ReportsHandler) HandleItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/reports/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	switch sub {
	case "":
		rep, err := h.deps.GetReport(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toReportResponse(rep))
	case "artifact":
		body, err := h.deps.ReportArtifact(r.Context(), id)
		if err != nil {
			if errors.Is(err, report.ErrNotReady) {
				writeError(w, http.StatusConflict, "conflict", err)
				return
			}
			writeStoreError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		writeError(w, http.StatusNotFound, "not_found", nil)
	}
}
