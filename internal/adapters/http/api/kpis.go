// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/niavasha/greenledger/internal/domain/model"
)

// KPIsHandler handles ad-hoc KPI evaluation requests.
type KPIsHandler struct {
	deps Dependencies
}

// NewKPIsHandler creates a new KPI handler.
func NewKPIsHandler(deps Dependencies) *KPIsHandler {
	return &KPIsHandler{deps: deps}
}

// kpiRequest mirrors the JSON schema for POST /kpis/evaluate.
type kpiRequest struct {
	ID         string             `json:"id,omitempty"`
	Name       string             `json:"name,omitempty"`
	PledgeID   string             `json:"pledge_id,omitempty"`
	PledgeIDs  []string           `json:"pledge_ids,omitempty"`
	Formula    string             `json:"formula"`
	Thresholds []thresholdRequest `json:"thresholds,omitempty"`
}

type thresholdRequest struct {
	Lower float64 `json:"lower"`
	Label string  `json:"label"`
}

func (k kpiRequest) toModel() model.KPI {
	out := model.KPI{
		ID:      k.ID,
		Name:    k.Name,
		Formula: model.Formula(k.Formula),
		Scope: model.KPIScope{
			PledgeID:  k.PledgeID,
			PledgeIDs: k.PledgeIDs,
		},
	}
	for _, t := range k.Thresholds {
		out.Thresholds = append(out.Thresholds, model.Threshold{Lower: t.Lower, Label: t.Label})
	}
	return out
}

// HandleEvaluate handles POST /kpis/evaluate requests.
func (h *KPIsHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	var req kpiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.Formula) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("missing formula"))
		return
	}
	result, err := h.deps.EvaluateKPI(r.Context(), req.toModel())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kpiResponse{
		KPIID: result.KPIID,
		Kind:  string(result.Kind),
		Value: result.Value,
		Label: result.Label,
	})
}

type kpiResponse struct {
	KPIID string  `json:"kpi_id,omitempty"`
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
	Label string  `json:"label,omitempty"`
}
