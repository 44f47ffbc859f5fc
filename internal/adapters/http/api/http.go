// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/niavasha/greenledger/internal/adapters/ledger"
	"github.com/niavasha/greenledger/internal/domain/dashboard"
	"github.com/niavasha/greenledger/internal/domain/kpi"
	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/internal/domain/types"
)

// Dependencies bundles the service operations the handlers call.
// Keeping it an interface keeps this layer loosely coupled to the
// service implementation.
type Dependencies interface {
	CreatePledge(ctx context.Context, p model.Pledge) (model.Pledge, error)
	GetPledge(ctx context.Context, id string) (model.Pledge, error)
	ListPledges(ctx context.Context, f ledger.PledgeFilter) ([]model.Pledge, error)
	TransitionPledge(ctx context.Context, id string, to model.PledgeStatus) (model.Pledge, error)
	InvalidatePledge(ctx context.Context, id string) error

	LogProgress(ctx context.Context, e model.ProgressEvent) (types.IntakeAck, error)
	EventsByPledge(ctx context.Context, pledgeID string) ([]model.ProgressEvent, error)
	Progress(ctx context.Context, pledgeID string) (types.ProgressView, error)

	Dashboard(ctx context.Context) (dashboard.Snapshot, error)
	EvaluateKPI(ctx context.Context, k model.KPI) (kpi.Result, error)

	RequestReport(ctx context.Context, subjectID, period string) (model.Report, error)
	GetReport(ctx context.Context, id string) (model.Report, error)
	ReportArtifact(ctx context.Context, id string) ([]byte, error)
}

// StatsProvider exposes service counters for monitoring.
type StatsProvider interface {
	Stats() map[string]interface{}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	pledgesHandler   *PledgesHandler
	eventsHandler    *EventsHandler
	dashboardHandler *DashboardHandler
	kpisHandler      *KPIsHandler
	reportsHandler   *ReportsHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(statsProvider),
		pledgesHandler:   NewPledgesHandler(deps),
		eventsHandler:    NewEventsHandler(deps),
		dashboardHandler: NewDashboardHandler(deps),
		kpisHandler:      NewKPIsHandler(deps),
		reportsHandler:   NewReportsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/dashboard", MetricsMiddleware(s.dashboardHandler.HandleDashboard, "dashboard"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/kpis/evaluate", MetricsMiddleware(s.kpisHandler.HandleEvaluate, "kpis"))
	mux.HandleFunc("/pledges", MetricsMiddleware(s.pledgesHandler.HandleCollection, "pledges"))
	mux.HandleFunc("/pledges/", MetricsMiddleware(s.pledgesHandler.HandleItem, "pledges"))
	mux.HandleFunc("/reports", MetricsMiddleware(s.reportsHandler.HandleCollection, "reports"))
	mux.HandleFunc("/reports/", MetricsMiddleware(s.reportsHandler.HandleItem, "reports"))
}

// pledgeRequest mirrors the JSON schema for POST /pledges.
type pledgeRequest struct {
	ID         string   `json:"id,omitempty"`
	OwnerID    string   `json:"owner_id"`
	Department string   `json:"department,omitempty"`
	Title      string   `json:"title"`
	Target     float64  `json:"target"`
	Unit       string   `json:"unit"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date,omitempty"`
	Status     string   `json:"status,omitempty"`
	SDGTags    []string `json:"sdg_tags,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

func (p pledgeRequest) toModel() (model.Pledge, error) {
	out := model.Pledge{
		ID:         p.ID,
		OwnerID:    p.OwnerID,
		Department: p.Department,
		Title:      p.Title,
		Target:     p.Target,
		Unit:       p.Unit,
		Status:     model.PledgeStatus(p.Status),
		SDGTags:    p.SDGTags,
		Notes:      p.Notes,
	}
	if strings.TrimSpace(p.StartDate) == "" {
		return model.Pledge{}, errors.New("missing start_date")
	}
	start, err := time.Parse(time.RFC3339, p.StartDate)
	if err != nil {
		return model.Pledge{}, errors.New("invalid start_date; must be RFC3339")
	}
	out.StartDate = start
	if p.EndDate != "" {
		end, err := time.Parse(time.RFC3339, p.EndDate)
		if err != nil {
			return model.Pledge{}, errors.New("invalid end_date; must be RFC3339")
		}
		out.EndDate = end
	}
	return out, nil
}

// eventRequest mirrors the JSON schema for POST /events.
type eventRequest struct {
	EventID    string  `json:"event_id,omitempty"`
	PledgeID   string  `json:"pledge_id"`
	Value      float64 `json:"value"`
	OccurredAt string  `json:"occurred_at"`
	AuthorID   string  `json:"author_id"`
	Note       string  `json:"note,omitempty"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.PledgeID) == "":
		return errors.New("missing pledge_id")
	case strings.TrimSpace(e.AuthorID) == "":
		return errors.New("missing author_id")
	case strings.TrimSpace(e.OccurredAt) == "":
		return errors.New("missing occurred_at")
	}
	if _, err := time.Parse(time.RFC3339, e.OccurredAt); err != nil {
		return errors.New("invalid occurred_at; must be RFC3339")
	}
	return nil
}

type ackResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeStoreError translates ledger and validation errors to status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, ledger.ErrDuplicateID):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, ledger.ErrIllegalTransition), errors.Is(err, ledger.ErrInvalidated):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, model.ErrMissingTitle),
		errors.Is(err, model.ErrNonPositiveTarget),
		errors.Is(err, model.ErrEndBeforeStart),
		errors.Is(err, model.ErrEmptyThresholds),
		errors.Is(err, model.ErrUnorderedThresholds),
		errors.Is(err, model.ErrUnlabeledThreshold),
		errors.Is(err, kpi.ErrUnknownFormula),
		errors.Is(err, kpi.ErrEmptyScope):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
