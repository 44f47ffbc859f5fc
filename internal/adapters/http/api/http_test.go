package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/niavasha/greenledger/internal/adapters/ledger"
	"github.com/niavasha/greenledger/internal/domain/dashboard"
	"github.com/niavasha/greenledger/internal/domain/kpi"
	"github.com/niavasha/greenledger/internal/domain/model"
	"github.com/niavasha/greenledger/internal/domain/types"
	"github.com/niavasha/greenledger/internal/report"
)

// mockDependencies implements Dependencies with canned responses.
type mockDependencies struct {
	pledges   map[string]model.Pledge
	ack       types.IntakeAck
	ackErr    error
	view      types.ProgressView
	snapshot  dashboard.Snapshot
	kpiResult kpi.Result
	kpiErr    error
	report    model.Report
	reportErr error
	artifact  []byte
	artErr    error
}

func (m *mockDependencies) CreatePledge(ctx context.Context, p model.Pledge) (model.Pledge, error) {
	if err := p.Validate(); err != nil {
		return model.Pledge{}, err
	}
	if p.ID == "" {
		p.ID = "pledge-generated"
	}
	if m.pledges == nil {
		m.pledges = make(map[string]model.Pledge)
	}
	if _, ok := m.pledges[p.ID]; ok {
		return model.Pledge{}, ledger.ErrDuplicateID
	}
	m.pledges[p.ID] = p
	return p, nil
}

func (m *mockDependencies) GetPledge(ctx context.Context, id string) (model.Pledge, error) {
	p, ok := m.pledges[id]
	if !ok {
		return model.Pledge{}, ledger.ErrNotFound
	}
	return p, nil
}

func (m *mockDependencies) ListPledges(ctx context.Context, f ledger.PledgeFilter) ([]model.Pledge, error) {
	out := make([]model.Pledge, 0, len(m.pledges))
	for _, p := range m.pledges {
		out = append(out, p)
	}
	return out, nil
}

func (m *mockDependencies) TransitionPledge(ctx context.Context, id string, to model.PledgeStatus) (model.Pledge, error) {
	p, ok := m.pledges[id]
	if !ok {
		return model.Pledge{}, ledger.ErrNotFound
	}
	if !p.Status.CanTransitionTo(to) {
		return model.Pledge{}, ledger.ErrIllegalTransition
	}
	p.Status = to
	m.pledges[id] = p
	return p, nil
}

func (m *mockDependencies) InvalidatePledge(ctx context.Context, id string) error {
	if _, ok := m.pledges[id]; !ok {
		return ledger.ErrNotFound
	}
	return nil
}

func (m *mockDependencies) LogProgress(ctx context.Context, e model.ProgressEvent) (types.IntakeAck, error) {
	return m.ack, m.ackErr
}

func (m *mockDependencies) EventsByPledge(ctx context.Context, pledgeID string) ([]model.ProgressEvent, error) {
	if _, ok := m.pledges[pledgeID]; !ok {
		return nil, ledger.ErrNotFound
	}
	return nil, nil
}

func (m *mockDependencies) Progress(ctx context.Context, pledgeID string) (types.ProgressView, error) {
	if _, ok := m.pledges[pledgeID]; !ok {
		return types.ProgressView{}, ledger.ErrNotFound
	}
	return m.view, nil
}

func (m *mockDependencies) Dashboard(ctx context.Context) (dashboard.Snapshot, error) {
	return m.snapshot, nil
}

func (m *mockDependencies) EvaluateKPI(ctx context.Context, k model.KPI) (kpi.Result, error) {
	return m.kpiResult, m.kpiErr
}

func (m *mockDependencies) RequestReport(ctx context.Context, subjectID, period string) (model.Report, error) {
	return m.report, m.reportErr
}

func (m *mockDependencies) GetReport(ctx context.Context, id string) (model.Report, error) {
	if m.report.ID != id {
		return model.Report{}, ledger.ErrNotFound
	}
	return m.report, m.reportErr
}

func (m *mockDependencies) ReportArtifact(ctx context.Context, id string) ([]byte, error) {
	return m.artifact, m.artErr
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) Stats() map[string]interface{} {
	return m.stats
}

func newTestMux(deps *mockDependencies) *http.ServeMux {
	server := NewServer(deps, &mockStatsProvider{stats: map[string]interface{}{"started": true}})
	mux := http.NewServeMux()
	server.Register(context.Background(), mux)
	return mux
}

func validPledgeBody() string {
	return `{"owner_id":"user-1","title":"Cut paper waste","target":100,"unit":"kg","start_date":"2025-01-01T00:00:00Z"}`
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockDependencies{ack: types.IntakeAck{EventID: "evt-1", Accepted: true}}
		mux := newTestMux(deps)

		Convey("healthz serves the metrics registry", func() {
			req := httptest.NewRequest("GET", "/healthz", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("stats returns the provider payload", func() {
			req := httptest.NewRequest("GET", "/stats", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "started")
		})

		Convey("dashboard returns a JSON snapshot", func() {
			req := httptest.NewRequest("GET", "/dashboard", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "application/json")
		})

		Convey("unknown paths fall through to 404", func() {
			req := httptest.NewRequest("GET", "/nope", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestPledgesHandler(t *testing.T) {
	Convey("Given the pledges routes", t, func() {
		deps := &mockDependencies{}
		mux := newTestMux(deps)

		Convey("POST /pledges creates a pledge", func() {
			req := httptest.NewRequest("POST", "/pledges", strings.NewReader(validPledgeBody()))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusCreated)

			var created model.Pledge
			So(json.Unmarshal(w.Body.Bytes(), &created), ShouldBeNil)
			So(created.ID, ShouldNotBeEmpty)

			Convey("and GET /pledges/{id} returns it", func() {
				req := httptest.NewRequest("GET", "/pledges/"+created.ID, nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
			})

			Convey("and GET /pledges lists it", func() {
				req := httptest.NewRequest("GET", "/pledges", nil)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, created.ID)
			})
		})

		Convey("POST /pledges with a missing title is rejected", func() {
			body := `{"owner_id":"user-1","target":100,"unit":"kg","start_date":"2025-01-01T00:00:00Z"}`
			req := httptest.NewRequest("POST", "/pledges", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /pledges with a bad date is rejected", func() {
			body := `{"owner_id":"user-1","title":"t","target":100,"unit":"kg","start_date":"yesterday"}`
			req := httptest.NewRequest("POST", "/pledges", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "start_date")
		})

		Convey("GET /pledges/{id} for an unknown id is 404", func() {
			req := httptest.NewRequest("GET", "/pledges/ghost", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("POST /pledges/{id}/status with an illegal transition is 409", func() {
			deps.pledges = map[string]model.Pledge{
				"p1": {ID: "p1", Status: model.PledgeCompleted},
			}
			req := httptest.NewRequest("POST", "/pledges/p1/status", strings.NewReader(`{"status":"active"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})

		Convey("GET /pledges/{id}/progress returns the view", func() {
			deps.pledges = map[string]model.Pledge{"p1": {ID: "p1"}}
			deps.view = types.ProgressView{PledgeID: "p1", CompletionRatio: 0.4, Label: "at-risk"}
			req := httptest.NewRequest("GET", "/pledges/p1/progress", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "at-risk")
		})
	})
}

func TestEventsHandler(t *testing.T) {
	Convey("Given the events route", t, func() {
		validBody := `{"pledge_id":"p1","value":5,"occurred_at":"2025-02-01T00:00:00Z","author_id":"u1"}`

		Convey("an accepted event returns 202 with its id", func() {
			deps := &mockDependencies{ack: types.IntakeAck{EventID: "evt-1", Accepted: true}}
			mux := newTestMux(deps)
			req := httptest.NewRequest("POST", "/events", strings.NewReader(validBody))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(w.Body.String(), ShouldContainSubstring, "evt-1")
		})

		Convey("a duplicate replay returns 200", func() {
			deps := &mockDependencies{ack: types.IntakeAck{EventID: "evt-1", Accepted: true, Duplicate: true}}
			mux := newTestMux(deps)
			req := httptest.NewRequest("POST", "/events", strings.NewReader(validBody))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "duplicate")
		})

		Convey("a full queue returns 429", func() {
			deps := &mockDependencies{ack: types.IntakeAck{Accepted: false}}
			mux := newTestMux(deps)
			req := httptest.NewRequest("POST", "/events", strings.NewReader(validBody))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("a malformed body returns 400", func() {
			deps := &mockDependencies{}
			mux := newTestMux(deps)
			req := httptest.NewRequest("POST", "/events", strings.NewReader(`{`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("a body without pledge_id returns 400", func() {
			deps := &mockDependencies{}
			mux := newTestMux(deps)
			body := `{"value":5,"occurred_at":"2025-02-01T00:00:00Z","author_id":"u1"}`
			req := httptest.NewRequest("POST", "/events", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(w.Body.String(), ShouldContainSubstring, "pledge_id")
		})
	})
}

func TestKPIsHandler(t *testing.T) {
	Convey("Given the KPI evaluation route", t, func() {
		Convey("a valid request returns the result", func() {
			deps := &mockDependencies{
				kpiResult: kpi.Result{KPIID: "k1", Kind: kpi.KindValue, Value: 0.75, Label: "at-risk"},
			}
			mux := newTestMux(deps)
			body := `{"id":"k1","pledge_id":"p1","formula":"completion-ratio"}`
			req := httptest.NewRequest("POST", "/kpis/evaluate", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp kpiResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Kind, ShouldEqual, "value")
			So(resp.Value, ShouldEqual, 0.75)
			So(resp.Label, ShouldEqual, "at-risk")
		})

		Convey("an unknown formula returns 400", func() {
			deps := &mockDependencies{kpiErr: kpi.ErrUnknownFormula}
			mux := newTestMux(deps)
			body := `{"pledge_id":"p1","formula":"mystery"}`
			req := httptest.NewRequest("POST", "/kpis/evaluate", strings.NewReader(body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("a missing formula returns 400 before hitting the service", func() {
			deps := &mockDependencies{}
			mux := newTestMux(deps)
			req := httptest.NewRequest("POST", "/kpis/evaluate", strings.NewReader(`{"pledge_id":"p1"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestReportsHandler(t *testing.T) {
	Convey("Given the reports routes", t, func() {
		now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

		Convey("POST /reports for a finished report returns 200", func() {
			deps := &mockDependencies{
				report: model.Report{ID: "r1", SubjectID: "p1", Status: model.ReportReady, RequestedAt: now, GeneratedAt: now},
			}
			mux := newTestMux(deps)
			req := httptest.NewRequest("POST", "/reports", strings.NewReader(`{"subject_id":"p1"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"ready"`)
		})

		Convey("POST /reports without subject_id returns 400", func() {
			mux := newTestMux(&mockDependencies{})
			req := httptest.NewRequest("POST", "/reports", strings.NewReader(`{}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /reports surfacing a failed generation returns 502", func() {
			deps := &mockDependencies{
				report:    model.Report{ID: "r1", SubjectID: "p1", Status: model.ReportFailed, RequestedAt: now, ErrorDetail: "narrative service unavailable"},
				reportErr: report.ErrEmptyNarrative,
			}
			mux := newTestMux(deps)
			req := httptest.NewRequest("POST", "/reports", strings.NewReader(`{"subject_id":"p1"}`))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusBadGateway)
			So(w.Body.String(), ShouldContainSubstring, "narrative service unavailable")
		})

		Convey("GET /reports/{id} returns the report", func() {
			deps := &mockDependencies{
				report: model.Report{ID: "r1", SubjectID: "p1", Status: model.ReportPending, RequestedAt: now},
			}
			mux := newTestMux(deps)
			req := httptest.NewRequest("GET", "/reports/r1", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"status":"pending"`)
		})

		Convey("GET /reports/{id}/artifact serves HTML", func() {
			deps := &mockDependencies{artifact: []byte("<html>ok</html>")}
			mux := newTestMux(deps)
			req := httptest.NewRequest("GET", "/reports/r1/artifact", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "ok")
		})

		Convey("GET /reports/{id}/artifact before ready returns 409", func() {
			deps := &mockDependencies{artErr: report.ErrNotReady}
			mux := newTestMux(deps)
			req := httptest.NewRequest("GET", "/reports/r1/artifact", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusConflict)
		})
	})
}

func TestEventRequest_Validate(t *testing.T) {
	Convey("Given an event request", t, func() {
		valid := eventRequest{
			PledgeID:   "p1",
			Value:      5,
			OccurredAt: "2025-02-01T00:00:00Z",
			AuthorID:   "u1",
		}

		Convey("a complete request validates", func() {
			So(valid.validate(), ShouldBeNil)
		})

		Convey("a blank pledge id fails", func() {
			r := valid
			r.PledgeID = "  "
			err := r.validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "pledge_id")
		})

		Convey("a missing author fails", func() {
			r := valid
			r.AuthorID = ""
			So(r.validate(), ShouldNotBeNil)
		})

		Convey("a non-RFC3339 timestamp fails", func() {
			r := valid
			r.OccurredAt = "02/01/2025"
			err := r.validate()
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "occurred_at")
		})
	})
}

func TestPledgeRequest_ToModel(t *testing.T) {
	Convey("Given a pledge request", t, func() {
		Convey("dates parse as RFC3339", func() {
			req := pledgeRequest{
				OwnerID:   "u1",
				Title:     "t",
				Target:    10,
				Unit:      "kg",
				StartDate: "2025-01-01T00:00:00Z",
				EndDate:   "2025-06-01T00:00:00Z",
			}
			p, err := req.toModel()
			So(err, ShouldBeNil)
			So(p.StartDate.Year(), ShouldEqual, 2025)
			So(p.EndDate.Month(), ShouldEqual, time.June)
		})

		Convey("a missing start date fails", func() {
			req := pledgeRequest{OwnerID: "u1", Title: "t", Target: 10, Unit: "kg"}
			_, err := req.toModel()
			So(err, ShouldNotBeNil)
		})
	})
}
