package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/niavasha/greenledger/internal/domain/model"
)

// MemoryStore implements Store with in-process maps guarded by a single
// mutex. It backs tests and single-node deployments; the compare-and-set
// semantics match the durable implementations exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	pledges map[string]model.Pledge
	events  map[string][]model.ProgressEvent // pledge id -> ordered events
	eventID map[string]struct{}
	reports map[string]model.Report
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pledges: make(map[string]model.Pledge),
		events:  make(map[string][]model.ProgressEvent),
		eventID: make(map[string]struct{}),
		reports: make(map[string]model.Report),
	}
}

func (s *MemoryStore) CreatePledge(_ context.Context, p model.Pledge) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pledges[p.ID]; ok {
		return fmt.Errorf("pledge %q: %w", p.ID, ErrDuplicateID)
	}
	s.pledges[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPledge(_ context.Context, id string) (model.Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pledges[id]
	if !ok {
		return model.Pledge{}, fmt.Errorf("pledge %q: %w", id, ErrNotFound)
	}
	return p, nil
}

func (s *MemoryStore) ListPledges(_ context.Context, f PledgeFilter) ([]model.Pledge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Pledge, 0, len(s.pledges))
	for _, p := range s.pledges {
		if !matchPledge(&p, f) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchPledge(p *model.Pledge, f PledgeFilter) bool {
	if p.Invalid && !f.IncludeInvalid {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Department != "" && p.Department != f.Department {
		return false
	}
	if f.Unit != "" && p.Unit != f.Unit {
		return false
	}
	return true
}

func (s *MemoryStore) UpdatePledgeStatus(_ context.Context, id string, next model.PledgeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pledges[id]
	if !ok {
		return fmt.Errorf("pledge %q: %w", id, ErrNotFound)
	}
	if !p.Status.CanTransitionTo(next) {
		return fmt.Errorf("pledge %q: %s -> %s: %w", id, p.Status, next, ErrIllegalTransition)
	}
	p.Status = next
	s.pledges[id] = p
	return nil
}

func (s *MemoryStore) InvalidatePledge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pledges[id]
	if !ok {
		return fmt.Errorf("pledge %q: %w", id, ErrNotFound)
	}
	p.Invalid = true
	s.pledges[id] = p
	for _, r := range s.reports {
		if r.SubjectID == id {
			r.Invalid = true
			s.reports[r.ID] = r
		}
	}
	// Events stay stored under the invalidated pledge; readers filter on
	// the pledge's Invalid mark, so nothing is orphaned.
	return nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e model.ProgressEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pledges[e.PledgeID]
	if !ok {
		return fmt.Errorf("pledge %q: %w", e.PledgeID, ErrNotFound)
	}
	if p.Invalid {
		return fmt.Errorf("pledge %q: %w", e.PledgeID, ErrInvalidated)
	}
	if err := e.Validate(&p); err != nil {
		return err
	}
	if _, seen := s.eventID[e.EventID]; seen {
		return fmt.Errorf("event %q: %w", e.EventID, ErrDuplicateEvent)
	}
	s.eventID[e.EventID] = struct{}{}

	events := s.events[e.PledgeID]
	events = append(events, e)
	sort.Slice(events, func(i, j int) bool {
		if !events[i].OccurredAt.Equal(events[j].OccurredAt) {
			return events[i].OccurredAt.Before(events[j].OccurredAt)
		}
		return events[i].EventID < events[j].EventID
	})
	s.events[e.PledgeID] = events
	return nil
}

func (s *MemoryStore) EventsByPledge(_ context.Context, pledgeID string) ([]model.ProgressEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.pledges[pledgeID]; !ok {
		return nil, fmt.Errorf("pledge %q: %w", pledgeID, ErrNotFound)
	}
	events := s.events[pledgeID]
	out := make([]model.ProgressEvent, len(events))
	copy(out, events)
	return out, nil
}

func (s *MemoryStore) CreateReport(_ context.Context, r model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; ok {
		return fmt.Errorf("report %q: %w", r.ID, ErrDuplicateID)
	}
	s.reports[r.ID] = r
	return nil
}

func (s *MemoryStore) GetReport(_ context.Context, id string) (model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return model.Report{}, fmt.Errorf("report %q: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryStore) FindReadyReport(_ context.Context, subjectID, payloadHash string) (model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best model.Report
	var found bool
	for _, r := range s.reports {
		if r.Invalid || r.SubjectID != subjectID || r.Status != model.ReportReady || r.PayloadHash != payloadHash {
			continue
		}
		if !found || r.GeneratedAt.After(best.GeneratedAt) {
			best = r
			found = true
		}
	}
	if !found {
		return model.Report{}, fmt.Errorf("ready report for %q: %w", subjectID, ErrNotFound)
	}
	return best, nil
}

func (s *MemoryStore) FindActiveReport(_ context.Context, subjectID string) (model.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reports {
		if r.Invalid || r.SubjectID != subjectID {
			continue
		}
		if r.Status == model.ReportPending || r.Status == model.ReportGenerating {
			return r, nil
		}
	}
	return model.Report{}, fmt.Errorf("active report for %q: %w", subjectID, ErrNotFound)
}

func (s *MemoryStore) CASReportStatus(_ context.Context, id string, from, to model.ReportStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return false, fmt.Errorf("report %q: %w", id, ErrNotFound)
	}
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("report %q: %s -> %s: %w", id, from, to, ErrIllegalTransition)
	}
	if r.Status != from {
		return false, nil
	}
	r.Status = to
	s.reports[id] = r
	return true, nil
}

func (s *MemoryStore) SetReportPayloadHash(_ context.Context, id, payloadHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("report %q: %w", id, ErrNotFound)
	}
	r.PayloadHash = payloadHash
	s.reports[id] = r
	return nil
}

func (s *MemoryStore) CompleteReport(_ context.Context, id, artifactRef string, generatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("report %q: %w", id, ErrNotFound)
	}
	if r.Status != model.ReportGenerating {
		return fmt.Errorf("report %q in %s: %w", id, r.Status, ErrConflict)
	}
	r.Status = model.ReportReady
	r.ArtifactRef = artifactRef
	r.GeneratedAt = generatedAt
	r.ErrorDetail = ""
	s.reports[id] = r
	return nil
}

func (s *MemoryStore) FailReport(_ context.Context, id, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return fmt.Errorf("report %q: %w", id, ErrNotFound)
	}
	if r.Status != model.ReportGenerating {
		return fmt.Errorf("report %q in %s: %w", id, r.Status, ErrConflict)
	}
	r.Status = model.ReportFailed
	r.ErrorDetail = detail
	s.reports[id] = r
	return nil
}
