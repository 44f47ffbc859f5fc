package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/niavasha/greenledger/internal/domain/model"

	_ "modernc.org/sqlite"
)

// schema is applied idempotently on open. Progress events have no UPDATE or
// DELETE path anywhere in this file; the table is append-only by contract.
const schema = `
CREATE TABLE IF NOT EXISTS pledges (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL DEFAULT '',
	department  TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL,
	target      REAL NOT NULL CHECK (target > 0),
	unit        TEXT NOT NULL DEFAULT '',
	start_date  TIMESTAMP NOT NULL,
	end_date    TIMESTAMP,
	status      TEXT NOT NULL,
	sdg_tags    TEXT NOT NULL DEFAULT '',
	notes       TEXT NOT NULL DEFAULT '',
	invalid     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS progress_events (
	event_id    TEXT PRIMARY KEY,
	pledge_id   TEXT NOT NULL REFERENCES pledges(id),
	value       REAL NOT NULL CHECK (value >= 0),
	occurred_at TIMESTAMP NOT NULL,
	author_id   TEXT NOT NULL DEFAULT '',
	note        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_pledge ON progress_events(pledge_id, occurred_at, event_id);

CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	requested_at TIMESTAMP NOT NULL,
	generated_at TIMESTAMP,
	status       TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	artifact_ref TEXT NOT NULL DEFAULT '',
	error_detail TEXT NOT NULL DEFAULT '',
	invalid      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_reports_subject ON reports(subject_id, status);
`

// SQLiteStore implements Store on a SQLite database via the pure-Go
// modernc driver. The compare-and-set on report status is a conditional
// UPDATE checked through RowsAffected, which also holds across processes
// sharing the database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the ledger database at path and
// applies the schema. Use ":memory:" for an ephemeral database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreatePledge(ctx context.Context, p model.Pledge) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pledges(id,owner_id,department,title,target,unit,start_date,end_date,status,sdg_tags,notes,invalid)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,0)`,
		p.ID, p.OwnerID, p.Department, p.Title, p.Target, p.Unit,
		p.StartDate, nullTime(p.EndDate), string(p.Status), strings.Join(p.SDGTags, ","), p.Notes)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("pledge %q: %w", p.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert pledge: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPledge(ctx context.Context, id string) (model.Pledge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,owner_id,department,title,target,unit,start_date,end_date,status,sdg_tags,notes,invalid
		 FROM pledges WHERE id=?`, id)
	return scanPledge(row)
}

func (s *SQLiteStore) ListPledges(ctx context.Context, f PledgeFilter) ([]model.Pledge, error) {
	query := `SELECT id,owner_id,department,title,target,unit,start_date,end_date,status,sdg_tags,notes,invalid
		 FROM pledges WHERE 1=1`
	var args []any
	if !f.IncludeInvalid {
		query += ` AND invalid=0`
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, string(f.Status))
	}
	if f.Department != "" {
		query += ` AND department=?`
		args = append(args, f.Department)
	}
	if f.Unit != "" {
		query += ` AND unit=?`
		args = append(args, f.Unit)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pledges: %w", err)
	}
	defer rows.Close()

	var out []model.Pledge
	for rows.Next() {
		p, err := scanPledgeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdatePledgeStatus(ctx context.Context, id string, next model.PledgeStatus) error {
	current, err := s.GetPledge(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(next) {
		return fmt.Errorf("pledge %q: %s -> %s: %w", id, current.Status, next, ErrIllegalTransition)
	}
	// Guard on the previous status so a concurrent transition cannot be
	// overwritten.
	res, err := s.db.ExecContext(ctx, `UPDATE pledges SET status=? WHERE id=? AND status=?`,
		string(next), id, string(current.Status))
	if err != nil {
		return fmt.Errorf("update pledge status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pledge %q: %w", id, ErrConflict)
	}
	return nil
}

func (s *SQLiteStore) InvalidatePledge(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin invalidate: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE pledges SET invalid=1 WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("invalidate pledge: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pledge %q: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE reports SET invalid=1 WHERE subject_id=?`, id); err != nil {
		return fmt.Errorf("invalidate reports: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, e model.ProgressEvent) error {
	pledge, err := s.GetPledge(ctx, e.PledgeID)
	if err != nil {
		return err
	}
	if pledge.Invalid {
		return fmt.Errorf("pledge %q: %w", e.PledgeID, ErrInvalidated)
	}
	if err := e.Validate(&pledge); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO progress_events(event_id,pledge_id,value,occurred_at,author_id,note) VALUES (?,?,?,?,?,?)`,
		e.EventID, e.PledgeID, e.Value, e.OccurredAt, e.AuthorID, e.Note)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %q: %w", e.EventID, ErrDuplicateEvent)
		}
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EventsByPledge(ctx context.Context, pledgeID string) ([]model.ProgressEvent, error) {
	if _, err := s.GetPledge(ctx, pledgeID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id,pledge_id,value,occurred_at,author_id,note
		 FROM progress_events WHERE pledge_id=? ORDER BY occurred_at, event_id`, pledgeID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.ProgressEvent
	for rows.Next() {
		var e model.ProgressEvent
		if err := rows.Scan(&e.EventID, &e.PledgeID, &e.Value, &e.OccurredAt, &e.AuthorID, &e.Note); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateReport(ctx context.Context, r model.Report) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(id,subject_id,requested_at,generated_at,status,payload_hash,artifact_ref,error_detail,invalid)
		 VALUES (?,?,?,?,?,?,?,?,0)`,
		r.ID, r.SubjectID, r.RequestedAt, nullTime(r.GeneratedAt), string(r.Status), r.PayloadHash, r.ArtifactRef, r.ErrorDetail)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("report %q: %w", r.ID, ErrDuplicateID)
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetReport(ctx context.Context, id string) (model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,subject_id,requested_at,generated_at,status,payload_hash,artifact_ref,error_detail,invalid
		 FROM reports WHERE id=?`, id)
	return scanReport(row)
}

func (s *SQLiteStore) FindReadyReport(ctx context.Context, subjectID, payloadHash string) (model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,subject_id,requested_at,generated_at,status,payload_hash,artifact_ref,error_detail,invalid
		 FROM reports WHERE subject_id=? AND payload_hash=? AND status=? AND invalid=0
		 ORDER BY generated_at DESC LIMIT 1`,
		subjectID, payloadHash, string(model.ReportReady))
	return scanReport(row)
}

func (s *SQLiteStore) FindActiveReport(ctx context.Context, subjectID string) (model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id,subject_id,requested_at,generated_at,status,payload_hash,artifact_ref,error_detail,invalid
		 FROM reports WHERE subject_id=? AND status IN (?,?) AND invalid=0
		 ORDER BY requested_at LIMIT 1`,
		subjectID, string(model.ReportPending), string(model.ReportGenerating))
	return scanReport(row)
}

func (s *SQLiteStore) CASReportStatus(ctx context.Context, id string, from, to model.ReportStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("report %q: %s -> %s: %w", id, from, to, ErrIllegalTransition)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET status=? WHERE id=? AND status=?`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("cas report status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cas report status: %w", err)
	}
	if n == 0 {
		// Distinguish a lost race from a missing record.
		if _, err := s.GetReport(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) SetReportPayloadHash(ctx context.Context, id, payloadHash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET payload_hash=? WHERE id=?`, payloadHash, id)
	if err != nil {
		return fmt.Errorf("set report payload hash: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) CompleteReport(ctx context.Context, id, artifactRef string, generatedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status=?, artifact_ref=?, generated_at=?, error_detail='' WHERE id=? AND status=?`,
		string(model.ReportReady), artifactRef, generatedAt, id, string(model.ReportGenerating))
	if err != nil {
		return fmt.Errorf("complete report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %q: %w", id, ErrConflict)
	}
	return nil
}

func (s *SQLiteStore) FailReport(ctx context.Context, id, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status=?, error_detail=? WHERE id=? AND status=?`,
		string(model.ReportFailed), detail, id, string(model.ReportGenerating))
	if err != nil {
		return fmt.Errorf("fail report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("report %q: %w", id, ErrConflict)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPledge(row *sql.Row) (model.Pledge, error) {
	p, err := scanPledgeFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Pledge{}, fmt.Errorf("pledge: %w", ErrNotFound)
	}
	return p, err
}

func scanPledgeRows(rows *sql.Rows) (model.Pledge, error) {
	return scanPledgeFrom(rows)
}

func scanPledgeFrom(sc rowScanner) (model.Pledge, error) {
	var p model.Pledge
	var end sql.NullTime
	var tags string
	var status string
	var invalid int
	err := sc.Scan(&p.ID, &p.OwnerID, &p.Department, &p.Title, &p.Target, &p.Unit,
		&p.StartDate, &end, &status, &tags, &p.Notes, &invalid)
	if err != nil {
		return model.Pledge{}, err
	}
	if end.Valid {
		p.EndDate = end.Time
	}
	if tags != "" {
		p.SDGTags = strings.Split(tags, ",")
	}
	p.Status = model.PledgeStatus(status)
	p.Invalid = invalid != 0
	return p, nil
}

func scanReport(row *sql.Row) (model.Report, error) {
	var r model.Report
	var generated sql.NullTime
	var status string
	var invalid int
	err := row.Scan(&r.ID, &r.SubjectID, &r.RequestedAt, &generated, &status,
		&r.PayloadHash, &r.ArtifactRef, &r.ErrorDetail, &invalid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, fmt.Errorf("report: %w", ErrNotFound)
	}
	if err != nil {
		return model.Report{}, err
	}
	if generated.Valid {
		r.GeneratedAt = generated.Time
	}
	r.Status = model.ReportStatus(status)
	r.Invalid = invalid != 0
	return r, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
