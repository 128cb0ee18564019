package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/streamflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. run log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Run events ---

// AppendRunEvent appends an event with a monotonically increasing per-pipeline
// sequence. The sequence read and insert run inside one write transaction so
// concurrent appenders cannot interleave.
func (s *LibSQLStore) AppendRunEvent(ctx context.Context, event *RunEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// In WAL mode BeginTx may start a deferred transaction; force lock
	// acquisition with a write-intent statement before reading the sequence.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("cleanup write lock: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM run_events WHERE pipeline_id = ?`, event.PipelineID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO run_events (pipeline_id, run_id, flow_name, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.PipelineID, nullStr(event.RunID), nullStr(event.FlowName), event.Type,
		nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert run event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run event: %w", err)
	}
	return nil
}

// GetRunEvents returns events for a pipeline with sequence > since, ordered by sequence ASC.
func (s *LibSQLStore) GetRunEvents(ctx context.Context, pipelineID string, since int64) ([]*RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline_id, run_id, flow_name, event_type, payload, timestamp, sequence
		 FROM run_events WHERE pipeline_id = ? AND sequence > ? ORDER BY sequence ASC`,
		pipelineID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRunEvents(rows)
}

// GetRunEventsByType returns events of a given type across pipelines,
// newest first, honoring the filter.
func (s *LibSQLStore) GetRunEventsByType(ctx context.Context, eventType string, filter RunEventFilter) ([]*RunEvent, error) {
	query := `SELECT id, pipeline_id, run_id, flow_name, event_type, payload, timestamp, sequence
		 FROM run_events WHERE event_type = ?`
	args := []any{eventType}

	if filter.PipelineID != "" {
		query += " AND pipeline_id = ?"
		args = append(args, filter.PipelineID)
	}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.FlowName != "" {
		query += " AND flow_name = ?"
		args = append(args, filter.FlowName)
	}
	if filter.Since != nil {
		query += " AND timestamp >= ?"
		args = append(args, *filter.Since)
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRunEvents(rows)
}

func scanRunEvents(rows *sql.Rows) ([]*RunEvent, error) {
	var events []*RunEvent
	for rows.Next() {
		e := &RunEvent{}
		var runID, flowName, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.PipelineID, &runID, &flowName, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.RunID = runID.String
		e.FlowName = flowName.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Health snapshots ---

func (s *LibSQLStore) RecordHealthSnapshot(ctx context.Context, snap *HealthSnapshot) error {
	report := snap.Report
	if len(report) == 0 {
		report = json.RawMessage("{}")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO health_snapshots (status, report, recorded_at) VALUES (?, ?, ?)`,
		string(snap.Status), string(report), timeOrNow(snap.RecordedAt),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListHealthSnapshots(ctx context.Context, filter SnapshotFilter) ([]*HealthSnapshot, error) {
	query := `SELECT id, status, report, recorded_at FROM health_snapshots`
	var conds []string
	var args []any

	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		conds = append(conds, "recorded_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY recorded_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*HealthSnapshot
	for rows.Next() {
		snap := &HealthSnapshot{}
		var status, report string
		if err := rows.Scan(&snap.ID, &status, &report, &snap.RecordedAt); err != nil {
			return nil, err
		}
		snap.Status = schema.HealthStatus(status)
		snap.Report = json.RawMessage(report)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *LibSQLStore) LatestHealthSnapshot(ctx context.Context) (*HealthSnapshot, error) {
	snap := &HealthSnapshot{}
	var status, report string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, report, recorded_at FROM health_snapshots ORDER BY recorded_at DESC, id DESC LIMIT 1`,
	).Scan(&snap.ID, &status, &report, &snap.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("health snapshot", "latest")
	}
	if err != nil {
		return nil, err
	}
	snap.Status = schema.HealthStatus(status)
	snap.Report = json.RawMessage(report)
	return snap, nil
}

// --- Pipeline definitions ---

func (s *LibSQLStore) SavePipeline(ctx context.Context, p *PipelineRecord) error {
	if p.Name == "" {
		return schema.NewError(schema.ErrCodeValidation, "pipeline name is required")
	}
	if len(p.Definition) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "pipeline definition is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipelines (name, description, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(name) DO UPDATE SET
		   description = excluded.description,
		   definition = excluded.definition,
		   updated_at = CURRENT_TIMESTAMP`,
		p.Name, nullStr(p.Description), string(p.Definition), timeOrNow(p.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetPipeline(ctx context.Context, name string) (*PipelineRecord, error) {
	p := &PipelineRecord{}
	var desc sql.NullString
	var def string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, definition, created_at, updated_at FROM pipelines WHERE name = ?`, name,
	).Scan(&p.Name, &desc, &def, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("pipeline", name)
	}
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	p.Definition = json.RawMessage(def)
	return p, nil
}

func (s *LibSQLStore) ListPipelines(ctx context.Context) ([]*PipelineRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, definition, created_at, updated_at FROM pipelines ORDER BY name ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PipelineRecord
	for rows.Next() {
		p := &PipelineRecord{}
		var desc sql.NullString
		var def string
		if err := rows.Scan(&p.Name, &desc, &def, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		p.Definition = json.RawMessage(def)
		records = append(records, p)
	}
	return records, rows.Err()
}

func (s *LibSQLStore) DeletePipeline(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pipelines WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "pipeline", name)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Store = (*LibSQLStore)(nil)
