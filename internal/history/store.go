// Package history keeps the append-only record of every plan the tool has
// produced: what was asked, what was planned, what actually ran, and which
// snapshot protects it. Records are inserted once and never touched again;
// there is no update or delete path.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"drift/internal/executor"
	"drift/internal/logging"
	"drift/internal/plan"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("record not found")

// Record is one history entry.
type Record struct {
	ID         int64                       `json:"id"`
	CreatedAt  time.Time                   `json:"created_at"`
	Query      string                      `json:"query"`
	Plan       plan.Plan                   `json:"plan"`
	Executed   bool                        `json:"executed"`
	Blocked    bool                        `json:"blocked"`
	Results    []*executor.ExecutionResult `json:"results,omitempty"`
	SnapshotID string                      `json:"snapshot_id,omitempty"`
}

// Store persists records in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open initializes the history database at the given path, creating the
// directory and schema as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One connection: sqlite has a single writer anyway, and :memory:
	// databases exist per connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.HistoryDebug("history store open: %s", path)
	return s, nil
}

// initialize creates the schema.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		query TEXT NOT NULL,
		plan_json TEXT NOT NULL,
		executed INTEGER NOT NULL DEFAULT 0,
		blocked INTEGER NOT NULL DEFAULT 0,
		results_json TEXT,
		snapshot_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_history_executed ON history(executed);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Append inserts a record and fills in its ID and creation time. The
// record is final once written.
func (s *Store) Append(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.CreatedAt = time.Now().UTC()

	planJSON, err := json.Marshal(rec.Plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	var resultsJSON any
	if len(rec.Results) > 0 {
		data, err := json.Marshal(rec.Results)
		if err != nil {
			return fmt.Errorf("failed to encode results: %w", err)
		}
		resultsJSON = string(data)
	}

	var snapshotID any
	if rec.SnapshotID != "" {
		snapshotID = rec.SnapshotID
	}

	res, err := s.db.Exec(
		`INSERT INTO history (created_at, query, plan_json, executed, blocked, results_json, snapshot_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.Format(time.RFC3339Nano),
		rec.Query,
		string(planJSON),
		boolToInt(rec.Executed),
		boolToInt(rec.Blocked),
		resultsJSON,
		snapshotID,
	)
	if err != nil {
		return fmt.Errorf("failed to append record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read record id: %w", err)
	}
	rec.ID = id

	logging.HistoryDebug("appended record %d: executed=%v blocked=%v snapshot=%q",
		rec.ID, rec.Executed, rec.Blocked, rec.SnapshotID)
	return nil
}

const selectColumns = `id, created_at, query, plan_json, executed, blocked, results_json, snapshot_id`

// Recent returns the newest records, most recent first. A non-positive
// limit means 10.
func (s *Store) Recent(limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(
		`SELECT `+selectColumns+` FROM history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history rows: %w", err)
	}
	return records, nil
}

// Get returns the record with the given ID, or ErrNotFound.
func (s *Store) Get(id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT `+selectColumns+` FROM history WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return rec, err
}

// LastExecuted returns the most recent record that actually ran, or
// ErrNotFound when nothing has executed yet.
func (s *Store) LastExecuted() (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT ` + selectColumns + ` FROM history WHERE executed = 1 ORDER BY id DESC LIMIT 1`)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// Count returns the total number of records.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec         Record
		createdAt   string
		planJSON    string
		executed    int
		blocked     int
		resultsJSON sql.NullString
		snapshotID  sql.NullString
	)

	if err := sc.Scan(&rec.ID, &createdAt, &rec.Query, &planJSON,
		&executed, &blocked, &resultsJSON, &snapshotID); err != nil {
		return nil, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("record %d: bad timestamp %q: %w", rec.ID, createdAt, err)
	}
	rec.CreatedAt = ts

	if err := json.Unmarshal([]byte(planJSON), &rec.Plan); err != nil {
		return nil, fmt.Errorf("record %d: bad plan json: %w", rec.ID, err)
	}
	if resultsJSON.Valid && resultsJSON.String != "" {
		if err := json.Unmarshal([]byte(resultsJSON.String), &rec.Results); err != nil {
			return nil, fmt.Errorf("record %d: bad results json: %w", rec.ID, err)
		}
	}
	rec.Executed = executed != 0
	rec.Blocked = blocked != 0
	rec.SnapshotID = snapshotID.String

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
