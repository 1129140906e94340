package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// FileName is the database file inside the state directory.
const FileName = "history.db"

// Store provides SQLite-backed persistence for run history.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at dbPath and creates tables if they don't exist.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		data_file TEXT NOT NULL,
		actions TEXT NOT NULL,
		total INTEGER NOT NULL,
		next INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS item_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		item_index INTEGER NOT NULL,
		item TEXT NOT NULL,
		stage TEXT NOT NULL,
		outcome TEXT NOT NULL,
		url TEXT,
		error TEXT,
		duration_ms INTEGER DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_item_results_run ON item_results(run_id, item_index);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateRun records a new run over dataFile.
func (s *Store) CreateRun(dataFile, actions string, total, next int) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO runs (id, data_file, actions, total, next, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, dataFile, actions, total, next, StatusActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	return &Run{
		ID:        id,
		DataFile:  dataFile,
		Actions:   actions,
		Total:     total,
		Next:      next,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const runColumns = `id, data_file, actions, total, next, status, created_at, updated_at`

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.DataFile, &run.Actions, &run.Total, &run.Next, &run.Status, &run.CreatedAt, &run.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return &run, nil
}

// GetRun retrieves a run by ID. A missing run yields nil, nil.
func (s *Store) GetRun(id string) (*Run, error) {
	return scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
}

// LatestRun returns the most recently updated run, or nil if there is none.
func (s *Store) LatestRun() (*Run, error) {
	return scanRun(s.db.QueryRow(`SELECT ` + runColumns + ` FROM runs ORDER BY updated_at DESC, rowid DESC LIMIT 1`))
}

// UpdateRun stores the run's checkpoint and status. A run being resumed is
// reopened with StatusActive.
func (s *Store) UpdateRun(id string, next int, status string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET next = ?, status = ?, updated_at = ? WHERE id = ?`,
		next, status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// OpenSession records the start of a browser session.
func (s *Store) OpenSession(runID string, start int) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO sessions (run_id, start_index, started_at) VALUES (?, ?, ?)`,
		runID, start, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}
	return id, nil
}

// CloseSession records where a session stopped.
func (s *Store) CloseSession(id int64, end int) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET end_index = ?, ended_at = ? WHERE id = ?`,
		end, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// SetSessionReason records why a session ended.
func (s *Store) SetSessionReason(id int64, reason string) error {
	_, err := s.db.Exec(`UPDATE sessions SET reason = ? WHERE id = ?`, reason, id)
	if err != nil {
		return fmt.Errorf("update session reason: %w", err)
	}
	return nil
}

// GetSessions retrieves the sessions of a run in order.
func (s *Store) GetSessions(runID string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, start_index, end_index, reason, started_at, ended_at
		 FROM sessions
		 WHERE run_id = ?
		 ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var ended sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.RunID, &sess.StartIndex, &sess.EndIndex, &sess.Reason, &sess.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return sessions, nil
}

// RecordResult updates or inserts the outcome of one stage of one item.
// A resumed run overwrites the earlier attempt.
func (s *Store) RecordResult(r ItemResult) error {
	now := time.Now().UTC()

	// Try to update existing record first
	result, err := s.db.Exec(
		`UPDATE item_results
		 SET item = ?, outcome = ?, url = ?, error = ?, duration_ms = ?, updated_at = ?
		 WHERE run_id = ? AND item_index = ? AND stage = ?`,
		r.Item, r.Outcome, r.URL, r.Error, r.DurationMs, now, r.RunID, r.ItemIndex, r.Stage,
	)
	if err != nil {
		return fmt.Errorf("update item result: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	// If no rows were updated, insert a new record
	if rowsAffected == 0 {
		_, err = s.db.Exec(
			`INSERT INTO item_results (run_id, item_index, item, stage, outcome, url, error, duration_ms, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, r.ItemIndex, r.Item, r.Stage, r.Outcome, r.URL, r.Error, r.DurationMs, now,
		)
		if err != nil {
			return fmt.Errorf("insert item result: %w", err)
		}
	}

	return nil
}

// GetResults retrieves all item results for a run in item order.
func (s *Store) GetResults(runID string) ([]ItemResult, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, item_index, item, stage, outcome, COALESCE(url, ''), COALESCE(error, ''), duration_ms, updated_at
		 FROM item_results
		 WHERE run_id = ?
		 ORDER BY item_index ASC, id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query item results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []ItemResult
	for rows.Next() {
		var r ItemResult
		if err := rows.Scan(&r.ID, &r.RunID, &r.ItemIndex, &r.Item, &r.Stage, &r.Outcome, &r.URL, &r.Error, &r.DurationMs, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item result: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return results, nil
}

// ListRuns returns summaries of the most recent runs. An item counts as
// failed if any of its stages failed.
func (s *Store) ListRuns(limit int) ([]Summary, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.data_file, r.actions, r.status, r.total, r.next, r.updated_at,
		        (SELECT COUNT(*) FROM sessions WHERE run_id = r.id) AS sessions
		 FROM runs r
		 ORDER BY r.updated_at DESC, r.rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var summaries []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.DataFile, &sum.Actions, &sum.Status, &sum.Total, &sum.Next, &sum.UpdatedAt, &sum.Sessions); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	_ = rows.Close()

	// One connection: the outcome queries run after the listing is closed.
	for i := range summaries {
		if err := s.countOutcomes(&summaries[i]); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

func (s *Store) countOutcomes(sum *Summary) error {
	row := s.db.QueryRow(
		`SELECT
		        COALESCE(SUM(CASE WHEN skipped = 0 AND failed = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN skipped = 0 AND failed = 1 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(skipped), 0)
		 FROM (
		        SELECT item_index,
		               MAX(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END) AS failed,
		               MAX(CASE WHEN outcome = 'skipped' THEN 1 ELSE 0 END) AS skipped
		        FROM item_results
		        WHERE run_id = ?
		        GROUP BY item_index
		 )`,
		sum.ID,
	)
	if err := row.Scan(&sum.Succeeded, &sum.Failed, &sum.Skipped); err != nil {
		return fmt.Errorf("count outcomes: %w", err)
	}
	return nil
}
