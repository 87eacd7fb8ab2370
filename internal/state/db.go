// Package state provides SQLite-based append-only history for terminal
// workflow records and budget ledger entries. No core logic reads back from
// here within a process lifetime; the tables exist for audit and the CLI.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/optilist/optilist/pkg/models"
)

// DB wraps an SQLite database connection with Optilist-specific operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// DefaultDBPath returns the path to the Optilist history database.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "optilist", "optilist.db")
}

// Open opens an SQLite database at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the history tables if they don't exist.
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id         TEXT PRIMARY KEY,
		type       TEXT NOT NULL,
		status     TEXT NOT NULL,
		record     TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at   TEXT
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq            INTEGER PRIMARY KEY AUTOINCREMENT,
		ts             TEXT NOT NULL,
		agent_id       TEXT NOT NULL,
		model          TEXT,
		estimated_cost REAL NOT NULL,
		actual_cost    REAL,
		accepted       INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_ts ON ledger_entries(ts);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// AppendWorkflow writes one terminal workflow record. The full record is
// stored as JSON; id, type, status and timestamps are lifted into columns
// for querying.
func (db *DB) AppendWorkflow(w models.Workflow) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	record, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workflow %s: %w", w.ID, err)
	}

	var endedAt any
	if w.EndedAt != nil {
		endedAt = w.EndedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO workflows (id, type, status, record, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, string(w.Type), string(w.Status), string(record),
		w.StartedAt.UTC().Format(time.RFC3339Nano), endedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow %s: %w", w.ID, err)
	}
	return nil
}

// AppendLedgerEntry writes one budget ledger row. The table is append-only;
// rows are never updated.
func (db *DB) AppendLedgerEntry(e models.LedgerEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var actual any
	if e.ActualCost != nil {
		actual = *e.ActualCost
	}

	_, err := db.conn.Exec(
		`INSERT INTO ledger_entries (ts, agent_id, model, estimated_cost, actual_cost, accepted)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.AgentID, e.Model,
		e.EstimatedCost, actual, boolToInt(e.Accepted),
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// GetWorkflow reads one persisted workflow record by id.
func (db *DB) GetWorkflow(id string) (*models.Workflow, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var record string
	err := db.conn.QueryRow(`SELECT record FROM workflows WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow %s: %w", id, err)
	}

	var w models.Workflow
	if err := json.Unmarshal([]byte(record), &w); err != nil {
		return nil, fmt.Errorf("unmarshal workflow %s: %w", id, err)
	}
	return &w, nil
}

// RecentWorkflows returns up to limit persisted workflows, newest first.
func (db *DB) RecentWorkflows(limit int) ([]models.Workflow, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT record FROM workflows ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var out []models.Workflow
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var w models.Workflow
		if err := json.Unmarshal([]byte(record), &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// LedgerEntries returns up to limit ledger rows, newest first.
func (db *DB) LedgerEntries(limit int) ([]models.LedgerEntry, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		`SELECT ts, agent_id, model, estimated_cost, actual_cost, accepted
		 FROM ledger_entries ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var (
			ts     string
			e      models.LedgerEntry
			actual sql.NullFloat64
			acc    int
		)
		if err := rows.Scan(&ts, &e.AgentID, &e.Model, &e.EstimatedCost, &actual, &acc); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		if actual.Valid {
			v := actual.Float64
			e.ActualCost = &v
		}
		e.Accepted = acc != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// AcceptedSpendSince sums actual costs of accepted ledger rows at or after t.
func (db *DB) AcceptedSpendSince(t time.Time) (float64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var total sql.NullFloat64
	err := db.conn.QueryRow(
		`SELECT SUM(actual_cost) FROM ledger_entries WHERE accepted = 1 AND ts >= ?`,
		t.UTC().Format(time.RFC3339Nano)).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	return total.Float64, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
