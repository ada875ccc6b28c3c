package guardrail

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/patient-insight-server/internal/domain"
)

// SQLiteStore implements Store using SQLite. This is the default
// backend: a single local file with no external service to run.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite incident store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS guardrail_incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT DEFAULT '',
		patient_id INTEGER DEFAULT 0,
		query TEXT NOT NULL,
		kind TEXT NOT NULL,
		violations TEXT NOT NULL DEFAULT '[]',
		discarded_text TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_incidents_kind ON guardrail_incidents(kind);
	CREATE INDEX IF NOT EXISTS idx_incidents_created_at ON guardrail_incidents(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Record persists one incident. The incident's ID and CreatedAt are
// filled in on success.
func (s *SQLiteStore) Record(ctx context.Context, incident *domain.GuardrailIncident) error {
	if err := incident.Validate(); err != nil {
		return err
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now()
	}

	violations, err := marshalViolations(incident.Violations)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO guardrail_incidents (
			session_id, patient_id, query, kind,
			violations, discarded_text, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		incident.SessionID,
		incident.PatientID,
		incident.Query,
		string(incident.Kind),
		violations,
		incident.DiscardedText,
		incident.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	incident.ID = id

	return nil
}

// List returns the most recent incidents, newest first. A non-positive
// limit returns up to 100 entries.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*domain.GuardrailIncident, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, patient_id, query, kind,
			violations, discarded_text, created_at
		FROM guardrail_incidents
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var result []*domain.GuardrailIncident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, incident)
	}
	return result, rows.Err()
}

// Count returns the total number of recorded incidents.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guardrail_incidents").Scan(&count)
	return count, err
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
