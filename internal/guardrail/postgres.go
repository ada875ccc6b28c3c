package guardrail

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/patient-insight-server/internal/domain"
)

// PostgresStore implements Store using PostgreSQL, for deployments that
// want incidents in the same database as the patient records.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL incident store.
// It expects the guardrail_incidents table to already exist (created via
// migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL incident store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Record persists one incident, filling in its ID and CreatedAt.
func (s *PostgresStore) Record(ctx context.Context, incident *domain.GuardrailIncident) error {
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

	query := `
		INSERT INTO guardrail_incidents (
			session_id, patient_id, query, kind,
			violations, discarded_text, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		incident.SessionID,
		incident.PatientID,
		incident.Query,
		string(incident.Kind),
		violations,
		incident.DiscardedText,
		incident.CreatedAt,
	).Scan(&incident.ID)
	if err != nil {
		return fmt.Errorf("failed to insert incident: %w", err)
	}

	return nil
}

// List returns the most recent incidents, newest first. A non-positive
// limit returns up to 100 entries.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*domain.GuardrailIncident, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, patient_id, query, kind,
			violations, discarded_text, created_at
		FROM guardrail_incidents
		ORDER BY created_at DESC, id DESC
		LIMIT $1
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
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM guardrail_incidents").Scan(&count)
	return count, err
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
