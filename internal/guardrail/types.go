// Package guardrail persists safety incidents: advice requests that were
// refused, generated text discarded for forbidden language, and engine
// failures surfaced as fallbacks. The incident log is the raw material
// for tuning the refusal patterns and safety vocabulary.
package guardrail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// Supported storage backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// Store is the persistence interface for guardrail incidents.
type Store interface {
	domain.IncidentStore
	Close() error
}

// NewStore creates the incident store named by config. The "none"
// backend discards incidents, which keeps pipeline wiring uniform for
// deployments that do not audit.
func NewStore(config *domain.GuardrailConfig, logger *logrus.Logger) (Store, error) {
	switch config.Backend {
	case BackendSQLite:
		store, err := NewSQLiteStore(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.WithField("path", config.SQLitePath).Info("Guardrail incidents stored in SQLite")
		return store, nil
	case BackendPostgres:
		store, err := NewPostgresStoreFromURL(config.PostgresURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Guardrail incidents stored in PostgreSQL")
		return store, nil
	case BackendNone:
		logger.Warn("Guardrail incident persistence disabled")
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown guardrail backend %q", config.Backend)
	}
}

// NopStore discards every incident.
type NopStore struct{}

func (NopStore) Record(ctx context.Context, incident *domain.GuardrailIncident) error {
	return nil
}

func (NopStore) List(ctx context.Context, limit int) ([]*domain.GuardrailIncident, error) {
	return nil, nil
}

func (NopStore) Count(ctx context.Context) (int, error) { return 0, nil }

func (NopStore) Close() error { return nil }

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanIncident scans a row into a GuardrailIncident.
func scanIncident(s scanner) (*domain.GuardrailIncident, error) {
	incident := &domain.GuardrailIncident{}
	var kind, violations string

	err := s.Scan(
		&incident.ID, &incident.SessionID, &incident.PatientID,
		&incident.Query, &kind, &violations,
		&incident.DiscardedText, &incident.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	incident.Kind = domain.IncidentKind(kind)
	incident.Violations, err = unmarshalViolations(violations)
	if err != nil {
		return nil, err
	}
	return incident, nil
}

func marshalViolations(violations []string) (string, error) {
	if len(violations) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(violations)
	if err != nil {
		return "", fmt.Errorf("failed to marshal violations: %w", err)
	}
	return string(data), nil
}

func unmarshalViolations(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var violations []string
	if err := json.Unmarshal([]byte(raw), &violations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal violations: %w", err)
	}
	return violations, nil
}
