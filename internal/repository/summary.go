package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// SummaryRepository is the durable tier behind the summary cache. One
// row per patient; regeneration replaces the row.
type SummaryRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewSummaryRepository creates a new summary repository
func NewSummaryRepository(db *pgxpool.Pool, logger *logrus.Logger) *SummaryRepository {
	return &SummaryRepository{
		db:  db,
		log: logger,
	}
}

// Get returns the stored summary for a patient and when it was written.
func (r *SummaryRepository) Get(ctx context.Context, patientID int64) (string, time.Time, error) {
	query := `
		SELECT summary_text, last_updated
		FROM patient_summary
		WHERE patient_id = $1`

	var text string
	var updated time.Time
	err := r.db.QueryRow(ctx, query, patientID).Scan(&text, &updated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", time.Time{}, fmt.Errorf("summary for patient %d: %w", patientID, domain.ErrNotFound)
		}
		return "", time.Time{}, fmt.Errorf("getting summary for patient %d: %w", patientID, err)
	}

	return text, updated, nil
}

// Upsert stores or replaces a patient's summary.
func (r *SummaryRepository) Upsert(ctx context.Context, patientID int64, text string) error {
	query := `
		INSERT INTO patient_summary (patient_id, summary_text, last_updated)
		VALUES ($1, $2, NOW())
		ON CONFLICT (patient_id)
		DO UPDATE SET summary_text = EXCLUDED.summary_text, last_updated = NOW()`

	if _, err := r.db.Exec(ctx, query, patientID, text); err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to upsert patient summary")
		return fmt.Errorf("upserting summary for patient %d: %w", patientID, err)
	}

	return nil
}

// Delete removes a patient's stored summary.
func (r *SummaryRepository) Delete(ctx context.Context, patientID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM patient_summary WHERE patient_id = $1`, patientID); err != nil {
		return fmt.Errorf("deleting summary for patient %d: %w", patientID, err)
	}
	return nil
}
