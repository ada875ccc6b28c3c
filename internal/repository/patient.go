// Package repository implements the read-only evidence source over the
// patient record store. Every citation a response carries resolves to a
// column read through this package.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// PatientRepository serves patient records, visit history, encounters
// and their vitals and labs. It implements domain.EvidenceSource.
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{
		db:  db,
		log: logger,
	}
}

// FindPatientsByName returns every patient whose name contains the given
// text, case-insensitive, in stable id order. Returning all matches lets
// the resolver report ambiguity with an exact count instead of silently
// picking a first row.
func (r *PatientRepository) FindPatientsByName(ctx context.Context, name string) ([]domain.Patient, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, nil
	}

	query := `
		SELECT patient_id, name, COALESCE(age, 0), COALESCE(gender, ''),
			   COALESCE(primary_condition, ''), COALESCE(risk_level, '')
		FROM patients
		WHERE name ILIKE '%' || $1 || '%'
		ORDER BY patient_id`

	rows, err := r.db.Query(ctx, query, trimmed)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"name":  trimmed,
			"error": err,
		}).Error("Failed to search patients by name")
		return nil, fmt.Errorf("searching patients by name: %w", err)
	}
	defer rows.Close()

	var patients []domain.Patient
	for rows.Next() {
		var p domain.Patient
		if err := rows.Scan(&p.PatientID, &p.Name, &p.Age, &p.Gender, &p.PrimaryCondition, &p.RiskLevel); err != nil {
			return nil, fmt.Errorf("scanning patient row: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patient rows: %w", err)
	}

	return patients, nil
}

// GetPatient retrieves a patient by id
func (r *PatientRepository) GetPatient(ctx context.Context, patientID int64) (*domain.Patient, error) {
	query := `
		SELECT patient_id, name, COALESCE(age, 0), COALESCE(gender, ''),
			   COALESCE(primary_condition, ''), COALESCE(risk_level, '')
		FROM patients
		WHERE patient_id = $1`

	var p domain.Patient
	err := r.db.QueryRow(ctx, query, patientID).Scan(
		&p.PatientID,
		&p.Name,
		&p.Age,
		&p.Gender,
		&p.PrimaryCondition,
		&p.RiskLevel,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("patient %d: %w", patientID, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to get patient")
		return nil, fmt.Errorf("getting patient %d: %w", patientID, err)
	}

	return &p, nil
}

// ListPatients returns the full patient roster in stable id order
func (r *PatientRepository) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	query := `
		SELECT patient_id, name, COALESCE(age, 0), COALESCE(gender, ''),
			   COALESCE(primary_condition, ''), COALESCE(risk_level, '')
		FROM patients
		ORDER BY patient_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	defer rows.Close()

	var patients []domain.Patient
	for rows.Next() {
		var p domain.Patient
		if err := rows.Scan(&p.PatientID, &p.Name, &p.Age, &p.Gender, &p.PrimaryCondition, &p.RiskLevel); err != nil {
			return nil, fmt.Errorf("scanning patient row: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patient rows: %w", err)
	}

	return patients, nil
}

// GetHistory returns visit records for a patient, most recent first.
// A limit of zero returns the full history.
func (r *PatientRepository) GetHistory(ctx context.Context, patientID int64, limit int) ([]domain.HistoryEntry, error) {
	query := `
		SELECT record_id, patient_id, visit_date, COALESCE(notes, ''),
			   COALESCE(treatment, ''), COALESCE(clinician, '')
		FROM patient_history
		WHERE patient_id = $1
		ORDER BY visit_date DESC, record_id DESC`

	args := []any{patientID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": patientID,
			"error":      err,
		}).Error("Failed to get patient history")
		return nil, fmt.Errorf("getting history for patient %d: %w", patientID, err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.RecordID, &e.PatientID, &e.VisitDate, &e.Notes, &e.Treatment, &e.Clinician); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history rows: %w", err)
	}

	return entries, nil
}

// GetVitalsLabs returns all vitals and labs recorded across a patient's
// encounters, in recording order.
func (r *PatientRepository) GetVitalsLabs(ctx context.Context, patientID int64) ([]domain.Vital, []domain.Lab, error) {
	vitalsQuery := `
		SELECT v.vital_id, v.encounter_id, v.recorded_at, v.vital_type,
			   v.value, COALESCE(v.unit, ''), v.abnormal, COALESCE(v.reference_range, '')
		FROM vitals v
		JOIN encounters e ON e.encounter_id = v.encounter_id
		WHERE e.patient_id = $1
		ORDER BY v.recorded_at, v.vital_id`

	rows, err := r.db.Query(ctx, vitalsQuery, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting vitals for patient %d: %w", patientID, err)
	}

	var vitals []domain.Vital
	for rows.Next() {
		var v domain.Vital
		if err := rows.Scan(&v.VitalID, &v.EncounterID, &v.RecordedAt, &v.VitalType, &v.Value, &v.Unit, &v.Abnormal, &v.ReferenceRange); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scanning vital row: %w", err)
		}
		vitals = append(vitals, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating vital rows: %w", err)
	}

	labsQuery := `
		SELECT l.lab_id, l.encounter_id, l.collected_at, l.test_name,
			   l.value, COALESCE(l.unit, ''), l.abnormal, COALESCE(l.reference_range, '')
		FROM labs l
		JOIN encounters e ON e.encounter_id = l.encounter_id
		WHERE e.patient_id = $1
		ORDER BY l.collected_at, l.lab_id`

	rows, err = r.db.Query(ctx, labsQuery, patientID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting labs for patient %d: %w", patientID, err)
	}

	var labs []domain.Lab
	for rows.Next() {
		var l domain.Lab
		if err := rows.Scan(&l.LabID, &l.EncounterID, &l.CollectedAt, &l.TestName, &l.Value, &l.Unit, &l.Abnormal, &l.ReferenceRange); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scanning lab row: %w", err)
		}
		labs = append(labs, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating lab rows: %w", err)
	}

	return vitals, labs, nil
}
