// Package seed loads deterministic synthetic patient data so every
// environment exercises the pipeline against the same records.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// Fixed seed keeps reruns reproducible.
const randomSeed = 42

var firstNames = []string{
	"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda",
	"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
	"Thomas", "Sarah", "Christopher", "Karen",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson",
	"Thomas", "Taylor", "Moore", "Jackson", "Martin",
}

var conditions = []string{
	"Type 2 Diabetes",
	"Hypertension",
	"Chronic Kidney Disease",
	"Coronary Artery Disease",
	"Asthma",
	"COPD",
	"Atrial Fibrillation",
	"Heart Failure",
	"Osteoarthritis",
	"Rheumatoid Arthritis",
	"Hypothyroidism",
	"Hyperlipidemia",
	"Depression",
	"Anxiety Disorder",
	"Chronic Back Pain",
}

var riskLevels = []string{"Low", "Medium", "High"}

var genders = []string{"Male", "Female"}

var clinicians = []string{
	"Dr. Emily Carter",
	"Dr. Michael Chen",
	"Dr. Sarah Patel",
	"Dr. James Thompson",
	"Dr. Maria Rodriguez",
	"Dr. David Kim",
	"Dr. Laura Johnson",
	"Dr. Robert Singh",
}

var treatments = []string{
	"Continued current medication regimen",
	"Adjusted medication dosage",
	"Started new medication therapy",
	"Referred to specialist for evaluation",
	"Recommended lifestyle modifications",
	"Ordered additional lab work",
	"Scheduled follow-up imaging",
	"Physical therapy referral",
	"Dietary counseling provided",
	"Blood pressure monitoring at home",
}

var noteTemplates = []string{
	"Patient presents with stable %s. Vitals within normal limits.",
	"Follow-up visit for %s. Patient reports improved symptoms.",
	"Routine check for %s. No acute concerns noted.",
	"Patient reports mild exacerbation of %s. Adjusted treatment.",
	"Annual review for %s. Lab results reviewed with patient.",
	"Patient compliant with medications for %s. Symptoms well-controlled.",
	"Discussed management strategies for %s. Patient educated on warning signs.",
	"Patient experiencing new symptoms related to %s. Further workup ordered.",
	"Stable %s. Reinforced importance of medication adherence.",
	"Follow-up after recent hospitalization for %s. Recovery progressing well.",
}

var encounterTypes = []string{"outpatient", "telehealth", "urgent_care", "inpatient"}

// measurementSpec bounds one vital or lab series. Values are drawn from
// [min, max]; anything outside [low, high] is flagged abnormal, so the
// generated data always mixes normal and abnormal readings.
type measurementSpec struct {
	name string
	unit string
	low  float64
	high float64
	min  float64
	max  float64
	ref  string
}

var vitalSpecs = []measurementSpec{
	{name: "systolic_bp", unit: "mmHg", low: 90, high: 120, min: 85, max: 165, ref: "90-120"},
	{name: "diastolic_bp", unit: "mmHg", low: 60, high: 80, min: 55, max: 105, ref: "60-80"},
	{name: "heart_rate", unit: "bpm", low: 60, high: 100, min: 48, max: 125, ref: "60-100"},
	{name: "temperature", unit: "C", low: 36.1, high: 37.2, min: 35.8, max: 38.9, ref: "36.1-37.2"},
}

var labSpecs = []measurementSpec{
	{name: "HbA1c", unit: "%", low: 4.0, high: 5.6, min: 3.8, max: 9.5, ref: "4.0-5.6"},
	{name: "LDL", unit: "mg/dL", low: 50, high: 100, min: 60, max: 190, ref: "50-100"},
	{name: "Creatinine", unit: "mg/dL", low: 0.7, high: 1.3, min: 0.5, max: 2.4, ref: "0.7-1.3"},
	{name: "CRP", unit: "mg/L", low: 0, high: 10, min: 0.2, max: 24, ref: "0-10"},
}

// historyBase anchors visit and encounter date progressions.
var historyBase = time.Date(2022, time.January, 1, 0, 0, 0, 0, time.UTC)

// Seeder rebuilds the synthetic patient data set.
type Seeder struct {
	db     *pgxpool.Pool
	rng    *rand.Rand
	logger *logrus.Logger
}

// NewSeeder creates a seeder over the given pool.
func NewSeeder(db *pgxpool.Pool, logger *logrus.Logger) *Seeder {
	return &Seeder{
		db:     db,
		rng:    rand.New(rand.NewSource(randomSeed)),
		logger: logger,
	}
}

// Run wipes existing patient data and loads a fresh deterministic set.
// The whole load runs in one transaction, so a failed run leaves the
// previous data untouched.
func (s *Seeder) Run(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := clearExisting(ctx, tx); err != nil {
		return err
	}

	patientCount := s.between(10, 20)
	for i := 0; i < patientCount; i++ {
		if err := s.seedPatient(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}

	s.logger.WithField("patient_count", patientCount).Info("Synthetic patient data loaded")
	return nil
}

// clearExisting deletes prior data, child tables first, so reruns start
// clean.
func clearExisting(ctx context.Context, tx pgx.Tx) error {
	tables := []string{"labs", "vitals", "encounters", "patient_summary", "patient_history", "patients"}
	for _, table := range tables {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

func (s *Seeder) seedPatient(ctx context.Context, tx pgx.Tx) error {
	name := s.pick(firstNames) + " " + s.pick(lastNames)
	condition := s.pick(conditions)

	var patientID int64
	err := tx.QueryRow(ctx, `
		INSERT INTO patients (name, age, gender, primary_condition, risk_level)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING patient_id`,
		name,
		s.between(25, 85),
		s.pick(genders),
		condition,
		s.pick(riskLevels),
	).Scan(&patientID)
	if err != nil {
		return fmt.Errorf("inserting patient %q: %w", name, err)
	}

	if err := s.seedHistory(ctx, tx, patientID, condition); err != nil {
		return err
	}

	return s.seedEncounters(ctx, tx, patientID)
}

func (s *Seeder) seedHistory(ctx context.Context, tx pgx.Tx, patientID int64, condition string) error {
	recordCount := s.between(5, 10)
	for i := 0; i < recordCount; i++ {
		visitDate := historyBase.AddDate(0, 0, s.between(30, 90)*(i+1))
		notes := fmt.Sprintf(s.pick(noteTemplates), condition)

		_, err := tx.Exec(ctx, `
			INSERT INTO patient_history (patient_id, visit_date, notes, treatment, clinician)
			VALUES ($1, $2, $3, $4, $5)`,
			patientID,
			visitDate,
			notes,
			s.pick(treatments),
			s.pick(clinicians),
		)
		if err != nil {
			return fmt.Errorf("inserting history for patient %d: %w", patientID, err)
		}
	}
	return nil
}

func (s *Seeder) seedEncounters(ctx context.Context, tx pgx.Tx, patientID int64) error {
	encounterCount := s.between(2, 5)
	for i := 0; i < encounterCount; i++ {
		encounter := domain.Encounter{
			PatientID:     patientID,
			EncounterDate: historyBase.AddDate(0, 0, s.between(30, 90)*(i+1)),
			EncounterType: s.pick(encounterTypes),
		}

		err := tx.QueryRow(ctx, `
			INSERT INTO encounters (patient_id, encounter_date, encounter_type)
			VALUES ($1, $2, $3)
			RETURNING encounter_id`,
			encounter.PatientID,
			encounter.EncounterDate,
			encounter.EncounterType,
		).Scan(&encounter.EncounterID)
		if err != nil {
			return fmt.Errorf("inserting encounter for patient %d: %w", patientID, err)
		}

		recordedAt := encounter.EncounterDate.Add(time.Duration(s.between(8, 17)) * time.Hour)

		for _, spec := range vitalSpecs {
			if s.rng.Float64() > 0.75 {
				continue
			}
			value := s.measure(spec)
			_, err := tx.Exec(ctx, `
				INSERT INTO vitals (encounter_id, recorded_at, vital_type, value, unit, abnormal, reference_range)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				encounter.EncounterID, recordedAt, spec.name, value, spec.unit, spec.abnormal(value), spec.ref,
			)
			if err != nil {
				return fmt.Errorf("inserting vitals for encounter %d: %w", encounter.EncounterID, err)
			}
		}

		for _, spec := range labSpecs {
			if s.rng.Float64() > 0.6 {
				continue
			}
			value := s.measure(spec)
			_, err := tx.Exec(ctx, `
				INSERT INTO labs (encounter_id, collected_at, test_name, value, unit, abnormal, reference_range)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				encounter.EncounterID, recordedAt, spec.name, value, spec.unit, spec.abnormal(value), spec.ref,
			)
			if err != nil {
				return fmt.Errorf("inserting labs for encounter %d: %w", encounter.EncounterID, err)
			}
		}
	}
	return nil
}

// between returns a uniform integer in [low, high].
func (s *Seeder) between(low, high int) int {
	return low + s.rng.Intn(high-low+1)
}

func (s *Seeder) pick(pool []string) string {
	return pool[s.rng.Intn(len(pool))]
}

// measure draws a value from the measurement's generation span, rounded
// to one decimal place.
func (s *Seeder) measure(spec measurementSpec) float64 {
	value := spec.min + s.rng.Float64()*(spec.max-spec.min)
	return float64(int(value*10+0.5)) / 10
}

func (m measurementSpec) abnormal(value float64) bool {
	return value < m.low || value > m.high
}
