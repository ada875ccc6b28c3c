package domain

import (
	"fmt"
	"strings"
	"time"
)

// Record Model

// Patient represents one row of the patient registry. Patient identity is
// anchored on PatientID; demographic fields are immutable during a
// conversation session.
type Patient struct {
	PatientID        int64  `json:"patient_id"`
	Name             string `json:"name" validate:"required"`
	Age              int    `json:"age,omitempty"`
	Gender           string `json:"gender,omitempty"`
	PrimaryCondition string `json:"primary_condition,omitempty"`
	RiskLevel        string `json:"risk_level,omitempty"`
}

// Validate ensures the patient record meets the minimum the pipeline
// relies on. Age zero means not recorded, so only negative and
// implausible values are rejected.
func (p *Patient) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("patient validation: %w", fmt.Errorf("name is required"))
	}
	if p.Age < 0 || p.Age > 130 {
		return fmt.Errorf("patient validation: %w", fmt.Errorf("age %d out of range", p.Age))
	}
	switch p.RiskLevel {
	case "", "Low", "Medium", "High":
	default:
		return fmt.Errorf("patient validation: %w", fmt.Errorf("unknown risk level %q", p.RiskLevel))
	}
	return nil
}

// HistoryEntry represents one visit record in a patient's history.
type HistoryEntry struct {
	RecordID  int64     `json:"record_id"`
	PatientID int64     `json:"patient_id"`
	VisitDate time.Time `json:"visit_date"`
	Notes     string    `json:"notes,omitempty"`
	Treatment string    `json:"treatment,omitempty"`
	Clinician string    `json:"clinician,omitempty"`
}

// Encounter represents a documented clinical encounter. Vitals and labs
// hang off encounters, not visits.
type Encounter struct {
	EncounterID   int64     `json:"encounter_id"`
	PatientID     int64     `json:"patient_id"`
	EncounterDate time.Time `json:"encounter_date"`
	EncounterType string    `json:"encounter_type,omitempty"`
}

// Vital represents a single vital-sign measurement with its abnormality
// flag as recorded, never re-derived at query time.
type Vital struct {
	VitalID        int64     `json:"vital_id"`
	EncounterID    int64     `json:"encounter_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	VitalType      string    `json:"vital_type"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit,omitempty"`
	Abnormal       bool      `json:"abnormal"`
	ReferenceRange string    `json:"reference_range,omitempty"`
}

// Lab represents a single laboratory result.
type Lab struct {
	LabID          int64     `json:"lab_id"`
	EncounterID    int64     `json:"encounter_id"`
	CollectedAt    time.Time `json:"collected_at"`
	TestName       string    `json:"test_name"`
	Value          float64   `json:"value"`
	Unit           string    `json:"unit,omitempty"`
	Abnormal       bool      `json:"abnormal"`
	ReferenceRange string    `json:"reference_range,omitempty"`
}

// VitalsLabsSnapshot aggregates a patient's vitals and labs into the
// counts the reasoner's activation gates and the cross-signal summary
// consume.
type VitalsLabsSnapshot struct {
	VitalsCount    int     `json:"vitals_count"`
	LabsCount      int     `json:"labs_count"`
	AbnormalVitals int     `json:"abnormal_vitals_count"`
	AbnormalLabs   int     `json:"abnormal_labs_count"`
	EncounterIDs   []int64 `json:"encounter_ids,omitempty"`
}

// NormalVitals returns the count of vitals flagged within range.
func (s *VitalsLabsSnapshot) NormalVitals() int {
	return s.VitalsCount - s.AbnormalVitals
}

// NormalLabs returns the count of labs flagged within range.
func (s *VitalsLabsSnapshot) NormalLabs() int {
	return s.LabsCount - s.AbnormalLabs
}

// Conversation Memory

// ConversationContext is the per-session memory entry. It stores only the
// last resolved patient's id as a lookup key, never patient data; the
// resolver re-fetches the patient live on every pronoun reference so
// stale demographics can never leak into an answer.
type ConversationContext struct {
	SessionID     string    `json:"session_id"`
	LastPatientID int64     `json:"last_patient_id"`
	LastIntent    Intent    `json:"last_intent,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Expired reports whether the context has outlived the sliding expiry
// window. CreatedAt is refreshed on every successful resolution, so the
// window slides with use.
func (c *ConversationContext) Expired(window time.Duration, now time.Time) bool {
	if c == nil {
		return true
	}
	return now.Sub(c.CreatedAt) > window
}

// Resolution

// Resolution is the outcome of resolving a patient reference. Patient is
// populated only when Status is OK; Matches carries the candidates for an
// AMBIGUOUS outcome so the caller can list them.
type Resolution struct {
	Status     ResolutionStatus `json:"status"`
	PatientID  int64            `json:"patient_id,omitempty"`
	Patient    *Patient         `json:"patient,omitempty"`
	MatchCount int              `json:"match_count,omitempty"`
	Matches    []Patient        `json:"matches,omitempty"`
	Method     string           `json:"method,omitempty"`
}

// LogFields returns structured logging fields for the resolution outcome.
func (r *Resolution) LogFields() map[string]any {
	return map[string]any{
		"resolution_status": string(r.Status),
		"patient_id":        r.PatientID,
		"match_count":       r.MatchCount,
		"method":            r.Method,
	}
}

// Retrieval

// ScoredVisit pairs a history entry with its retrieval weights.
// Total combines the recency band and the clinical signal score.
type ScoredVisit struct {
	Entry         HistoryEntry `json:"entry"`
	RecencyScore  float64      `json:"recency_score"`
	ClinicalScore float64      `json:"clinical_score"`
	TotalScore    float64      `json:"total_score"`
}

// EvidenceItem is one traceable piece of evidence behind an answer. The
// Source is always a literal field path into the record model.
type EvidenceItem struct {
	Source    string    `json:"source"`
	Value     string    `json:"value"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Trend Analysis

// VisitTrend is the indicator breakdown for a single visit.
type VisitTrend struct {
	VisitDate time.Time `json:"visit_date"`
	Direction string    `json:"direction"`
	Worsening int       `json:"worsening"`
	Improving int       `json:"improving"`
	Neutral   int       `json:"neutral"`
}

// TrendResult is the deterministic progression analysis over a patient's
// visit history. It grounds COMPLEX prompts so that temporal claims in
// generated text trace back to documented indicators.
type TrendResult struct {
	VisitCount     int          `json:"visit_count"`
	Pattern        TrendPattern `json:"pattern"`
	WorseningCount int          `json:"worsening_count"`
	ImprovingCount int          `json:"improving_count"`
	NeutralCount   int          `json:"neutral_count"`
	PerVisit       []VisitTrend `json:"per_visit,omitempty"`
	Summary        string       `json:"summary"`
}

// Reasoning

// ActivationDecision records whether synthetic reasoning activated and,
// when it did not, the first gate that failed.
type ActivationDecision struct {
	Activated bool   `json:"activated"`
	Reason    string `json:"reason"`
}

// ReasoningResult carries the outcome of the generation stage after
// validation: the level that ran, the surviving text (or the fixed
// fallback), and any forbidden terms that caused the original text to be
// discarded.
type ReasoningResult struct {
	Level      ReasoningLevel `json:"level"`
	Text       string         `json:"text"`
	Fallback   bool           `json:"fallback"`
	Violations []string       `json:"violations,omitempty"`
}

// Response

// Response is the immutable answer envelope returned to every caller.
// Evidence entries are literal field paths; Confidence comes from the
// fixed path table; LogicPath is informational only.
type Response struct {
	Query      string          `json:"query"`
	Answer     string          `json:"answer"`
	Confidence ConfidenceLevel `json:"confidence"`
	Evidence   []string        `json:"evidence"`
	LogicPath  string          `json:"logic_path"`
	TimingMS   int64           `json:"timing_ms"`
}

// LogFields returns structured logging fields for the response envelope.
func (r *Response) LogFields() map[string]any {
	return map[string]any{
		"confidence": string(r.Confidence),
		"logic_path": r.LogicPath,
		"evidence":   strings.Join(r.Evidence, ","),
		"timing_ms":  r.TimingMS,
	}
}

// Guardrail

// GuardrailIncident is one persisted guardrail event: a refusal issued,
// generated text discarded for forbidden language, or an engine failure
// surfaced as a fallback.
type GuardrailIncident struct {
	ID            int64        `json:"id"`
	SessionID     string       `json:"session_id"`
	PatientID     int64        `json:"patient_id,omitempty"`
	Query         string       `json:"query"`
	Kind          IncidentKind `json:"kind"`
	Violations    []string     `json:"violations,omitempty"`
	DiscardedText string       `json:"discarded_text,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Validate ensures an incident is well-formed before persistence.
func (g *GuardrailIncident) Validate() error {
	if !g.Kind.IsValid() {
		return fmt.Errorf("incident validation: %w", fmt.Errorf("unknown kind %q", g.Kind))
	}
	if strings.TrimSpace(g.Query) == "" {
		return fmt.Errorf("incident validation: %w", fmt.Errorf("query is required"))
	}
	return nil
}
