package domain

import (
	"context"
)

// EvidenceSource is the read-only accessor over the patient record model.
// Every answer's evidence ultimately traces through this interface; the
// pipeline never writes patient data.
type EvidenceSource interface {
	FindPatientsByName(ctx context.Context, name string) ([]Patient, error)
	GetPatient(ctx context.Context, patientID int64) (*Patient, error)
	ListPatients(ctx context.Context) ([]Patient, error)
	// GetHistory returns visit records most recent first. A limit of zero
	// returns the full history.
	GetHistory(ctx context.Context, patientID int64, limit int) ([]HistoryEntry, error)
	GetVitalsLabs(ctx context.Context, patientID int64) ([]Vital, []Lab, error)
}

// GenerationEngine produces free text from a prompt. The pipeline treats
// it as opaque and unreliable: output is always validated against the
// forbidden vocabulary and failures surface as fixed fallbacks, never as
// retries.
type GenerationEngine interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ContextStore is the per-session conversation memory. Implementations
// apply the sliding expiry window lazily on read and must be safe for
// concurrent sessions.
type ContextStore interface {
	// Get returns the live context for the session, or false when none
	// exists or the window has elapsed. Expired entries are evicted here.
	Get(sessionID string) (*ConversationContext, bool)
	// Put records the last resolved patient for the session and resets
	// the expiry window.
	Put(sessionID string, patientID int64, intent Intent)
	Clear(sessionID string)
	Len() int
}

// SummaryCache returns a patient's cached summary or generates it via the
// supplied function, collapsing concurrent same-patient generations into
// a single flight.
type SummaryCache interface {
	GetOrGenerate(ctx context.Context, patientID int64, generate func(context.Context) (string, error)) (text string, hit bool, err error)
	Invalidate(ctx context.Context, patientID int64) error
}

// IncidentStore persists guardrail incidents for later tuning of the
// safety vocabulary and refusal patterns.
type IncidentStore interface {
	Record(ctx context.Context, incident *GuardrailIncident) error
	List(ctx context.Context, limit int) ([]*GuardrailIncident, error)
	Count(ctx context.Context) (int, error)
}
