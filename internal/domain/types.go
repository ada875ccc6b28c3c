// Package domain contains the core business entities and types for the
// patient insight pipeline: query intents, patient reference resolution
// outcomes, reasoning levels, confidence grading, and the record model
// served by the evidence layer.
//
// Every response the pipeline produces carries a deterministic confidence
// level and literal evidence citations so that consumers can audit how an
// answer was assembled. Confidence is assigned from a fixed mapping on the
// response path and is never derived from generated text.
package domain

import (
	"errors"
	"fmt"
)

// Intent represents the classified intent of a patient query.
// Intents are evaluated in a fixed priority order: REFUSAL always wins,
// SEVERITY and COMPLEX precede FACTUAL, and SUMMARY is the conservative
// default when nothing else matches.
type Intent string

const (
	FACTUAL  Intent = "FACTUAL"
	SUMMARY  Intent = "SUMMARY"
	COMPLEX  Intent = "COMPLEX"
	SEVERITY Intent = "SEVERITY"
	REFUSAL  Intent = "REFUSAL"
)

// ConfidenceLevel represents the confidence attached to a response.
type ConfidenceLevel string

const (
	HIGH   ConfidenceLevel = "High"
	MEDIUM ConfidenceLevel = "Medium"
	LOW    ConfidenceLevel = "Low"
)

// ResolutionStatus represents the outcome of resolving a patient reference
// in free text. Anything other than OK terminates the pipeline with a
// well-formed low-confidence response instead of a guessed patient.
type ResolutionStatus string

const (
	OK                 ResolutionStatus = "OK"
	AMBIGUOUS          ResolutionStatus = "AMBIGUOUS"
	NOT_FOUND          ResolutionStatus = "NOT_FOUND"
	PRONOUN_NO_CONTEXT ResolutionStatus = "PRONOUN_NO_CONTEXT"
	GENDER_MISMATCH    ResolutionStatus = "GENDER_MISMATCH"
	NO_REFERENCE       ResolutionStatus = "NO_REFERENCE"
)

// ReasoningLevel is the ordered escalation ladder for answer generation.
// The reasoner computes the highest level whose preconditions hold; the
// order NONE < DESCRIPTIVE < ANALYTICAL < SYNTHETIC is relied on for
// comparisons and must not be rearranged.
type ReasoningLevel int

const (
	NONE ReasoningLevel = iota
	DESCRIPTIVE
	ANALYTICAL
	SYNTHETIC
)

// ResponsePath identifies which branch of the pipeline produced a response.
// The deterministic confidence table is keyed on this value.
type ResponsePath string

const (
	FACTUAL_PATH   ResponsePath = "FACTUAL"
	SUMMARY_HIT    ResponsePath = "SUMMARY_HIT"
	SUMMARY_MISS   ResponsePath = "SUMMARY_MISS"
	COMPLEX_PATH   ResponsePath = "COMPLEX"
	SYNTHETIC_PATH ResponsePath = "SYNTHETIC"
	SEVERITY_PATH  ResponsePath = "SEVERITY"
	REFUSAL_PATH   ResponsePath = "REFUSAL"
)

// TrendPattern classifies the overall progression documented in a
// patient's visit history.
type TrendPattern string

const (
	NO_CLEAR_TREND    TrendPattern = "NO_CLEAR_TREND"
	WORSENING_TREND   TrendPattern = "WORSENING_TREND"
	IMPROVING_TREND   TrendPattern = "IMPROVING_TREND"
	INTERMITTENT      TrendPattern = "INTERMITTENT"
	STABLE            TrendPattern = "STABLE"
	INSUFFICIENT_DATA TrendPattern = "INSUFFICIENT_DATA"
)

// IncidentKind categorizes guardrail incidents recorded for later tuning
// of the safety vocabulary and refusal patterns.
type IncidentKind string

const (
	FORBIDDEN_LANGUAGE IncidentKind = "FORBIDDEN_LANGUAGE"
	ADVICE_REFUSAL     IncidentKind = "ADVICE_REFUSAL"
	IDENTITY_REFUSAL   IncidentKind = "IDENTITY_REFUSAL"
	GENERATION_FAILURE IncidentKind = "GENERATION_FAILURE"
)

// Sentinel errors for pipeline failure modes
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidIntent     = errors.New("invalid query intent")
	ErrInvalidConfidence = errors.New("invalid confidence level")
	ErrForbiddenLanguage = errors.New("generated text contains forbidden language")
	ErrEngineUnavailable = errors.New("generation engine unavailable")
	ErrEmptyGeneration   = errors.New("generation engine returned empty text")
)

// IsValid reports whether the intent is one of the closed set used by the
// pipeline router. The router switches exhaustively on this set; an
// invalid intent must never reach it.
func (i Intent) IsValid() bool {
	switch i {
	case FACTUAL, SUMMARY, COMPLEX, SEVERITY, REFUSAL:
		return true
	default:
		return false
	}
}

// String returns the string representation of the intent.
func (i Intent) String() string {
	return string(i)
}

// RequiresGeneration reports whether answering this intent may invoke the
// generation engine. FACTUAL, SEVERITY and REFUSAL are composed entirely
// from stored fields and fixed templates.
func (i Intent) RequiresGeneration() bool {
	switch i {
	case SUMMARY, COMPLEX:
		return true
	default:
		return false
	}
}

// LogFields returns structured logging fields for audit trails.
func (i Intent) LogFields() map[string]any {
	return map[string]any{
		"intent":              string(i),
		"is_valid":            i.IsValid(),
		"requires_generation": i.RequiresGeneration(),
	}
}

// IsValid validates the confidence level.
func (cl ConfidenceLevel) IsValid() bool {
	switch cl {
	case HIGH, MEDIUM, LOW:
		return true
	default:
		return false
	}
}

// String returns the string representation of the confidence level.
func (cl ConfidenceLevel) String() string {
	return string(cl)
}

// IsValid validates the resolution status.
func (rs ResolutionStatus) IsValid() bool {
	switch rs {
	case OK, AMBIGUOUS, NOT_FOUND, PRONOUN_NO_CONTEXT, GENDER_MISMATCH, NO_REFERENCE:
		return true
	default:
		return false
	}
}

// Resolved reports whether the reference was narrowed to exactly one
// patient. Only a resolved reference may update conversation memory or
// feed the retrieval stage.
func (rs ResolutionStatus) Resolved() bool {
	return rs == OK
}

// String returns the string representation of the resolution status.
func (rs ResolutionStatus) String() string {
	return string(rs)
}

// IsValid reports whether the level is on the escalation ladder.
func (rl ReasoningLevel) IsValid() bool {
	return rl >= NONE && rl <= SYNTHETIC
}

// String returns the name of the reasoning level for logs and audit trails.
func (rl ReasoningLevel) String() string {
	switch rl {
	case NONE:
		return "NONE"
	case DESCRIPTIVE:
		return "DESCRIPTIVE"
	case ANALYTICAL:
		return "ANALYTICAL"
	case SYNTHETIC:
		return "SYNTHETIC"
	default:
		return fmt.Sprintf("ReasoningLevel(%d)", int(rl))
	}
}

// IsValid validates the response path.
func (rp ResponsePath) IsValid() bool {
	switch rp {
	case FACTUAL_PATH, SUMMARY_HIT, SUMMARY_MISS, COMPLEX_PATH, SYNTHETIC_PATH, SEVERITY_PATH, REFUSAL_PATH:
		return true
	default:
		return false
	}
}

// Confidence returns the confidence level deterministically assigned to
// responses produced via this path. Direct field reads and cache hits are
// High. Generated answers and the interpretive severity assessment are
// capped at Medium. Every refusal, error and fallback path is Low, and
// unknown paths degrade to Low rather than overstating certainty.
func (rp ResponsePath) Confidence() ConfidenceLevel {
	switch rp {
	case FACTUAL_PATH, SUMMARY_HIT:
		return HIGH
	case SUMMARY_MISS, COMPLEX_PATH, SYNTHETIC_PATH, SEVERITY_PATH:
		return MEDIUM
	default:
		return LOW
	}
}

// String returns the string representation of the response path.
func (rp ResponsePath) String() string {
	return string(rp)
}

// IsValid validates the trend pattern.
func (tp TrendPattern) IsValid() bool {
	switch tp {
	case NO_CLEAR_TREND, WORSENING_TREND, IMPROVING_TREND, INTERMITTENT, STABLE, INSUFFICIENT_DATA:
		return true
	default:
		return false
	}
}

// Consistent reports whether the pattern documents a consistent direction.
// Non-consistent patterns carry an explicit grounding note in prompts so
// the engine cannot invent a progression the records do not show.
func (tp TrendPattern) Consistent() bool {
	switch tp {
	case WORSENING_TREND, IMPROVING_TREND:
		return true
	default:
		return false
	}
}

// IsValid validates the incident kind.
func (ik IncidentKind) IsValid() bool {
	switch ik {
	case FORBIDDEN_LANGUAGE, ADVICE_REFUSAL, IDENTITY_REFUSAL, GENERATION_FAILURE:
		return true
	default:
		return false
	}
}
