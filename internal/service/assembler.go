package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/patient-insight-server/internal/domain"
)

// Evidence citations attached to responses. Always literal field paths or
// fixed reason labels, never free text; consumers audit answers by these
// strings, so keep them stable.
const (
	evidenceCondition       = "patients.primary_condition"
	evidenceAge             = "patients.age"
	evidenceGender          = "patients.gender"
	evidenceRiskLevel       = "patients.risk_level"
	evidenceCachedSummary   = "cached_patient_summary"
	evidenceWeightedHistory = "patient_history (weighted: recency + clinical signals)"
	evidenceWeightedShort   = "patient_history (weighted)"
	evidenceTrendAnalysis   = "trend_analysis"
	evidenceGeneratedText   = "generated_summary"
	evidenceCrossSignal     = "cross_signal_synthesis (history + vitals + labs)"

	evidenceAmbiguous      = "ambiguous patient reference"
	evidenceGenderMismatch = "pronoun gender mismatch"
	evidenceNotFound       = "patient not found in database"
	evidenceInsufficient   = "insufficient data for analysis"
	evidenceNoContext      = "no prior patient context"
	evidenceAdviceDeclined = "medical advice request declined"
	evidenceNoSeverity     = "no severity metrics available"
)

// Fixed user-facing texts for refusal and fallback paths.
const (
	answerEmptyQuery     = "Please provide a question to get started."
	answerAdviceRefusal  = "I cannot provide medical advice, prescriptions, or treatment recommendations. Please consult a qualified healthcare provider."
	answerUnknownPatient = "Patient not found in the database."
	answerNameNotFound   = "No matching patient found. Please check the spelling or provide more details."
	answerWhichPatient   = "I'm not sure which patient you're referring to. Could you please specify the patient's name?"
	answerNoInformation  = "I do not have enough information to answer that."
	answerEngineFailure  = "I am unable to generate a response at the moment."
)

// Inline severity stems counted over recent visit notes. Any hit counts a
// record once per category.
var (
	severityWorseningStems = []string{"worsen", "exacerbation", "deteriorat", "hospital", "acute"}
	severityImprovingStems = []string{"improv", "better", "recover", "stable"}
)

// Assembler builds the response envelope for every pipeline outcome.
// Confidence comes from the response path alone; generated text never
// influences it.
type Assembler struct {
	maxAmbiguousListed int
}

func NewAssembler(config *domain.PipelineConfig) *Assembler {
	maxListed := config.MaxAmbiguousListed
	if maxListed <= 0 {
		maxListed = 5
	}
	return &Assembler{maxAmbiguousListed: maxListed}
}

// Build stamps the path's confidence and the elapsed time onto the
// response envelope.
func (a *Assembler) Build(query, answer string, path domain.ResponsePath, evidence []string, started time.Time) *domain.Response {
	return &domain.Response{
		Query:      query,
		Answer:     answer,
		Confidence: path.Confidence(),
		Evidence:   evidence,
		LogicPath:  path.String(),
		TimingMS:   time.Since(started).Milliseconds(),
	}
}

// RefusalForResolution maps a non-OK resolution outcome to its fixed
// clarification text and evidence citation.
func (a *Assembler) RefusalForResolution(resolution *domain.Resolution) (string, []string) {
	switch resolution.Status {
	case domain.AMBIGUOUS:
		return a.AmbiguityAnswer(resolution), []string{evidenceAmbiguous}
	case domain.NOT_FOUND:
		if resolution.Method == methodName {
			return answerNameNotFound, []string{evidenceNotFound}
		}
		return answerUnknownPatient, []string{evidenceNotFound}
	case domain.GENDER_MISMATCH:
		return answerWhichPatient, []string{evidenceGenderMismatch}
	default:
		return answerWhichPatient, []string{evidenceNoContext}
	}
}

// AmbiguityAnswer formats the clarification for a multi-match name lookup,
// listing at most maxAmbiguousListed candidates.
func (a *Assembler) AmbiguityAnswer(resolution *domain.Resolution) string {
	count := resolution.MatchCount
	header := fmt.Sprintf("Multiple patients found (%d matches)", count)

	limit := len(resolution.Matches)
	if limit > a.maxAmbiguousListed {
		limit = a.maxAmbiguousListed
	}
	lines := make([]string, 0, limit+1)
	for _, p := range resolution.Matches[:limit] {
		lines = append(lines, fmt.Sprintf("• %s, age %d", p.Name, p.Age))
	}
	if count > limit {
		lines = append(lines, fmt.Sprintf("• ...and %d more", count-limit))
	}

	return header + "\n\n" + strings.Join(lines, "\n") + "\n\nPlease specify the full name or add more details."
}

// FactualAnswer renders a direct field read with its evidence citation.
// Missing values fall back to fixed phrasing rather than omitting the
// sentence, so idempotent re-asks return identical text.
func (a *Assembler) FactualAnswer(patient *domain.Patient, field string) (string, []string) {
	name := patientDisplayName(patient)

	switch field {
	case fieldCondition:
		value := patient.PrimaryCondition
		if value == "" {
			value = "no known condition"
		}
		return fmt.Sprintf("%s is diagnosed with %s.", name, value), []string{evidenceCondition}
	case fieldAge:
		if patient.Age > 0 {
			return fmt.Sprintf("%s is %d years old.", name, patient.Age), []string{evidenceAge}
		}
		return fmt.Sprintf("Age information is not available for %s.", name), []string{evidenceAge}
	case fieldGender:
		value := patient.Gender
		if value == "" {
			value = "not specified"
		}
		return fmt.Sprintf("%s's gender is %s.", name, value), []string{evidenceGender}
	case "risk_level":
		value := patient.RiskLevel
		if value == "" {
			value = "not assessed"
		}
		return fmt.Sprintf("%s has a %s risk level.", name, value), []string{evidenceRiskLevel}
	default:
		return fmt.Sprintf("Information about %s is not available.", field), []string{"patients." + field}
	}
}

// SeveritySignals counts worsening and improving stems across recent visit
// notes. Each record contributes at most one hit per category.
func (a *Assembler) SeveritySignals(visits []domain.ScoredVisit) (worsening, improving int) {
	for _, visit := range visits {
		text := strings.ToLower(visit.Entry.Notes)
		for _, stem := range severityWorseningStems {
			if strings.Contains(text, stem) {
				worsening++
				break
			}
		}
		for _, stem := range severityImprovingStems {
			if strings.Contains(text, stem) {
				improving++
				break
			}
		}
	}
	return worsening, improving
}

// SeverityAnswer renders the qualitative severity assessment from the
// recorded risk level plus the dominant signal count when one side
// leads. Every variant ends with the referral sentence.
func (a *Assembler) SeverityAnswer(patient *domain.Patient, worsening, improving int) string {
	name := patientDisplayName(patient)

	parts := make([]string, 0, 3)
	switch strings.ToLower(patient.RiskLevel) {
	case "high":
		parts = append(parts, fmt.Sprintf("%s has a High risk level, indicating close monitoring is needed.", name))
	case "medium":
		parts = append(parts, fmt.Sprintf("%s has a Medium risk level, suggesting moderate concern.", name))
	case "low":
		parts = append(parts, fmt.Sprintf("%s has a Low risk level; the condition is currently manageable.", name))
	default:
		parts = append(parts, fmt.Sprintf("No formal risk level is recorded for %s.", name))
	}

	if worsening > improving {
		parts = append(parts, fmt.Sprintf("Recent records show %d concerning indicator(s).", worsening))
	} else if improving > worsening {
		parts = append(parts, fmt.Sprintf("Recent records show %d positive indicator(s).", improving))
	}

	parts = append(parts, "Consult a healthcare provider for clinical assessment.")

	return strings.Join(parts, " ")
}

func patientDisplayName(patient *domain.Patient) string {
	if patient == nil || patient.Name == "" {
		return "The patient"
	}
	return patient.Name
}
