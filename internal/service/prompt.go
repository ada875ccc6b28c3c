package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/patient-insight-server/internal/domain"
)

// systemPrompt is the locked preamble for every grounded generation call.
// Wording changes here shift the engine's refusal behavior, so treat the
// text as frozen.
const systemPrompt = `You are a clinical assistant AI.

Your task is to answer questions ONLY using the patient data provided below.
Do not use prior knowledge.
Do not guess or infer information that is not explicitly present.

If the requested information is not available in the data, clearly say:
'I do not have enough information to answer that.'

Be concise, factual, and neutral.
Do not provide medical advice.`

// summaryPromptHistoryLimit caps the visit lines embedded in a summary
// generation prompt.
const summaryPromptHistoryLimit = 5

// buildAnswerPrompt assembles the grounded prompt for generated answers:
// the locked system preamble, the patient demographics block, the visit
// history block when records exist, optional analysis context blocks, and
// the user question last. Sections are separated by blank lines.
func buildAnswerPrompt(patient *domain.Patient, history []domain.HistoryEntry, query string, extraContext ...string) string {
	sections := []string{systemPrompt, formatPatientInfo(patient)}

	if block := formatHistoryBlock(history); block != "" {
		sections = append(sections, block)
	}
	for _, extra := range extraContext {
		if extra != "" {
			sections = append(sections, extra)
		}
	}
	sections = append(sections, "Question: "+query)

	return strings.Join(sections, "\n\n")
}

// buildSummaryPrompt assembles the patient-summary generation prompt.
// Missing demographics render as "Unknown" rather than being omitted so
// the engine never fills gaps from prior knowledge.
func buildSummaryPrompt(patient *domain.Patient, history []domain.HistoryEntry) string {
	return fmt.Sprintf(`You are a clinical assistant AI.
Generate a concise patient summary using ONLY the data below.
Do not infer or add new information.

Patient Information:
- Name: %s
- Age: %s
- Gender: %s
- Primary Condition: %s
- Risk Level: %s

Visit History:
%s

Generate a brief summary including:
1. Demographics
2. Primary condition
3. High-level visit trends (no specific dates unless critical)

Summary:`,
		orUnknown(patient.Name),
		ageOrUnknown(patient.Age),
		orUnknown(patient.Gender),
		orUnknown(patient.PrimaryCondition),
		orUnknown(patient.RiskLevel),
		formatSummaryHistory(history))
}

// formatPatientInfo renders the demographics block, omitting empty fields.
func formatPatientInfo(patient *domain.Patient) string {
	lines := []string{"Patient Information:"}

	if patient.Name != "" {
		lines = append(lines, "- Name: "+patient.Name)
	}
	if patient.Age > 0 {
		lines = append(lines, fmt.Sprintf("- Age: %d", patient.Age))
	}
	if patient.Gender != "" {
		lines = append(lines, "- Gender: "+patient.Gender)
	}
	if patient.RiskLevel != "" {
		lines = append(lines, "- Risk Level: "+patient.RiskLevel)
	}
	if patient.PrimaryCondition != "" {
		lines = append(lines, "- Primary Condition: "+patient.PrimaryCondition)
	}

	return strings.Join(lines, "\n")
}

// formatHistoryBlock renders visit records as a numbered list with indented
// detail lines. Returns "" when there are no records.
func formatHistoryBlock(history []domain.HistoryEntry) string {
	if len(history) == 0 {
		return ""
	}

	lines := []string{"Patient History:"}
	for i, record := range history {
		lines = append(lines, fmt.Sprintf("%d. Date: %s", i+1, visitDateString(record.VisitDate)))
		if record.Notes != "" {
			lines = append(lines, "   Notes: "+record.Notes)
		}
		if record.Treatment != "" {
			lines = append(lines, "   Treatment: "+record.Treatment)
		}
		if record.Clinician != "" {
			lines = append(lines, "   Clinician: "+record.Clinician)
		}
	}

	return strings.Join(lines, "\n")
}

// formatSummaryHistory renders at most summaryPromptHistoryLimit visit
// lines for the summary prompt.
func formatSummaryHistory(history []domain.HistoryEntry) string {
	if len(history) == 0 {
		return "No visit history available."
	}

	limit := len(history)
	if limit > summaryPromptHistoryLimit {
		limit = summaryPromptHistoryLimit
	}

	lines := make([]string, 0, limit)
	for i, record := range history[:limit] {
		notes := record.Notes
		if notes == "" {
			notes = "No notes"
		}
		lines = append(lines, fmt.Sprintf("%d. %s: %s", i+1, visitDateString(record.VisitDate), notes))
	}

	return strings.Join(lines, "\n")
}

func visitDateString(t time.Time) string {
	if t.IsZero() {
		return "unknown date"
	}
	return t.Format("2006-01-02")
}

func orUnknown(value string) string {
	if value == "" {
		return "Unknown"
	}
	return value
}

func ageOrUnknown(age int) string {
	if age <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%d", age)
}
