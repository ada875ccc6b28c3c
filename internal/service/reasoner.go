package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// FallbackAnswer replaces any generated text discarded by the language
// filter and any synthesis attempt with insufficient data. Fixed wording
// that never came out of the generation engine.
const FallbackAnswer = "I do not have enough consistent information to summarize patterns across multiple data sources."

// Reasoner gates the escalation to synthetic cross-signal reasoning and
// polices every piece of generated text. Activation requires all six
// rules to pass; the first failure is reported verbatim so the audit
// trail shows exactly why a query stayed at a lower level.
type Reasoner struct {
	logger            *logrus.Logger
	synthesisPatterns []*regexp.Regexp
	forbiddenWords    []string
}

// NewReasoner compiles the synthesis signal patterns and normalizes the
// forbidden vocabulary.
func NewReasoner(config *domain.PipelineConfig, logger *logrus.Logger) (*Reasoner, error) {
	patterns, err := compilePatterns(config.SynthesisPatterns)
	if err != nil {
		return nil, fmt.Errorf("synthesis patterns: %w", err)
	}

	words := make([]string, 0, len(config.ForbiddenWords))
	for _, w := range config.ForbiddenWords {
		words = append(words, strings.ToLower(w))
	}

	return &Reasoner{
		logger:            logger,
		synthesisPatterns: patterns,
		forbiddenWords:    words,
	}, nil
}

// ShouldActivate evaluates the activation rules in order and reports the
// first failure. All six must pass for SYNTHETIC level.
func (r *Reasoner) ShouldActivate(intent domain.Intent, query string, resolution *domain.Resolution, history []domain.HistoryEntry, snapshot *domain.VitalsLabsSnapshot) domain.ActivationDecision {
	// Rule 1: only COMPLEX queries may escalate.
	if intent != domain.COMPLEX {
		return domain.ActivationDecision{Reason: "Not a COMPLEX query type"}
	}

	// Rule 2: the patient must be unambiguously resolved.
	if resolution == nil || !resolution.Status.Resolved() {
		return domain.ActivationDecision{Reason: "Patient identity is ambiguous or invalid"}
	}

	// Rule 3: the query itself must ask for synthesis.
	if !r.hasSynthesisSignal(query) {
		return domain.ActivationDecision{Reason: "No synthesis signals detected in query"}
	}

	// Rule 4: at least two distinct data sources with data.
	sources := countDataSources(len(history), snapshot)
	if sources < 2 {
		return domain.ActivationDecision{Reason: fmt.Sprintf("Insufficient data sources (%d/2 required)", sources)}
	}

	// Rule 5: history must span more than a single point in time.
	if !hasTemporalVariation(history) {
		return domain.ActivationDecision{Reason: "No temporal variation in history records"}
	}

	// Rule 6: signals must be mixed, not uniformly normal or abnormal.
	if !hasMixedSignals(snapshot) {
		return domain.ActivationDecision{Reason: "No mixed signals (abnormal + normal) in vitals/labs"}
	}

	r.logger.WithFields(logrus.Fields{
		"history_count": len(history),
		"vitals_count":  snapshot.VitalsCount,
		"labs_count":    snapshot.LabsCount,
	}).Info("Synthetic reasoning activated")

	return domain.ActivationDecision{Activated: true, Reason: "All activation rules passed"}
}

// EvaluateLevel returns the reasoning level for a query: the intent's
// base level, upgraded to SYNTHETIC only when every activation rule
// passes. FACTUAL, SEVERITY and REFUSAL answers never touch the
// generation engine, so they sit at NONE.
func (r *Reasoner) EvaluateLevel(intent domain.Intent, query string, resolution *domain.Resolution, history []domain.HistoryEntry, snapshot *domain.VitalsLabsSnapshot) (domain.ReasoningLevel, domain.ActivationDecision) {
	decision := r.ShouldActivate(intent, query, resolution, history, snapshot)
	if decision.Activated {
		return domain.SYNTHETIC, decision
	}

	switch intent {
	case domain.SUMMARY:
		return domain.DESCRIPTIVE, decision
	case domain.COMPLEX:
		return domain.ANALYTICAL, decision
	default:
		return domain.NONE, decision
	}
}

// CrossSignalSummary renders the observational block passed to the
// generation engine on the synthetic path. Qualitative buckets only, no
// raw values, and wording chosen to survive the language filter.
func (r *Reasoner) CrossSignalSummary(history []domain.HistoryEntry, snapshot *domain.VitalsLabsSnapshot, trend *domain.TrendResult) string {
	if len(history) == 0 || snapshot == nil {
		return ""
	}

	lines := []string{
		"Cross-Signal Pattern Summary (Observational Only):",
		fmt.Sprintf("- Data span: %d visit records, %d encounters documented", len(history), len(snapshot.EncounterIDs)),
	}

	if snapshot.VitalsCount > 0 {
		pct := float64(snapshot.AbnormalVitals) / float64(snapshot.VitalsCount) * 100
		var pattern string
		switch {
		case pct < 25:
			pattern = "predominantly within expected ranges"
		case pct < 50:
			pattern = "intermittent readings outside expected ranges"
		default:
			pattern = "frequent readings outside expected ranges"
		}
		lines = append(lines, "- Vital signs: "+pattern)
	}

	if snapshot.LabsCount > 0 {
		pct := float64(snapshot.AbnormalLabs) / float64(snapshot.LabsCount) * 100
		var pattern string
		switch {
		case pct < 20:
			pattern = "results predominantly within reference ranges"
		case pct < 40:
			pattern = "some results outside reference ranges"
		default:
			pattern = "multiple results outside reference ranges"
		}
		lines = append(lines, "- Laboratory tests: "+pattern)
	}

	if trend != nil {
		var stability string
		switch trend.Pattern {
		case domain.STABLE:
			stability = "Records suggest a relatively stable pattern over the documented period."
		case domain.IMPROVING_TREND:
			stability = "Records suggest an improving pattern over the documented period."
		case domain.WORSENING_TREND:
			// Neutral phrasing; "worsening" is itself forbidden vocabulary.
			stability = "Records suggest changes in condition metrics over the documented period."
		case domain.INTERMITTENT:
			stability = "Records suggest variable patterns with fluctuations over time."
		default:
			stability = "Pattern across records is not clearly defined."
		}
		lines = append(lines, "- Temporal pattern: "+stability)
	}

	lines = append(lines, "", "Note: This summary reflects documented data only and does not constitute clinical assessment.")
	return strings.Join(lines, "\n")
}

// Finalize applies the language filter to generated text and packages
// the outcome. A violation discards the text: the result carries the
// fixed fallback and the violating terms instead, and the caller decides
// what to do with the discarded original.
func (r *Reasoner) Finalize(level domain.ReasoningLevel, text, query string) *domain.ReasoningResult {
	if valid, violations := r.ValidateOutput(text, query); !valid {
		return &domain.ReasoningResult{
			Level:      level,
			Text:       FallbackAnswer,
			Fallback:   true,
			Violations: violations,
		}
	}
	return &domain.ReasoningResult{Level: level, Text: text}
}

// ValidateOutput scans generated text for forbidden vocabulary. Any
// verbatim echo of the user's own query is excluded first, so a word the
// user typed cannot poison an otherwise clean answer. A violation is
// fatal to the generation attempt; there is no retry.
func (r *Reasoner) ValidateOutput(text, query string) (bool, []string) {
	if text == "" {
		return true, nil
	}

	lowered := strings.ToLower(text)
	if echo := strings.ToLower(strings.TrimSpace(query)); echo != "" {
		lowered = strings.ReplaceAll(lowered, echo, " ")
	}

	var violations []string
	for _, word := range r.forbiddenWords {
		if strings.Contains(lowered, word) {
			violations = append(violations, word)
		}
	}

	if len(violations) > 0 {
		r.logger.WithField("violations", strings.Join(violations, ",")).Warn("Generated text contains forbidden language")
		return false, violations
	}
	return true, nil
}

func (r *Reasoner) hasSynthesisSignal(query string) bool {
	return matchAny(r.synthesisPatterns, strings.ToLower(strings.TrimSpace(query)))
}

// countDataSources counts distinct sources with at least one record.
func countDataSources(historyCount int, snapshot *domain.VitalsLabsSnapshot) int {
	count := 0
	if historyCount > 0 {
		count++
	}
	if snapshot != nil && snapshot.VitalsCount > 0 {
		count++
	}
	if snapshot != nil && snapshot.LabsCount > 0 {
		count++
	}
	return count
}

// hasTemporalVariation requires at least two history entries with
// distinct recorded dates.
func hasTemporalVariation(history []domain.HistoryEntry) bool {
	if len(history) < 2 {
		return false
	}
	dates := make(map[int64]struct{}, len(history))
	for _, entry := range history {
		if !entry.VisitDate.IsZero() {
			dates[entry.VisitDate.Unix()] = struct{}{}
		}
	}
	return len(dates) >= 2
}

// hasMixedSignals requires at least one abnormal and one normal reading
// across vitals and labs combined.
func hasMixedSignals(snapshot *domain.VitalsLabsSnapshot) bool {
	if snapshot == nil {
		return false
	}
	hasAbnormal := snapshot.AbnormalVitals > 0 || snapshot.AbnormalLabs > 0
	hasNormal := snapshot.NormalVitals() > 0 || snapshot.NormalLabs() > 0
	return hasAbnormal && hasNormal
}
