package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// Per-visit trend directions
const (
	visitWorsening = "WORSENING"
	visitImproving = "IMPROVING"
	visitStable    = "STABLE"
)

// Progression keyword sets. Generic symptom language only, nothing
// condition-specific, so the analysis stays valid across conditions.
var worseningKeywords = []string{
	"exacerbation", "worsened", "worsening", "deteriorated", "deteriorating",
	"declined", "declining", "acute", "flare", "flare-up",
	"new symptoms", "increased", "elevated", "severe", "concerning",
}

var improvementKeywords = []string{
	"improved", "improving", "better", "resolved", "stable",
	"well-controlled", "controlled", "maintained", "normal",
	"progressing well", "recovery", "recovered",
}

var neutralKeywords = []string{
	"routine", "follow-up", "check", "review", "monitoring",
	"no acute", "no change", "consistent", "unchanged",
}

// TrendAnalyzer derives a progression pattern from documented visit
// notes. It grounds temporal questions before any text generation runs,
// so a claim like "getting worse" always traces back to counted
// indicators instead of the generation engine's impression.
type TrendAnalyzer struct {
	logger *logrus.Logger
}

// NewTrendAnalyzer creates a trend analyzer.
func NewTrendAnalyzer(logger *logrus.Logger) *TrendAnalyzer {
	return &TrendAnalyzer{logger: logger}
}

// Analyze counts progression indicators across the visit history and
// classifies the overall pattern. The input may arrive in any order;
// analysis always runs chronologically.
func (a *TrendAnalyzer) Analyze(history []domain.HistoryEntry) *domain.TrendResult {
	if len(history) == 0 {
		return &domain.TrendResult{
			VisitCount: 0,
			Pattern:    domain.INSUFFICIENT_DATA,
			Summary:    "No visit history available for trend analysis.",
		}
	}

	entries := append([]domain.HistoryEntry(nil), history...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].VisitDate.Before(entries[j].VisitDate)
	})

	result := &domain.TrendResult{
		VisitCount: len(entries),
		PerVisit:   make([]domain.VisitTrend, 0, len(entries)),
	}

	for _, entry := range entries {
		worsening, improving, neutral := countIndicators(entry.Notes)
		result.WorseningCount += worsening
		result.ImprovingCount += improving
		result.NeutralCount += neutral

		direction := visitStable
		if worsening > improving {
			direction = visitWorsening
		} else if improving > worsening {
			direction = visitImproving
		}

		result.PerVisit = append(result.PerVisit, domain.VisitTrend{
			VisitDate: entry.VisitDate,
			Direction: direction,
			Worsening: worsening,
			Improving: improving,
			Neutral:   neutral,
		})
	}

	result.Pattern, result.Summary = overallPattern(result.WorseningCount, result.ImprovingCount, result.NeutralCount)

	a.logger.WithFields(logrus.Fields{
		"visit_count": result.VisitCount,
		"pattern":     string(result.Pattern),
		"worsening":   result.WorseningCount,
		"improving":   result.ImprovingCount,
	}).Debug("Trend analysis complete")

	return result
}

// overallPattern applies the aggregate classification rules. A trend is
// only called consistent when one side outnumbers the other by more
// than double.
func overallPattern(worsening, improving, neutral int) (domain.TrendPattern, string) {
	switch {
	case worsening == 0 && improving == 0:
		return domain.NO_CLEAR_TREND,
			"Visit notes do not contain explicit indicators of symptom progression or worsening."
	case worsening > improving*2:
		return domain.WORSENING_TREND,
			fmt.Sprintf("Notes indicate potential worsening trend (%d worsening indicators vs %d improvement indicators).", worsening, improving)
	case improving > worsening*2:
		return domain.IMPROVING_TREND,
			fmt.Sprintf("Notes indicate improvement trend (%d improvement indicators vs %d worsening indicators).", improving, worsening)
	case worsening > 0 && improving > 0:
		return domain.INTERMITTENT,
			fmt.Sprintf("Notes show intermittent pattern with both improvements and exacerbations (%d improving, %d worsening).", improving, worsening)
	default:
		return domain.STABLE,
			fmt.Sprintf("Notes indicate generally stable condition (%d routine/stable indicators).", neutral)
	}
}

// countIndicators tallies keyword hits per category in one visit's notes.
func countIndicators(notes string) (worsening, improving, neutral int) {
	if notes == "" {
		return 0, 0, 0
	}
	lowered := strings.ToLower(notes)

	for _, kw := range worseningKeywords {
		if strings.Contains(lowered, kw) {
			worsening++
		}
	}
	for _, kw := range improvementKeywords {
		if strings.Contains(lowered, kw) {
			improving++
		}
	}
	for _, kw := range neutralKeywords {
		if strings.Contains(lowered, kw) {
			neutral++
		}
	}
	return worsening, improving, neutral
}

// FormatTrendContext renders the analysis as a prompt block. Whenever
// the pattern is anything but consistently worsening or improving, the
// block states outright that no consistent worsening is documented;
// generated text that claims otherwise is contradicting its own prompt.
func FormatTrendContext(result *domain.TrendResult) string {
	if result == nil || result.Pattern == domain.INSUFFICIENT_DATA {
		return "Trend Analysis: No visit history available."
	}

	lines := []string{
		"Trend Analysis:",
		fmt.Sprintf("- Total visits analyzed: %d", result.VisitCount),
		fmt.Sprintf("- Overall pattern: %s", result.Pattern),
		fmt.Sprintf("- %s", result.Summary),
	}

	if !result.Pattern.Consistent() {
		lines = append(lines, "- NOTE: There is NO consistent worsening pattern documented in the visit notes.")
	}

	return strings.Join(lines, "\n")
}
