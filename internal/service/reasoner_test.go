package service

import (
	"strings"
	"testing"

	"github.com/patient-insight-server/internal/domain"
)

func newTestReasoner(t *testing.T) *Reasoner {
	t.Helper()
	reasoner, err := NewReasoner(testPipelineConfig(t), testLogger())
	if err != nil {
		t.Fatalf("NewReasoner() error = %v", err)
	}
	return reasoner
}

func activationFixture() (string, *domain.Resolution, []domain.HistoryEntry, *domain.VitalsLabsSnapshot) {
	query := "Looking at everything, how has she changed overall?"
	resolution := &domain.Resolution{Status: domain.OK, PatientID: 1}
	history := []domain.HistoryEntry{
		visitOn(2024, 1, 10, "Routine follow-up"),
		visitOn(2024, 4, 2, "Acute exacerbation"),
	}
	snapshot := &domain.VitalsLabsSnapshot{
		VitalsCount:    4,
		AbnormalVitals: 1,
		LabsCount:      3,
		AbnormalLabs:   1,
		EncounterIDs:   []int64{10, 11},
	}
	return query, resolution, history, snapshot
}

func TestShouldActivateAllRulesPass(t *testing.T) {
	reasoner := newTestReasoner(t)
	query, resolution, history, snapshot := activationFixture()

	decision := reasoner.ShouldActivate(domain.COMPLEX, query, resolution, history, snapshot)

	if !decision.Activated {
		t.Fatalf("Expected activation, got refusal: %s", decision.Reason)
	}
	if decision.Reason != "All activation rules passed" {
		t.Errorf("Reason = %q", decision.Reason)
	}
}

func TestShouldActivateFirstFailureWins(t *testing.T) {
	reasoner := newTestReasoner(t)

	tests := []struct {
		name   string
		mutate func(intent *domain.Intent, query *string, res **domain.Resolution, history *[]domain.HistoryEntry, snap **domain.VitalsLabsSnapshot)
		reason string
	}{
		{
			name: "wrong intent",
			mutate: func(intent *domain.Intent, _ *string, _ **domain.Resolution, _ *[]domain.HistoryEntry, _ **domain.VitalsLabsSnapshot) {
				*intent = domain.SUMMARY
			},
			reason: "Not a COMPLEX query type",
		},
		{
			name: "ambiguous patient",
			mutate: func(_ *domain.Intent, _ *string, res **domain.Resolution, _ *[]domain.HistoryEntry, _ **domain.VitalsLabsSnapshot) {
				*res = &domain.Resolution{Status: domain.AMBIGUOUS, MatchCount: 2}
			},
			reason: "Patient identity is ambiguous or invalid",
		},
		{
			name: "missing resolution",
			mutate: func(_ *domain.Intent, _ *string, res **domain.Resolution, _ *[]domain.HistoryEntry, _ **domain.VitalsLabsSnapshot) {
				*res = nil
			},
			reason: "Patient identity is ambiguous or invalid",
		},
		{
			name: "no synthesis phrasing",
			mutate: func(_ *domain.Intent, query *string, _ **domain.Resolution, _ *[]domain.HistoryEntry, _ **domain.VitalsLabsSnapshot) {
				*query = "How has her asthma changed since last year?"
			},
			reason: "No synthesis signals detected in query",
		},
		{
			name: "single data source",
			mutate: func(_ *domain.Intent, _ *string, _ **domain.Resolution, history *[]domain.HistoryEntry, snap **domain.VitalsLabsSnapshot) {
				*history = nil
				(*snap).LabsCount = 0
				(*snap).AbnormalLabs = 0
			},
			reason: "Insufficient data sources (1/2 required)",
		},
		{
			name: "history without temporal variation",
			mutate: func(_ *domain.Intent, _ *string, _ **domain.Resolution, history *[]domain.HistoryEntry, _ **domain.VitalsLabsSnapshot) {
				*history = []domain.HistoryEntry{
					visitOn(2024, 1, 10, "Routine follow-up"),
					visitOn(2024, 1, 10, "Second note same day"),
				}
			},
			reason: "No temporal variation in history records",
		},
		{
			name: "uniformly normal signals",
			mutate: func(_ *domain.Intent, _ *string, _ **domain.Resolution, _ *[]domain.HistoryEntry, snap **domain.VitalsLabsSnapshot) {
				(*snap).AbnormalVitals = 0
				(*snap).AbnormalLabs = 0
			},
			reason: "No mixed signals (abnormal + normal) in vitals/labs",
		},
		{
			name: "uniformly abnormal signals",
			mutate: func(_ *domain.Intent, _ *string, _ **domain.Resolution, _ *[]domain.HistoryEntry, snap **domain.VitalsLabsSnapshot) {
				(*snap).AbnormalVitals = (*snap).VitalsCount
				(*snap).AbnormalLabs = (*snap).LabsCount
			},
			reason: "No mixed signals (abnormal + normal) in vitals/labs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := domain.COMPLEX
			query, resolution, history, snapshot := activationFixture()
			tt.mutate(&intent, &query, &resolution, &history, &snapshot)

			decision := reasoner.ShouldActivate(intent, query, resolution, history, snapshot)

			if decision.Activated {
				t.Fatal("Expected activation to be refused")
			}
			if decision.Reason != tt.reason {
				t.Errorf("Reason = %q, expected %q", decision.Reason, tt.reason)
			}
		})
	}
}

func TestCrossSignalSummaryBuckets(t *testing.T) {
	reasoner := newTestReasoner(t)
	_, _, history, _ := activationFixture()

	tests := []struct {
		name     string
		snapshot *domain.VitalsLabsSnapshot
		vitals   string
		labs     string
	}{
		{
			name:     "mostly normal",
			snapshot: &domain.VitalsLabsSnapshot{VitalsCount: 10, AbnormalVitals: 1, LabsCount: 10, AbnormalLabs: 1},
			vitals:   "predominantly within expected ranges",
			labs:     "results predominantly within reference ranges",
		},
		{
			name:     "intermittent abnormality",
			snapshot: &domain.VitalsLabsSnapshot{VitalsCount: 10, AbnormalVitals: 3, LabsCount: 10, AbnormalLabs: 3},
			vitals:   "intermittent readings outside expected ranges",
			labs:     "some results outside reference ranges",
		},
		{
			name:     "frequent abnormality",
			snapshot: &domain.VitalsLabsSnapshot{VitalsCount: 10, AbnormalVitals: 6, LabsCount: 10, AbnormalLabs: 5},
			vitals:   "frequent readings outside expected ranges",
			labs:     "multiple results outside reference ranges",
		},
		{
			name:     "bucket edges are exclusive",
			snapshot: &domain.VitalsLabsSnapshot{VitalsCount: 4, AbnormalVitals: 1, LabsCount: 5, AbnormalLabs: 1},
			vitals:   "intermittent readings outside expected ranges",
			labs:     "some results outside reference ranges",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := reasoner.CrossSignalSummary(history, tt.snapshot, nil)

			if !strings.HasPrefix(summary, "Cross-Signal Pattern Summary (Observational Only):") {
				t.Errorf("Missing header in %q", summary)
			}
			if !strings.Contains(summary, "- Vital signs: "+tt.vitals) {
				t.Errorf("Expected vitals bucket %q in:\n%s", tt.vitals, summary)
			}
			if !strings.Contains(summary, "- Laboratory tests: "+tt.labs) {
				t.Errorf("Expected labs bucket %q in:\n%s", tt.labs, summary)
			}
			if !strings.Contains(summary, "Note: This summary reflects documented data only and does not constitute clinical assessment.") {
				t.Errorf("Missing limitation note in %q", summary)
			}
		})
	}
}

func TestCrossSignalSummaryTemporalPattern(t *testing.T) {
	reasoner := newTestReasoner(t)
	_, _, history, snapshot := activationFixture()

	tests := []struct {
		pattern  domain.TrendPattern
		expected string
	}{
		{domain.STABLE, "Records suggest a relatively stable pattern over the documented period."},
		{domain.IMPROVING_TREND, "Records suggest an improving pattern over the documented period."},
		{domain.WORSENING_TREND, "Records suggest changes in condition metrics over the documented period."},
		{domain.INTERMITTENT, "Records suggest variable patterns with fluctuations over time."},
		{domain.NO_CLEAR_TREND, "Pattern across records is not clearly defined."},
	}

	for _, tt := range tests {
		t.Run(string(tt.pattern), func(t *testing.T) {
			summary := reasoner.CrossSignalSummary(history, snapshot, &domain.TrendResult{Pattern: tt.pattern})
			if !strings.Contains(summary, "- Temporal pattern: "+tt.expected) {
				t.Errorf("Expected %q in:\n%s", tt.expected, summary)
			}
		})
	}
}

func TestCrossSignalSummarySurvivesOwnFilter(t *testing.T) {
	reasoner := newTestReasoner(t)
	_, _, history, snapshot := activationFixture()

	// The worsening wording is the dangerous one; the summary must never
	// emit vocabulary its own filter would reject.
	summary := reasoner.CrossSignalSummary(history, snapshot, &domain.TrendResult{Pattern: domain.WORSENING_TREND})

	valid, violations := reasoner.ValidateOutput(summary, "")
	if !valid {
		t.Errorf("Cross-signal summary tripped the language filter: %v", violations)
	}
}

func TestCrossSignalSummaryInsufficientData(t *testing.T) {
	reasoner := newTestReasoner(t)
	_, _, history, snapshot := activationFixture()

	if got := reasoner.CrossSignalSummary(nil, snapshot, nil); got != "" {
		t.Errorf("Expected empty summary without history, got %q", got)
	}
	if got := reasoner.CrossSignalSummary(history, nil, nil); got != "" {
		t.Errorf("Expected empty summary without snapshot, got %q", got)
	}
}

func TestValidateOutput(t *testing.T) {
	reasoner := newTestReasoner(t)

	tests := []struct {
		name       string
		text       string
		query      string
		valid      bool
		violations []string
	}{
		{
			name:  "clean text",
			text:  "Records show three documented visits with routine notes.",
			valid: true,
		},
		{
			name:  "empty text",
			valid: true,
		},
		{
			name:       "prescriptive phrase",
			text:       "The data suggests this requires intervention promptly.",
			violations: []string{"requires intervention"},
		},
		{
			name:       "multiple violations",
			text:       "This is concerning and the pattern looks severe.",
			violations: []string{"concerning", "severe"},
		},
		{
			name:       "case insensitive",
			text:       "URGENT review advised.",
			violations: []string{"urgent"},
		},
		{
			name:       "substring match",
			text:       "Mobility is severely limited per notes.",
			violations: []string{"severe"},
		},
		{
			name:  "query echo is exempt",
			text:  `You asked "is her condition severe?" and the records show routine visits only.`,
			query: `Is her condition severe?`,
			valid: true,
		},
		{
			name:       "violation outside the echo still counts",
			text:       `You asked "is her condition severe?" and yes, it is severe.`,
			query:      `Is her condition severe?`,
			violations: []string{"severe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, violations := reasoner.ValidateOutput(tt.text, tt.query)

			if valid != tt.valid && len(tt.violations) == 0 {
				t.Fatalf("ValidateOutput() valid = %v, expected %v", valid, tt.valid)
			}
			if len(tt.violations) > 0 {
				if valid {
					t.Fatal("Expected validation failure")
				}
				if len(violations) != len(tt.violations) {
					t.Fatalf("Violations = %v, expected %v", violations, tt.violations)
				}
				for i, v := range tt.violations {
					if violations[i] != v {
						t.Errorf("Violations[%d] = %q, expected %q", i, violations[i], v)
					}
				}
			}
		})
	}
}

func TestFinalizePassesCleanText(t *testing.T) {
	reasoner := newTestReasoner(t)

	result := reasoner.Finalize(domain.ANALYTICAL, "Records show routine visits only.", "How has she changed?")

	if result.Fallback {
		t.Fatal("Clean text should not fall back")
	}
	if result.Level != domain.ANALYTICAL {
		t.Errorf("Level = %v, expected ANALYTICAL", result.Level)
	}
	if result.Text != "Records show routine visits only." {
		t.Errorf("Text = %q, expected the original text", result.Text)
	}
	if result.Violations != nil {
		t.Errorf("Violations = %v, expected none", result.Violations)
	}
}

func TestFinalizeDiscardsForbiddenText(t *testing.T) {
	reasoner := newTestReasoner(t)

	result := reasoner.Finalize(domain.SYNTHETIC, "The pattern is concerning and severe.", "How has she changed?")

	if !result.Fallback {
		t.Fatal("Forbidden text should fall back")
	}
	if result.Text != FallbackAnswer {
		t.Errorf("Text = %q, expected the fixed fallback", result.Text)
	}
	if result.Level != domain.SYNTHETIC {
		t.Errorf("Level = %v, expected SYNTHETIC", result.Level)
	}
	if len(result.Violations) != 2 {
		t.Fatalf("Violations = %v, expected concerning and severe", result.Violations)
	}
}
