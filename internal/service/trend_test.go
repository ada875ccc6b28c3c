package service

import (
	"strings"
	"testing"
	"time"

	"github.com/patient-insight-server/internal/domain"
)

func visitOn(year int, month time.Month, day int, notes string) domain.HistoryEntry {
	return domain.HistoryEntry{
		VisitDate: time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		Notes:     notes,
	}
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	analyzer := NewTrendAnalyzer(testLogger())

	result := analyzer.Analyze(nil)

	if result.Pattern != domain.INSUFFICIENT_DATA {
		t.Errorf("Pattern = %s, expected INSUFFICIENT_DATA", result.Pattern)
	}
	if result.VisitCount != 0 {
		t.Errorf("VisitCount = %d, expected 0", result.VisitCount)
	}
	if result.Summary != "No visit history available for trend analysis." {
		t.Errorf("Unexpected summary: %q", result.Summary)
	}
}

func TestAnalyzeOverallPatterns(t *testing.T) {
	tests := []struct {
		name      string
		notes     []string
		pattern   domain.TrendPattern
		worsening int
		improving int
	}{
		{
			name:      "worsening dominates",
			notes:     []string{"Symptoms worsened", "Acute exacerbation", "New symptoms reported"},
			pattern:   domain.WORSENING_TREND,
			worsening: 4,
			improving: 0,
		},
		{
			name:      "improvement dominates",
			notes:     []string{"Condition improved", "Much better, well-controlled"},
			pattern:   domain.IMPROVING_TREND,
			worsening: 0,
			improving: 4,
		},
		{
			name:      "mixed signals are intermittent",
			notes:     []string{"Symptoms worsened", "Condition improved"},
			pattern:   domain.INTERMITTENT,
			worsening: 1,
			improving: 1,
		},
		{
			name:      "exactly double is not a consistent trend",
			notes:     []string{"Acute flare, severe exacerbation", "Improved", "Better"},
			pattern:   domain.INTERMITTENT,
			worsening: 4,
			improving: 2,
		},
		{
			name:      "more than double is consistent",
			notes:     []string{"Worsening exacerbation, severe flare-up", "Improved", "Better"},
			pattern:   domain.WORSENING_TREND,
			worsening: 5,
			improving: 2,
		},
		{
			name:    "no indicators at all",
			notes:   []string{"Seen for annual physical", "Medication refill only"},
			pattern: domain.NO_CLEAR_TREND,
		},
		{
			name:      "stable wording reads as improvement",
			notes:     []string{"Condition stable, routine follow-up"},
			pattern:   domain.IMPROVING_TREND,
			improving: 1,
		},
	}

	analyzer := NewTrendAnalyzer(testLogger())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			history := make([]domain.HistoryEntry, 0, len(tt.notes))
			for i, notes := range tt.notes {
				history = append(history, domain.HistoryEntry{
					VisitDate: base.AddDate(0, i, 0),
					Notes:     notes,
				})
			}

			result := analyzer.Analyze(history)

			if result.Pattern != tt.pattern {
				t.Errorf("Pattern = %s, expected %s", result.Pattern, tt.pattern)
			}
			if result.WorseningCount != tt.worsening {
				t.Errorf("WorseningCount = %d, expected %d", result.WorseningCount, tt.worsening)
			}
			if result.ImprovingCount != tt.improving {
				t.Errorf("ImprovingCount = %d, expected %d", result.ImprovingCount, tt.improving)
			}
			if result.VisitCount != len(tt.notes) {
				t.Errorf("VisitCount = %d, expected %d", result.VisitCount, len(tt.notes))
			}
		})
	}
}

func TestAnalyzePerVisitDirections(t *testing.T) {
	analyzer := NewTrendAnalyzer(testLogger())

	// Deliberately out of order; analysis must run chronologically.
	history := []domain.HistoryEntry{
		visitOn(2024, 3, 1, "Condition improved"),
		visitOn(2024, 1, 1, "Symptoms worsened"),
		visitOn(2024, 2, 1, "Medication refill only"),
	}

	result := analyzer.Analyze(history)

	if len(result.PerVisit) != 3 {
		t.Fatalf("Expected 3 per-visit entries, got %d", len(result.PerVisit))
	}

	expected := []string{"WORSENING", "STABLE", "IMPROVING"}
	for i, direction := range expected {
		if result.PerVisit[i].Direction != direction {
			t.Errorf("PerVisit[%d].Direction = %s, expected %s", i, result.PerVisit[i].Direction, direction)
		}
	}
	for i := 1; i < len(result.PerVisit); i++ {
		if result.PerVisit[i].VisitDate.Before(result.PerVisit[i-1].VisitDate) {
			t.Errorf("PerVisit not chronological at index %d", i)
		}
	}
}

func TestFormatTrendContext(t *testing.T) {
	t.Run("no history", func(t *testing.T) {
		result := &domain.TrendResult{Pattern: domain.INSUFFICIENT_DATA}
		if got := FormatTrendContext(result); got != "Trend Analysis: No visit history available." {
			t.Errorf("Unexpected context: %q", got)
		}
	})

	t.Run("consistent trend omits the grounding note", func(t *testing.T) {
		result := &domain.TrendResult{
			VisitCount: 4,
			Pattern:    domain.WORSENING_TREND,
			Summary:    "Notes indicate potential worsening trend (5 worsening indicators vs 1 improvement indicators).",
		}
		got := FormatTrendContext(result)
		if strings.Contains(got, "NO consistent worsening") {
			t.Error("Consistent trend must not carry the no-pattern note")
		}
		if !strings.Contains(got, "Overall pattern: WORSENING_TREND") {
			t.Errorf("Missing pattern line in %q", got)
		}
	})

	t.Run("inconsistent trend states the absence outright", func(t *testing.T) {
		result := &domain.TrendResult{
			VisitCount: 3,
			Pattern:    domain.INTERMITTENT,
			Summary:    "Notes show intermittent pattern with both improvements and exacerbations (2 improving, 2 worsening).",
		}
		got := FormatTrendContext(result)
		if !strings.Contains(got, "- NOTE: There is NO consistent worsening pattern documented in the visit notes.") {
			t.Errorf("Missing grounding note in %q", got)
		}
	})
}
