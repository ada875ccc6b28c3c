package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patient-insight-server/internal/domain"
)

func TestRecencyScoreBands(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		daysAgo  int
		expected float64
	}{
		{"last week", 5, 10},
		{"band edge at 30 days", 30, 10},
		{"just past a month", 31, 8},
		{"one quarter", 90, 8},
		{"half a year", 120, 6},
		{"within a year", 250, 4},
		{"within two years", 500, 2},
		{"ancient history", 900, 1},
		{"future dated entry", -3, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visit := now.AddDate(0, 0, -tt.daysAgo)
			if got := recencyScore(visit, now); got != tt.expected {
				t.Errorf("recencyScore(%d days ago) = %v, expected %v", tt.daysAgo, got, tt.expected)
			}
		})
	}

	t.Run("missing visit date scores zero", func(t *testing.T) {
		if got := recencyScore(time.Time{}, now); got != 0 {
			t.Errorf("recencyScore(zero) = %v, expected 0", got)
		}
	})
}

func TestClinicalScore(t *testing.T) {
	tests := []struct {
		name      string
		notes     string
		treatment string
		expected  float64
	}{
		{
			name:     "routine visit scores negative",
			notes:    "Routine follow-up, condition stable",
			expected: -4,
		},
		{
			name:     "acute event scores high",
			notes:    "Emergency hospitalization after exacerbation",
			expected: 11,
		},
		{
			name:     "treatment changes count",
			notes:    "Adjusted medication, new symptoms reported",
			expected: 5,
		},
		{
			name:      "treatment field contributes",
			treatment: "Surgery scheduled",
			expected:  4,
		},
		{
			name:     "improvement signals",
			notes:    "Condition improved, full recovery expected",
			expected: 4,
		},
		{
			name:     "no signals",
			notes:    "Patient seen for annual physical",
			expected: 0,
		},
		{
			name:     "empty notes",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clinicalScore(tt.notes, tt.treatment); got != tt.expected {
				t.Errorf("clinicalScore(%q, %q) = %v, expected %v", tt.notes, tt.treatment, got, tt.expected)
			}
		})
	}
}

func TestWeightedHistoryKeepsOldAcuteEvent(t *testing.T) {
	now := time.Now()
	source := fixtureSource()
	source.history = map[int64][]domain.HistoryEntry{
		1: {
			{RecordID: 1, PatientID: 1, VisitDate: now.AddDate(0, 0, -700), Notes: "Emergency hospitalization for acute exacerbation"},
			{RecordID: 2, PatientID: 1, VisitDate: now.AddDate(0, 0, -150), Notes: "Routine follow-up, stable"},
			{RecordID: 3, PatientID: 1, VisitDate: now.AddDate(0, 0, -120), Notes: "Routine follow-up, stable"},
			{RecordID: 4, PatientID: 1, VisitDate: now.AddDate(0, 0, -90), Notes: "Routine follow-up, stable"},
			{RecordID: 5, PatientID: 1, VisitDate: now.AddDate(0, 0, -60), Notes: "Routine follow-up, stable"},
			{RecordID: 6, PatientID: 1, VisitDate: now.AddDate(0, 0, -30), Notes: "Routine follow-up, stable"},
			{RecordID: 7, PatientID: 1, VisitDate: now.AddDate(0, 0, -7), Notes: "Routine follow-up, stable"},
		},
	}
	retriever := NewRetriever(source, testPipelineConfig(t), testLogger())

	scored, err := retriever.WeightedHistory(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeightedHistory() error = %v", err)
	}

	if len(scored) != 5 {
		t.Fatalf("Expected 5 selected visits, got %d", len(scored))
	}

	found := false
	for _, sv := range scored {
		if sv.Entry.RecordID == 1 {
			found = true
		}
	}
	if !found {
		t.Error("Old acute hospitalization should outrank recent routine visits")
	}
}

func TestWeightedHistoryChronologicalOrder(t *testing.T) {
	now := time.Now()
	source := fixtureSource()
	source.history = map[int64][]domain.HistoryEntry{
		1: {
			{RecordID: 1, PatientID: 1, VisitDate: now.AddDate(0, 0, -200), Notes: "New symptoms, adjusted treatment"},
			{RecordID: 2, PatientID: 1, VisitDate: now.AddDate(0, 0, -20), Notes: "Condition worsened"},
			{RecordID: 3, PatientID: 1, VisitDate: now.AddDate(0, 0, -100), Notes: "Complication noted"},
		},
	}
	retriever := NewRetriever(source, testPipelineConfig(t), testLogger())

	scored, err := retriever.WeightedHistory(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeightedHistory() error = %v", err)
	}

	if len(scored) != 3 {
		t.Fatalf("Expected all 3 visits selected, got %d", len(scored))
	}
	for i := 1; i < len(scored); i++ {
		if scored[i].Entry.VisitDate.Before(scored[i-1].Entry.VisitDate) {
			t.Errorf("Selected visits not in chronological order at index %d", i)
		}
	}
}

func TestWeightedHistoryScoreComposition(t *testing.T) {
	now := time.Now()
	source := fixtureSource()
	source.history = map[int64][]domain.HistoryEntry{
		1: {
			{RecordID: 1, PatientID: 1, VisitDate: now.AddDate(0, 0, -7), Notes: "Emergency visit"},
		},
	}
	retriever := NewRetriever(source, testPipelineConfig(t), testLogger())

	scored, err := retriever.WeightedHistory(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeightedHistory() error = %v", err)
	}
	if len(scored) != 1 {
		t.Fatalf("Expected 1 visit, got %d", len(scored))
	}

	sv := scored[0]
	if sv.RecencyScore != 10 {
		t.Errorf("RecencyScore = %v, expected 10", sv.RecencyScore)
	}
	if sv.ClinicalScore != 4 {
		t.Errorf("ClinicalScore = %v, expected 4", sv.ClinicalScore)
	}
	expected := 10*0.4 + 4*0.6
	if sv.TotalScore != expected {
		t.Errorf("TotalScore = %v, expected %v", sv.TotalScore, expected)
	}
}

func TestWeightedHistoryEmpty(t *testing.T) {
	retriever := NewRetriever(fixtureSource(), testPipelineConfig(t), testLogger())

	scored, err := retriever.WeightedHistory(context.Background(), 1)
	if err != nil {
		t.Fatalf("WeightedHistory() error = %v", err)
	}
	if len(scored) != 0 {
		t.Errorf("Expected no visits for empty history, got %d", len(scored))
	}
}

func TestWeightedHistorySourceError(t *testing.T) {
	source := fixtureSource()
	source.err = errors.New("connection reset")
	retriever := NewRetriever(source, testPipelineConfig(t), testLogger())

	if _, err := retriever.WeightedHistory(context.Background(), 1); err == nil {
		t.Fatal("Expected evidence source error to propagate")
	}
}

func TestEvidenceItems(t *testing.T) {
	retriever := NewRetriever(fixtureSource(), testPipelineConfig(t), testLogger())
	visitDate := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	visits := []domain.ScoredVisit{
		{
			Entry:      domain.HistoryEntry{VisitDate: visitDate, Notes: "Acute exacerbation", Treatment: "Adjusted medication"},
			TotalScore: 7.5,
		},
		{
			Entry:      domain.HistoryEntry{VisitDate: visitDate.AddDate(0, 1, 0), Notes: "Routine follow-up"},
			TotalScore: 2.0,
		},
	}

	items := retriever.EvidenceItems(visits)

	if len(items) != 3 {
		t.Fatalf("Expected 3 evidence items, got %d", len(items))
	}
	if items[0].Source != "patient_history.notes" || items[0].Value != "Acute exacerbation" {
		t.Errorf("First item = %+v, expected the first visit's notes", items[0])
	}
	if items[1].Source != "patient_history.treatment" || items[1].Value != "Adjusted medication" {
		t.Errorf("Second item = %+v, expected the first visit's treatment", items[1])
	}
	if items[2].Source != "patient_history.notes" || items[2].Value != "Routine follow-up" {
		t.Errorf("Third item = %+v, expected the second visit's notes", items[2])
	}
	if items[0].Weight != 7.5 || items[2].Weight != 2.0 {
		t.Error("Item weights should carry their visit's total score")
	}
	for i, item := range items {
		if item.Timestamp.IsZero() {
			t.Errorf("Item %d missing its visit timestamp", i)
		}
	}
}

func TestEvidenceItemsNothingCitable(t *testing.T) {
	retriever := NewRetriever(fixtureSource(), testPipelineConfig(t), testLogger())

	items := retriever.EvidenceItems([]domain.ScoredVisit{
		{Entry: domain.HistoryEntry{VisitDate: time.Now()}},
	})
	if len(items) != 0 {
		t.Errorf("Expected no items for a visit with no notes or treatment, got %d", len(items))
	}
}
