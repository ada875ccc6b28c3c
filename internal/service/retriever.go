package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// Clinical signal keywords and their weights. An acute event in the
// notes outranks recency, so a two-year-old hospitalization stays in
// scope while last month's routine follow-up drops out.
var clinicalSignalWeights = map[string]float64{
	// Worsening indicators
	"hospitalization": 4,
	"hospitalized":    4,
	"emergency":       4,
	"exacerbation":    3,
	"worsened":        3,
	"worsening":       3,
	"deteriorated":    3,
	"new symptoms":    3,
	"complication":    3,
	"flare":           2,
	"acute":           2,
	// Treatment changes
	"surgery":            4,
	"changed medication": 3,
	"new medication":     3,
	"adjusted":           2,
	"increased dosage":   2,
	"procedure":          2,
	// Improvement
	"improved": 2,
	"recovery": 2,
	"resolved": 2,
}

// Routine indicators push a visit down the ranking.
var routineWeights = map[string]float64{
	"routine":         -2,
	"regular check":   -2,
	"stable":          -1,
	"no acute":        -1,
	"no concerns":     -1,
	"well-controlled": -1,
	"unchanged":       -1,
	"follow-up":       -1,
}

// Retriever selects the visits most worth grounding an answer on. Every
// score is a deterministic function of the record and the clock; the
// same history always yields the same selection.
type Retriever struct {
	source         domain.EvidenceSource
	logger         *logrus.Logger
	limit          int
	recencyWeight  float64
	clinicalWeight float64
}

// NewRetriever creates a weighted history retriever.
func NewRetriever(source domain.EvidenceSource, cfg *domain.PipelineConfig, logger *logrus.Logger) *Retriever {
	limit := cfg.RetrievalLimit
	if limit <= 0 {
		limit = 5
	}
	return &Retriever{
		source:         source,
		logger:         logger,
		limit:          limit,
		recencyWeight:  cfg.RecencyWeight,
		clinicalWeight: cfg.ClinicalWeight,
	}
}

// WeightedHistory returns the top scoring visits for the patient,
// re-sorted chronologically so the selection reads in visit order.
func (r *Retriever) WeightedHistory(ctx context.Context, patientID int64) ([]domain.ScoredVisit, error) {
	entries, err := r.source.GetHistory(ctx, patientID, 0)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	now := time.Now()
	scored := make([]domain.ScoredVisit, 0, len(entries))
	for _, entry := range entries {
		recency := recencyScore(entry.VisitDate, now)
		clinical := clinicalScore(entry.Notes, entry.Treatment)
		scored = append(scored, domain.ScoredVisit{
			Entry:         entry,
			RecencyScore:  recency,
			ClinicalScore: clinical,
			TotalScore:    recency*r.recencyWeight + clinical*r.clinicalWeight,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].TotalScore > scored[j].TotalScore
	})
	if len(scored) > r.limit {
		scored = scored[:r.limit]
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Entry.VisitDate.Before(scored[j].Entry.VisitDate)
	})

	r.logger.WithFields(logrus.Fields{
		"patient_id":   patientID,
		"total_visits": len(entries),
		"selected":     len(scored),
	}).Debug("Weighted history retrieval complete")

	return scored, nil
}

// EvidenceItems flattens a weighted selection into traceable evidence
// tuples, one per populated field, keeping the selection's visit order.
// Every source names the exact column the value came from; an empty
// result means the history holds nothing citable.
func (r *Retriever) EvidenceItems(visits []domain.ScoredVisit) []domain.EvidenceItem {
	items := make([]domain.EvidenceItem, 0, len(visits)*2)
	for _, visit := range visits {
		if visit.Entry.Notes != "" {
			items = append(items, domain.EvidenceItem{
				Source:    "patient_history.notes",
				Value:     visit.Entry.Notes,
				Weight:    visit.TotalScore,
				Timestamp: visit.Entry.VisitDate,
			})
		}
		if visit.Entry.Treatment != "" {
			items = append(items, domain.EvidenceItem{
				Source:    "patient_history.treatment",
				Value:     visit.Entry.Treatment,
				Weight:    visit.TotalScore,
				Timestamp: visit.Entry.VisitDate,
			})
		}
	}
	return items
}

// recencyScore places a visit date into a banded 0-10 scale. A zero
// date means the visit date was never recorded and scores nothing.
func recencyScore(visitDate, now time.Time) float64 {
	if visitDate.IsZero() {
		return 0
	}

	days := int(now.Sub(visitDate).Hours() / 24)
	switch {
	case days <= 30:
		return 10
	case days <= 90:
		return 8
	case days <= 180:
		return 6
	case days <= 365:
		return 4
	case days <= 730:
		return 2
	default:
		return 1
	}
}

// clinicalScore sums the signal weights of every keyword present in the
// visit notes and treatment. Routine indicators carry negative weight,
// so an unremarkable check-up can score below zero.
func clinicalScore(notes, treatment string) float64 {
	text := strings.ToLower(notes + " " + treatment)

	score := 0.0
	for keyword, weight := range clinicalSignalWeights {
		if strings.Contains(text, keyword) {
			score += weight
		}
	}
	for keyword, weight := range routineWeights {
		if strings.Contains(text, keyword) {
			score += weight
		}
	}
	return score
}
