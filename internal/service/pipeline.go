package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// Pipeline executes one query end to end: classify, resolve the patient
// reference, retrieve evidence, reason, generate, validate, assemble.
// Every domain outcome returns a well-formed response with deterministic
// confidence; only infrastructure faults surface as errors.
type Pipeline struct {
	classifier *Classifier
	resolver   *Resolver
	retriever  *Retriever
	trends     *TrendAnalyzer
	reasoner   *Reasoner
	assembler  *Assembler

	source    domain.EvidenceSource
	engine    domain.GenerationEngine
	summaries domain.SummaryCache
	incidents domain.IncidentStore

	config *domain.PipelineConfig
	logger *logrus.Logger
}

// Deps bundles the pipeline's external collaborators. Incidents may be
// nil when guardrail auditing is disabled.
type Deps struct {
	Source    domain.EvidenceSource
	Engine    domain.GenerationEngine
	Sessions  domain.ContextStore
	Summaries domain.SummaryCache
	Incidents domain.IncidentStore
}

func NewPipeline(config *domain.PipelineConfig, deps Deps, logger *logrus.Logger) (*Pipeline, error) {
	classifier, err := NewClassifier(config, logger)
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	reasoner, err := NewReasoner(config, logger)
	if err != nil {
		return nil, fmt.Errorf("reasoner: %w", err)
	}

	return &Pipeline{
		classifier: classifier,
		resolver:   NewResolver(deps.Source, deps.Sessions, logger),
		retriever:  NewRetriever(deps.Source, config, logger),
		trends:     NewTrendAnalyzer(logger),
		reasoner:   reasoner,
		assembler:  NewAssembler(config),
		source:     deps.Source,
		engine:     deps.Engine,
		summaries:  deps.Summaries,
		incidents:  deps.Incidents,
		config:     config,
		logger:     logger,
	}, nil
}

// Answer runs the full pipeline for one query within a session.
//
// Classification runs before resolution so an advice request is refused
// even when the patient reference would not resolve; resolution runs
// before retrieval so no evidence is ever fetched for a guessed patient.
func (p *Pipeline) Answer(ctx context.Context, sessionID, query string) (*domain.Response, error) {
	started := time.Now()
	query = strings.TrimSpace(query)

	if query == "" {
		return p.assembler.Build(query, answerEmptyQuery, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}

	classification := p.classifier.Classify(query)
	p.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"intent":     string(classification.Intent),
		"field":      classification.Field,
	}).Debug("Query classified")

	if classification.Intent == domain.REFUSAL {
		p.recordIncident(ctx, sessionID, 0, query, domain.ADVICE_REFUSAL, nil, "")
		return p.assembler.Build(query, answerAdviceRefusal, domain.REFUSAL_PATH, []string{evidenceAdviceDeclined}, started), nil
	}

	resolution, err := p.resolver.Resolve(ctx, sessionID, query, classification.Intent)
	if err != nil {
		return nil, fmt.Errorf("resolve patient reference: %w", err)
	}
	if resolution.Status != domain.OK {
		answer, evidence := p.assembler.RefusalForResolution(resolution)
		if resolution.Status == domain.GENDER_MISMATCH || resolution.Status == domain.AMBIGUOUS {
			p.recordIncident(ctx, sessionID, 0, query, domain.IDENTITY_REFUSAL, []string{string(resolution.Status)}, "")
		}
		return p.assembler.Build(query, answer, domain.REFUSAL_PATH, evidence, started), nil
	}

	switch classification.Intent {
	case domain.FACTUAL:
		answer, evidence := p.assembler.FactualAnswer(resolution.Patient, classification.Field)
		p.logger.WithFields(logrus.Fields{
			"patient_id": resolution.PatientID,
			"field":      classification.Field,
		}).Info("Factual answer served")
		return p.assembler.Build(query, answer, domain.FACTUAL_PATH, evidence, started), nil
	case domain.SEVERITY:
		return p.answerSeverity(ctx, query, resolution.Patient, started)
	case domain.COMPLEX:
		return p.answerComplex(ctx, sessionID, query, resolution, started)
	default:
		return p.answerSummary(ctx, sessionID, query, resolution.Patient, started)
	}
}

// answerSeverity renders the deterministic qualitative assessment from the
// recorded risk level and signal stems in recent weighted visits. No
// generation engine involvement.
func (p *Pipeline) answerSeverity(ctx context.Context, query string, patient *domain.Patient, started time.Time) (*domain.Response, error) {
	visits, err := p.retriever.WeightedHistory(ctx, patient.PatientID)
	if err != nil {
		return nil, fmt.Errorf("weighted history: %w", err)
	}

	worsening, improving := p.assembler.SeveritySignals(visits)
	answer := p.assembler.SeverityAnswer(patient, worsening, improving)

	p.logger.WithFields(logrus.Fields{
		"patient_id": patient.PatientID,
		"risk_level": patient.RiskLevel,
		"worsening":  worsening,
		"improving":  improving,
	}).Info("Severity assessed")

	if patient.RiskLevel == "" && len(visits) == 0 {
		return p.assembler.Build(query, answer, domain.REFUSAL_PATH, []string{evidenceNoSeverity}, started), nil
	}
	return p.assembler.Build(query, answer, domain.SEVERITY_PATH, []string{evidenceRiskLevel, evidenceWeightedShort}, started), nil
}

// answerSummary serves the patient summary through the tiered cache,
// generating at most once per patient across concurrent requests.
func (p *Pipeline) answerSummary(ctx context.Context, sessionID, query string, patient *domain.Patient, started time.Time) (*domain.Response, error) {
	limit := p.config.SummaryHistoryLimit
	if limit <= 0 {
		limit = 10
	}
	history, err := p.source.GetHistory(ctx, patient.PatientID, limit)
	if err != nil {
		return nil, fmt.Errorf("summary history: %w", err)
	}

	text, hit, err := p.summaries.GetOrGenerate(ctx, patient.PatientID, func(genCtx context.Context) (string, error) {
		return p.engine.Generate(genCtx, buildSummaryPrompt(patient, history))
	})
	if err != nil {
		p.logger.WithError(err).WithField("patient_id", patient.PatientID).Warn("Summary generation failed")
		p.recordIncident(ctx, sessionID, patient.PatientID, query, domain.GENERATION_FAILURE, nil, "")
		return p.assembler.Build(query, answerEngineFailure, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}
	if strings.TrimSpace(text) == "" {
		return p.assembler.Build(query, answerNoInformation, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}

	// Cached text was validated when generated, but the vocabulary is
	// configurable; revalidate so a tightened list retires old entries.
	result := p.reasoner.Finalize(domain.DESCRIPTIVE, text, query)
	if result.Fallback {
		p.recordIncident(ctx, sessionID, patient.PatientID, query, domain.FORBIDDEN_LANGUAGE, result.Violations, text)
		if invErr := p.summaries.Invalidate(ctx, patient.PatientID); invErr != nil {
			p.logger.WithError(invErr).Warn("Failed to invalidate rejected summary")
		}
		return p.assembler.Build(query, result.Text, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}

	path := domain.SUMMARY_MISS
	evidence := []string{evidenceWeightedHistory, evidenceGeneratedText}
	if hit {
		path = domain.SUMMARY_HIT
		evidence = []string{evidenceCachedSummary}
	}
	p.logger.WithFields(logrus.Fields{
		"patient_id": patient.PatientID,
		"cache_hit":  hit,
	}).Info("Summary served")
	return p.assembler.Build(query, text, path, evidence, started), nil
}

// answerComplex runs weighted retrieval and trend analysis, escalates to
// synthetic reasoning when every activation rule passes, and validates
// whatever the engine returns.
func (p *Pipeline) answerComplex(ctx context.Context, sessionID, query string, resolution *domain.Resolution, started time.Time) (*domain.Response, error) {
	patient := resolution.Patient

	visits, err := p.retriever.WeightedHistory(ctx, patient.PatientID)
	if err != nil {
		return nil, fmt.Errorf("weighted history: %w", err)
	}
	history := visitEntries(visits)

	// Nothing citable means nothing to analyze. Refusing here keeps the
	// engine from inventing a progression out of demographics alone.
	items := p.retriever.EvidenceItems(visits)
	if len(items) == 0 {
		p.logger.WithField("patient_id", patient.PatientID).Info("No citable history for analysis")
		return p.assembler.Build(query, answerNoInformation, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}

	vitals, labs, err := p.source.GetVitalsLabs(ctx, patient.PatientID)
	if err != nil {
		return nil, fmt.Errorf("vitals and labs: %w", err)
	}
	snapshot := snapshotFrom(vitals, labs)

	trend := p.trends.Analyze(history)
	trendContext := FormatTrendContext(trend)

	level, decision := p.reasoner.EvaluateLevel(domain.COMPLEX, query, resolution, history, snapshot)

	extras := []string{trendContext}
	path := domain.COMPLEX_PATH
	evidence := []string{evidenceWeightedHistory, evidenceTrendAnalysis}
	if level == domain.SYNTHETIC {
		extras = append(extras, p.reasoner.CrossSignalSummary(history, snapshot, trend))
		path = domain.SYNTHETIC_PATH
		evidence = append(evidence, evidenceCrossSignal)
	}

	p.logger.WithFields(logrus.Fields{
		"patient_id":      patient.PatientID,
		"trend_pattern":   string(trend.Pattern),
		"reasoning_level": int(level),
		"gate_reason":     decision.Reason,
		"evidence_items":  len(items),
	}).Info("Complex answer prepared")

	prompt := buildAnswerPrompt(patient, history, query, extras...)
	return p.generateAnswer(ctx, sessionID, query, patient.PatientID, prompt, level, path, evidence, started)
}

// generateAnswer calls the engine and applies the post-generation
// contract: failures and blank output map to fixed fallbacks, forbidden
// language discards the text without retry.
func (p *Pipeline) generateAnswer(ctx context.Context, sessionID, query string, patientID int64, prompt string, level domain.ReasoningLevel, path domain.ResponsePath, evidence []string, started time.Time) (*domain.Response, error) {
	text, err := p.engine.Generate(ctx, prompt)
	if err != nil {
		p.logger.WithError(err).WithField("patient_id", patientID).Warn("Generation engine call failed")
		p.recordIncident(ctx, sessionID, patientID, query, domain.GENERATION_FAILURE, nil, "")
		return p.assembler.Build(query, answerEngineFailure, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}
	if strings.TrimSpace(text) == "" {
		return p.assembler.Build(query, answerNoInformation, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}

	result := p.reasoner.Finalize(level, text, query)
	if result.Fallback {
		p.recordIncident(ctx, sessionID, patientID, query, domain.FORBIDDEN_LANGUAGE, result.Violations, text)
		return p.assembler.Build(query, result.Text, domain.REFUSAL_PATH, []string{evidenceInsufficient}, started), nil
	}

	return p.assembler.Build(query, result.Text, path, evidence, started), nil
}

// recordIncident persists a guardrail incident. Auditing is best effort:
// a store failure is logged and never blocks the response.
func (p *Pipeline) recordIncident(ctx context.Context, sessionID string, patientID int64, query string, kind domain.IncidentKind, violations []string, discarded string) {
	if p.incidents == nil {
		return
	}
	incident := &domain.GuardrailIncident{
		SessionID:     sessionID,
		PatientID:     patientID,
		Query:         query,
		Kind:          kind,
		Violations:    violations,
		DiscardedText: discarded,
		CreatedAt:     time.Now().UTC(),
	}
	if err := p.incidents.Record(ctx, incident); err != nil {
		p.logger.WithError(err).WithField("kind", string(kind)).Warn("Failed to record guardrail incident")
	}
}

func visitEntries(visits []domain.ScoredVisit) []domain.HistoryEntry {
	entries := make([]domain.HistoryEntry, 0, len(visits))
	for _, visit := range visits {
		entries = append(entries, visit.Entry)
	}
	return entries
}

// snapshotFrom aggregates raw readings into the counts the activation
// gates and cross-signal summary consume. Encounter ids keep first-seen
// order across vitals then labs.
func snapshotFrom(vitals []domain.Vital, labs []domain.Lab) *domain.VitalsLabsSnapshot {
	snapshot := &domain.VitalsLabsSnapshot{
		VitalsCount: len(vitals),
		LabsCount:   len(labs),
	}

	seen := make(map[int64]struct{}, len(vitals)+len(labs))
	note := func(encounterID int64) {
		if encounterID == 0 {
			return
		}
		if _, ok := seen[encounterID]; ok {
			return
		}
		seen[encounterID] = struct{}{}
		snapshot.EncounterIDs = append(snapshot.EncounterIDs, encounterID)
	}

	for _, v := range vitals {
		if v.Abnormal {
			snapshot.AbnormalVitals++
		}
		note(v.EncounterID)
	}
	for _, l := range labs {
		if l.Abnormal {
			snapshot.AbnormalLabs++
		}
		note(l.EncounterID)
	}

	return snapshot
}
