package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patient-insight-server/internal/domain"
)

type fakeEngine struct {
	response string
	err      error
	prompts  []string
}

func (e *fakeEngine) Generate(_ context.Context, prompt string) (string, error) {
	e.prompts = append(e.prompts, prompt)
	if e.err != nil {
		return "", e.err
	}
	return e.response, nil
}

type fakeSummaryCache struct {
	cached      map[int64]string
	invalidated []int64
}

func (f *fakeSummaryCache) GetOrGenerate(ctx context.Context, patientID int64, generate func(context.Context) (string, error)) (string, bool, error) {
	if text, ok := f.cached[patientID]; ok {
		return text, true, nil
	}
	text, err := generate(ctx)
	if err != nil {
		return "", false, err
	}
	f.cached[patientID] = text
	return text, false, nil
}

func (f *fakeSummaryCache) Invalidate(_ context.Context, patientID int64) error {
	f.invalidated = append(f.invalidated, patientID)
	delete(f.cached, patientID)
	return nil
}

type fakeIncidentStore struct {
	incidents []*domain.GuardrailIncident
	err       error
}

func (s *fakeIncidentStore) Record(_ context.Context, incident *domain.GuardrailIncident) error {
	if s.err != nil {
		return s.err
	}
	s.incidents = append(s.incidents, incident)
	return nil
}

func (s *fakeIncidentStore) List(_ context.Context, limit int) ([]*domain.GuardrailIncident, error) {
	if limit > 0 && len(s.incidents) > limit {
		return s.incidents[:limit], nil
	}
	return s.incidents, nil
}

func (s *fakeIncidentStore) Count(_ context.Context) (int, error) {
	return len(s.incidents), nil
}

type pipelineFixture struct {
	pipeline  *Pipeline
	source    *fakeEvidenceSource
	store     *fakeContextStore
	engine    *fakeEngine
	cache     *fakeSummaryCache
	incidents *fakeIncidentStore
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		source:    fixtureSource(),
		store:     newFakeContextStore(),
		engine:    &fakeEngine{response: "Records describe routine care over the documented period."},
		cache:     &fakeSummaryCache{cached: make(map[int64]string)},
		incidents: &fakeIncidentStore{},
	}

	pipeline, err := NewPipeline(testPipelineConfig(t), Deps{
		Source:    f.source,
		Engine:    f.engine,
		Sessions:  f.store,
		Summaries: f.cache,
		Incidents: f.incidents,
	}, testLogger())
	require.NoError(t, err)

	f.pipeline = pipeline
	return f
}

// seedComplexData gives Emily (patient 1) enough history and mixed
// vitals/labs to satisfy every synthetic activation rule.
func (f *pipelineFixture) seedComplexData() {
	f.source.history = map[int64][]domain.HistoryEntry{
		1: {
			{RecordID: 1, PatientID: 1, VisitDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Notes: "Routine follow-up"},
			{RecordID: 2, PatientID: 1, VisitDate: time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC), Notes: "Acute exacerbation"},
		},
	}
	f.source.vitals = map[int64][]domain.Vital{
		1: {
			{EncounterID: 10, Abnormal: false},
			{EncounterID: 10, Abnormal: false},
			{EncounterID: 11, Abnormal: true},
			{EncounterID: 11, Abnormal: false},
		},
	}
	f.source.labs = map[int64][]domain.Lab{
		1: {
			{EncounterID: 10, Abnormal: false},
			{EncounterID: 11, Abnormal: true},
			{EncounterID: 11, Abnormal: false},
		},
	}
}

func TestAnswerEmptyQuery(t *testing.T) {
	f := newPipelineFixture(t)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "   ")
	require.NoError(t, err)

	assert.Equal(t, "Please provide a question to get started.", resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, "REFUSAL", resp.LogicPath)
	assert.Equal(t, []string{"insufficient data for analysis"}, resp.Evidence)
	assert.Empty(t, f.engine.prompts)
}

func TestAnswerAdviceRefusalPreemptsResolution(t *testing.T) {
	f := newPipelineFixture(t)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "What medicine should he take?")
	require.NoError(t, err)

	assert.Equal(t, answerAdviceRefusal, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, []string{"medical advice request declined"}, resp.Evidence)
	assert.Empty(t, f.engine.prompts)
	assert.Empty(t, f.store.puts, "refused query must not touch conversation memory")

	require.Len(t, f.incidents.incidents, 1)
	assert.Equal(t, domain.ADVICE_REFUSAL, f.incidents.incidents[0].Kind)
	assert.Equal(t, "What medicine should he take?", f.incidents.incidents[0].Query)
}

func TestAnswerFactual(t *testing.T) {
	f := newPipelineFixture(t)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How old is Emily Smith?")
	require.NoError(t, err)

	assert.Equal(t, "Emily Smith is 34 years old.", resp.Answer)
	assert.Equal(t, domain.HIGH, resp.Confidence)
	assert.Equal(t, "FACTUAL", resp.LogicPath)
	assert.Equal(t, []string{"patients.age"}, resp.Evidence)
	assert.Empty(t, f.engine.prompts, "factual answers never invoke generation")
}

func TestAnswerFactualIdempotent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	first, err := f.pipeline.Answer(ctx, "s1", "What is Emily Smith diagnosed with?")
	require.NoError(t, err)
	second, err := f.pipeline.Answer(ctx, "s1", "What is Emily Smith diagnosed with?")
	require.NoError(t, err)

	assert.Equal(t, "Emily Smith is diagnosed with Asthma.", first.Answer)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.Evidence, second.Evidence)
}

func TestAnswerPronounFollowUp(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Answer(ctx, "s1", "How old is Emily Smith?")
	require.NoError(t, err)

	resp, err := f.pipeline.Answer(ctx, "s1", "How old is she?")
	require.NoError(t, err)

	assert.Equal(t, "Emily Smith is 34 years old.", resp.Answer)
	assert.Equal(t, domain.HIGH, resp.Confidence)
}

func TestAnswerGenderMismatch(t *testing.T) {
	f := newPipelineFixture(t)
	seedContext(f.store, "s1", 1)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How old is he?")
	require.NoError(t, err)

	assert.Equal(t, answerWhichPatient, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, []string{"pronoun gender mismatch"}, resp.Evidence)
	require.Len(t, f.incidents.incidents, 1)
	assert.Equal(t, domain.IDENTITY_REFUSAL, f.incidents.incidents[0].Kind)
	assert.Equal(t, []string{"GENDER_MISMATCH"}, f.incidents.incidents[0].Violations)
}

func TestAnswerAmbiguousName(t *testing.T) {
	f := newPipelineFixture(t)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Tell me about Smith")
	require.NoError(t, err)

	want := "Multiple patients found (2 matches)\n\n" +
		"• Emily Smith, age 34\n" +
		"• James Smith, age 61\n\n" +
		"Please specify the full name or add more details."
	assert.Equal(t, want, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, []string{"ambiguous patient reference"}, resp.Evidence)
	assert.Empty(t, f.engine.prompts)
	assert.Empty(t, f.store.puts, "ambiguous resolution must not update memory")
	require.Len(t, f.incidents.incidents, 1)
	assert.Equal(t, domain.IDENTITY_REFUSAL, f.incidents.incidents[0].Kind)
}

func TestAnswerNameNotFound(t *testing.T) {
	f := newPipelineFixture(t)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Tell me about Zoe Clark")
	require.NoError(t, err)

	assert.Equal(t, answerNameNotFound, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, []string{"patient not found in database"}, resp.Evidence)
	assert.Empty(t, f.incidents.incidents, "lookup misses are not guardrail incidents")
}

func TestAnswerSeverity(t *testing.T) {
	f := newPipelineFixture(t)
	seedContext(f.store, "s1", 2)
	f.source.history = map[int64][]domain.HistoryEntry{
		2: {
			{RecordID: 1, PatientID: 2, VisitDate: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Notes: "Hospitalized for acute episode"},
			{RecordID: 2, PatientID: 2, VisitDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Notes: "Condition stable since discharge"},
		},
	}

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How serious is his condition?")
	require.NoError(t, err)

	assert.Equal(t, "James Smith has a High risk level, indicating close monitoring is needed. "+
		"Consult a healthcare provider for clinical assessment.", resp.Answer)
	assert.Equal(t, domain.MEDIUM, resp.Confidence)
	assert.Equal(t, "SEVERITY", resp.LogicPath)
	assert.Equal(t, []string{"patients.risk_level", "patient_history (weighted)"}, resp.Evidence)
	assert.Empty(t, f.engine.prompts, "severity assessment is deterministic")
}

func TestAnswerSeverityWithoutMetrics(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.patients[6] = domain.Patient{PatientID: 6, Name: "Alex Doe", Age: 52, Gender: "Male"}
	seedContext(f.store, "s1", 6)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How serious is his condition?")
	require.NoError(t, err)

	assert.Equal(t, "No formal risk level is recorded for Alex Doe. "+
		"Consult a healthcare provider for clinical assessment.", resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, "REFUSAL", resp.LogicPath)
	assert.Equal(t, []string{"no severity metrics available"}, resp.Evidence)
}

func TestAnswerSummaryMiss(t *testing.T) {
	f := newPipelineFixture(t)
	f.engine.response = "Emily Smith is a 34-year-old female managing asthma with routine visits."

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Summarize Emily Smith")
	require.NoError(t, err)

	assert.Equal(t, f.engine.response, resp.Answer)
	assert.Equal(t, domain.MEDIUM, resp.Confidence)
	assert.Equal(t, "SUMMARY_MISS", resp.LogicPath)
	assert.Equal(t, []string{
		"patient_history (weighted: recency + clinical signals)",
		"generated_summary",
	}, resp.Evidence)
	require.Len(t, f.engine.prompts, 1)
	assert.Contains(t, f.engine.prompts[0], "Generate a concise patient summary using ONLY the data below.")
}

func TestAnswerSummaryHit(t *testing.T) {
	f := newPipelineFixture(t)
	f.cache.cached[1] = "Emily Smith, 34, manages asthma with routine visits."

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Summarize Emily Smith")
	require.NoError(t, err)

	assert.Equal(t, "Emily Smith, 34, manages asthma with routine visits.", resp.Answer)
	assert.Equal(t, domain.HIGH, resp.Confidence)
	assert.Equal(t, "SUMMARY_HIT", resp.LogicPath)
	assert.Equal(t, []string{"cached_patient_summary"}, resp.Evidence)
	assert.Empty(t, f.engine.prompts, "cache hit must not regenerate")
}

func TestAnswerSummaryCachedTextFailsTightenedFilter(t *testing.T) {
	f := newPipelineFixture(t)
	f.cache.cached[1] = "Emily Smith shows severe symptoms at most visits."

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Summarize Emily Smith")
	require.NoError(t, err)

	assert.Equal(t, FallbackAnswer, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, []int64{1}, f.cache.invalidated, "rejected cached summary must be retired")
	require.Len(t, f.incidents.incidents, 1)
	assert.Equal(t, domain.FORBIDDEN_LANGUAGE, f.incidents.incidents[0].Kind)
	assert.Equal(t, []string{"severe"}, f.incidents.incidents[0].Violations)
}

func TestAnswerSummaryEngineFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.engine.err = errors.New("connection refused")

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Summarize Emily Smith")
	require.NoError(t, err)

	assert.Equal(t, answerEngineFailure, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	require.Len(t, f.incidents.incidents, 1)
	assert.Equal(t, domain.GENERATION_FAILURE, f.incidents.incidents[0].Kind)
}

func TestAnswerSummaryBlankOutput(t *testing.T) {
	f := newPipelineFixture(t)
	f.engine.response = "   "

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Summarize Emily Smith")
	require.NoError(t, err)

	assert.Equal(t, answerNoInformation, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
}

func TestAnswerComplexWithoutSynthesisSignal(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedComplexData()

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How has Emily Smith changed since last year?")
	require.NoError(t, err)

	assert.Equal(t, "Records describe routine care over the documented period.", resp.Answer)
	assert.Equal(t, domain.MEDIUM, resp.Confidence)
	assert.Equal(t, "COMPLEX", resp.LogicPath)
	assert.Equal(t, []string{
		"patient_history (weighted: recency + clinical signals)",
		"trend_analysis",
	}, resp.Evidence)

	require.Len(t, f.engine.prompts, 1)
	assert.Contains(t, f.engine.prompts[0], "Trend Analysis:")
	assert.Contains(t, f.engine.prompts[0], "Patient History:")
	assert.NotContains(t, f.engine.prompts[0], "Cross-Signal Pattern Summary")
}

func TestAnswerSynthetic(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedComplexData()

	resp, err := f.pipeline.Answer(context.Background(), "s1", "Looking at everything, how has Emily Smith changed overall?")
	require.NoError(t, err)

	assert.Equal(t, domain.MEDIUM, resp.Confidence)
	assert.Equal(t, "SYNTHETIC", resp.LogicPath)
	assert.Equal(t, []string{
		"patient_history (weighted: recency + clinical signals)",
		"trend_analysis",
		"cross_signal_synthesis (history + vitals + labs)",
	}, resp.Evidence)

	require.Len(t, f.engine.prompts, 1)
	assert.Contains(t, f.engine.prompts[0], "Trend Analysis:")
	assert.Contains(t, f.engine.prompts[0], "Cross-Signal Pattern Summary (Observational Only):")
	assert.Contains(t, f.engine.prompts[0], "Question: Looking at everything, how has Emily Smith changed overall?")
}

func TestAnswerComplexForbiddenLanguageDiscarded(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedComplexData()
	f.engine.response = "The records show worsening symptoms that are concerning."

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How has Emily Smith changed since last year?")
	require.NoError(t, err)

	assert.Equal(t, FallbackAnswer, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, "REFUSAL", resp.LogicPath)
	assert.Equal(t, []string{"insufficient data for analysis"}, resp.Evidence)

	require.Len(t, f.incidents.incidents, 1)
	incident := f.incidents.incidents[0]
	assert.Equal(t, domain.FORBIDDEN_LANGUAGE, incident.Kind)
	assert.Equal(t, []string{"concerning", "worsening"}, incident.Violations)
	assert.Equal(t, "The records show worsening symptoms that are concerning.", incident.DiscardedText)
	assert.Equal(t, int64(1), incident.PatientID)
}

func TestAnswerComplexEngineFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.seedComplexData()
	f.engine.err = errors.New("dial tcp: connection refused")

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How has Emily Smith changed since last year?")
	require.NoError(t, err)

	assert.Equal(t, answerEngineFailure, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	require.Len(t, f.incidents.incidents, 1)
	assert.Equal(t, domain.GENERATION_FAILURE, f.incidents.incidents[0].Kind)
}

func TestAnswerComplexWithoutHistory(t *testing.T) {
	f := newPipelineFixture(t)

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How has Emily Smith changed since last year?")
	require.NoError(t, err)

	assert.Equal(t, answerNoInformation, resp.Answer)
	assert.Equal(t, domain.LOW, resp.Confidence)
	assert.Equal(t, "REFUSAL", resp.LogicPath)
	assert.Equal(t, []string{"insufficient data for analysis"}, resp.Evidence)
	assert.Empty(t, f.engine.prompts, "nothing citable means no generation call")
}

func TestAnswerSourceErrorPropagates(t *testing.T) {
	f := newPipelineFixture(t)
	f.source.err = errors.New("database gone")

	resp, err := f.pipeline.Answer(context.Background(), "s1", "How old is Emily Smith?")
	require.Error(t, err)
	assert.Nil(t, resp)
}

func TestAnswerIncidentStoreFailureDoesNotBlock(t *testing.T) {
	f := newPipelineFixture(t)
	f.incidents.err = errors.New("disk full")

	resp, err := f.pipeline.Answer(context.Background(), "s1", "What medicine should he take?")
	require.NoError(t, err)
	assert.Equal(t, answerAdviceRefusal, resp.Answer)
}
