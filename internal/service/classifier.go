package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// Structured patient fields a FACTUAL query can resolve to.
const (
	fieldAge       = "age"
	fieldGender    = "gender"
	fieldCondition = "primary_condition"
)

// Classification is the routing decision for one query. Field is set
// only for FACTUAL intents and names the structured attribute to read.
type Classification struct {
	Intent domain.Intent
	Field  string
}

// staticAttribute maps an explicit lookup pattern to the field it reads.
type staticAttribute struct {
	pattern *regexp.Regexp
	field   string
}

// qualitativeKeywords is the secondary severity check: degree words that
// mark an evaluation question when combined with a question opener.
var qualitativeKeywords = []string{
	"bad", "serious", "severe", "critical", "dangerous",
	"mild", "moderate", "manageable", "stable",
	"worried", "concern", "concerning", "worrying", "alarmed",
	"worry", "alarming", "urgent",
	"seriousness", "prognosis",
}

// questionStarters are the openers that qualify a query for the
// secondary severity check.
var questionStarters = map[string]bool{
	"how": true, "is": true, "are": true, "should": true,
	"does": true, "do": true, "what": true,
}

// factualMappings routes single-keyword fact questions to a field. A
// query matching keywords for more than one field is not simple factual.
var factualMappings = map[string]string{
	"diagnosed": fieldCondition,
	"diagnosis": fieldCondition,
	"disease":   fieldCondition,
	"illness":   fieldCondition,
	"age":       fieldAge,
	"old":       fieldAge,
	"gender":    fieldGender,
	"sex":       fieldGender,
}

// Classifier assigns each query to a fixed intent by rule matching over
// normalized text. Evaluation order is fixed so identical input always
// classifies identically: refusal, severity, temporal, factual, summary,
// then the conservative SUMMARY default.
type Classifier struct {
	logger *logrus.Logger

	refusal          []*regexp.Regexp
	severity         []*regexp.Regexp
	factualGuard     []*regexp.Regexp
	temporalKeywords []string
	summaryKeywords  []string
	staticAttributes []staticAttribute
	factualWords     map[string]*regexp.Regexp
}

// NewClassifier compiles the configured pattern lists. An invalid regex
// in config fails construction rather than surfacing per query.
func NewClassifier(config *domain.PipelineConfig, logger *logrus.Logger) (*Classifier, error) {
	c := &Classifier{
		logger:           logger,
		temporalKeywords: config.TemporalKeywords,
		summaryKeywords:  config.SummaryKeywords,
		factualWords:     make(map[string]*regexp.Regexp, len(factualMappings)),
	}

	var err error
	if c.refusal, err = compilePatterns(config.RefusalPatterns); err != nil {
		return nil, fmt.Errorf("refusal patterns: %w", err)
	}
	if c.severity, err = compilePatterns(config.SeverityPatterns); err != nil {
		return nil, fmt.Errorf("severity patterns: %w", err)
	}
	if c.factualGuard, err = compilePatterns(config.FactualGuardPatterns); err != nil {
		return nil, fmt.Errorf("factual guard patterns: %w", err)
	}

	c.staticAttributes = []staticAttribute{
		{regexp.MustCompile(`\bhow old\b`), fieldAge},
		{regexp.MustCompile(`\bage\b`), fieldAge},
		{regexp.MustCompile(`\byears old\b`), fieldAge},
		{regexp.MustCompile(`\bdiagnosed with\b`), fieldCondition},
		{regexp.MustCompile(`\bdiagnosis\b`), fieldCondition},
		{regexp.MustCompile(`\bwhat condition\b`), fieldCondition},
		{regexp.MustCompile(`\bwhat is .* condition\b`), fieldCondition},
		{regexp.MustCompile(`\bwhat (?:does|do) .* have\b`), fieldCondition},
		{regexp.MustCompile(`\bgender\b`), fieldGender},
		{regexp.MustCompile(`\bwhat sex\b`), fieldGender},
	}

	// Word-bounded so "old" does not fire inside "cold".
	for keyword := range factualMappings {
		c.factualWords[keyword] = regexp.MustCompile(`\b` + keyword + `\b`)
	}

	logger.WithFields(logrus.Fields{
		"refusal_patterns":  len(c.refusal),
		"severity_patterns": len(c.severity),
		"temporal_keywords": len(c.temporalKeywords),
		"summary_keywords":  len(c.summaryKeywords),
	}).Debug("Classifier patterns compiled")

	return c, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Classify routes a query to an intent. Pure over the input text: no
// session state, no resolved patient, no side effects.
func (c *Classifier) Classify(text string) Classification {
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return Classification{Intent: domain.SUMMARY}
	}

	// 1. Advice requests refuse before anything else can match.
	if matchAny(c.refusal, query) {
		return Classification{Intent: domain.REFUSAL}
	}

	// 2. Qualitative assessment questions.
	if c.isSeverityAssessment(query) {
		return Classification{Intent: domain.SEVERITY}
	}

	// 3. Change-over-time questions.
	if containsAny(query, c.temporalKeywords) {
		return Classification{Intent: domain.COMPLEX}
	}

	// 4. Explicit single-attribute lookups.
	for _, attr := range c.staticAttributes {
		if attr.pattern.MatchString(query) {
			return Classification{Intent: domain.FACTUAL, Field: attr.field}
		}
	}

	// 5. Overview questions.
	if containsAny(query, c.summaryKeywords) {
		return Classification{Intent: domain.SUMMARY}
	}

	// 6. Single-keyword fact questions, only when exactly one field
	// is implied.
	if field := c.simpleFactualField(query); field != "" {
		return Classification{Intent: domain.FACTUAL, Field: field}
	}

	// Nothing matched: a summary is the most conservative answer that
	// is not a refusal.
	return Classification{Intent: domain.SUMMARY}
}

// isSeverityAssessment detects qualitative evaluation questions while
// keeping explicit factual lookups out of the severity path.
func (c *Classifier) isSeverityAssessment(query string) bool {
	if matchAny(c.factualGuard, query) {
		return false
	}

	if matchAny(c.severity, query) {
		return true
	}

	// Secondary check: a question opener plus a degree word, unless the
	// query is literally asking what the condition is.
	fields := strings.Fields(query)
	if len(fields) == 0 || !questionStarters[fields[0]] {
		return false
	}
	head := query
	if len(head) > 20 {
		head = head[:20]
	}
	if strings.Contains(query, "what condition") || strings.Contains(head, "what is") {
		return false
	}
	for _, keyword := range qualitativeKeywords {
		if strings.Contains(query, keyword) {
			return true
		}
	}
	return false
}

// simpleFactualField returns the single field implied by the query's
// keywords, or empty when zero or several fields match.
func (c *Classifier) simpleFactualField(query string) string {
	matched := make(map[string]bool)
	for keyword, re := range c.factualWords {
		if re.MatchString(query) {
			matched[factualMappings[keyword]] = true
		}
	}
	if len(matched) != 1 {
		return ""
	}
	for field := range matched {
		return field
	}
	return ""
}

func matchAny(patterns []*regexp.Regexp, query string) bool {
	for _, re := range patterns {
		if re.MatchString(query) {
			return true
		}
	}
	return false
}

func containsAny(query string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(query, keyword) {
			return true
		}
	}
	return false
}
