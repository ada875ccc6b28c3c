package config

// Default pattern vocabularies for the decision layer. These ship as
// configuration defaults rather than code so deployments can tune the
// classifier and the safety filter without a rebuild. Regex entries use
// Go regexp syntax and are compiled once at service construction.

// defaultForbiddenWords is the safety vocabulary scanned against every
// generated answer. A single hit discards the whole text.
var defaultForbiddenWords = []string{
	"concerning",
	"severe",
	"worsening",
	"dangerous",
	"requires intervention",
	"critical",
	"alarming",
	"you should",
	"i recommend",
	"treatment",
	"diagnosis",
	"prognosis",
	"urgent",
	"emergency",
	"life-threatening",
	"prescribe",
	"medication should",
}

// defaultRefusalPatterns detect requests for medical advice,
// prescriptions or dosing. These take precedence over every other
// classification and always produce a fixed refusal.
var defaultRefusalPatterns = []string{
	`\bwhat\s+(medicine|medication|drug)s?\b`,
	`\bwhich\s+(medicine|medication|drug)s?\b`,
	`\bshould\s+(he|she|they|i|we)\s+(take|start|stop|use)\b`,
	`\brecommend\s+(a\s+)?(treatment|medication|therapy|drug)\b`,
	`\b(prescribe|prescription)\b`,
	`\bdosage\b`,
	`\bdose\s+of\b`,
	`\bwhat\s+treatment\b`,
	`\b(adjust|increase|decrease|change)\s+(his|her|the|their)\s+(dose|medication)\b`,
	`\bmedical\s+advice\b`,
}

// defaultSeverityPatterns are grammar-aware structures for qualitative
// assessment questions ("how bad", "is it serious", "should I worry").
var defaultSeverityPatterns = []string{
	`\bhow\s+(bad|serious|severe|critical|dangerous|concerning|worrying|urgent)\b`,
	`\bhow\s+(good|stable|mild|manageable)\b`,
	`\bis\s+(his|her|the|this)\s+\w*\s*(serious|severe|bad|dangerous|critical|concerning|worrying)\b`,
	`\bis\s+(it|this)\s+(serious|severe|bad|dangerous|critical|concerning)\b`,
	`\bshould\s+(i|we)\s+(be\s+)?(worried|concerned|alarmed)\b`,
	`\bshould\s+(i|we)\s+worry\b`,
	`\bis\s+(this|it)\s+(something\s+to\s+)?(worry|concern)\b`,
	`\b(does|do)\s+(he|she|they)\s+have\s+a\s+(severe|bad|serious|mild|moderate)\s+(case|condition)\b`,
	`\bwhat\s+is\s+(the\s+)?(severity|seriousness|prognosis)\b`,
	`\bhow\s+(concerning|worrying)\s+is\b`,
	`\bis\s+(this|it)\s+a\s+(severe|mild|serious|bad|moderate)\s+(case|condition)\b`,
	`\brisk\s+level\b`,
}

// defaultFactualGuardPatterns mark explicit factual lookups that must
// never be mistaken for severity assessment.
var defaultFactualGuardPatterns = []string{
	`\bwhat\s+(is|are)\s+(his|her|the)\s+(diagnosis|condition|disease|illness)\b`,
	`\bwhat\s+condition\s+(does|do)\b`,
	`\bwhat\s+is\s+\w+\s+(diagnosed|suffering)\b`,
	`\bhow\s+old\b`,
	`\bwhat\s+is\s+(his|her|the)\s+age\b`,
}

// defaultTemporalKeywords route change-over-time questions to the
// complex analysis path.
var defaultTemporalKeywords = []string{
	"changed", "changes", "changing",
	"worsened", "worsen", "worsening",
	"progressed", "progress", "progression",
	"improved", "improve", "improving",
	"deteriorated", "deteriorating",
	"getting worse", "getting better",
	"over time", "over the years", "over the months",
	"throughout", "since then", "before and after",
	"trend", "trends", "pattern", "patterns",
	"compare", "comparison", "difference",
}

// defaultSummaryKeywords route overview questions to the summary path.
var defaultSummaryKeywords = []string{
	"summary", "summarize", "summarise",
	"overview", "tell me about",
	"who is", "describe", "background",
	"treatment history", "visit history", "visits",
	"history",
}

// defaultSynthesisPatterns are the explicit cross-source signals required
// before synthetic reasoning may activate.
var defaultSynthesisPatterns = []string{
	`\b(overall|altogether|combined|aggregate|across all)\b`,
	`\b(big picture|whole picture|full picture)\b`,
	`\b(patterns? across|trends? across|data (together|combined))\b`,
	`\b(history and (vitals?|labs?)|vitals? and labs?)\b`,
	`\b(all (the|her|his|their) data)\b`,
	`\b(looking at everything|considering all|taking into account)\b`,
	`\b(synthesis|synthesize|comprehensive view)\b`,
	`\b(over (the )?time.*together|together.*over (the )?time)\b`,
}
