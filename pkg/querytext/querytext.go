// Package querytext provides deterministic text primitives for patient
// query understanding: normalization, possessive and pronoun detection,
// and explicit patient reference extraction.
//
// Everything in this package is pure string processing. Resolution policy
// (context lookups, gender checks against live records, ambiguity
// handling) lives in the resolver service; this package only reports what
// the text literally contains.
package querytext

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Pronoun genders reported by DetectPronoun
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Pronouns that indicate reference to a previously discussed patient
var (
	malePronouns   = map[string]bool{"he": true, "him": true, "his": true}
	femalePronouns = map[string]bool{"she": true, "her": true, "hers": true}
)

// Patient id reference patterns, strictest first. Only explicit forms
// match: "patient id 3", "patient 3", "id: 3", "#3".
var patientIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bpatient\s+id\s*[:\s]*(\d+)\b`),
	regexp.MustCompile(`\bpatient\s+(\d+)\b`),
	regexp.MustCompile(`\bid\s*[:\s]*(\d+)\b`),
	regexp.MustCompile(`#(\d+)\b`),
}

// Possessive forms with straight and curly apostrophes
var possessivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\w+)'s\b`),
	regexp.MustCompile(`(\w+)’s\b`),
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// Known patient first and last names. Used to catch name mentions that
// arrive lowercased, where capitalization detection cannot help.
var commonFirstNames = map[string]bool{
	"james": true, "mary": true, "robert": true, "patricia": true,
	"john": true, "jennifer": true, "michael": true, "linda": true,
	"david": true, "elizabeth": true, "william": true, "barbara": true,
	"richard": true, "susan": true, "joseph": true, "jessica": true,
	"thomas": true, "sarah": true, "christopher": true, "karen": true,
}

var commonLastNames = map[string]bool{
	"smith": true, "johnson": true, "williams": true, "brown": true,
	"jones": true, "garcia": true, "miller": true, "davis": true,
	"rodriguez": true, "martinez": true, "hernandez": true, "lopez": true,
	"gonzalez": true, "wilson": true, "anderson": true, "thomas": true,
	"taylor": true, "moore": true, "jackson": true, "martin": true,
}

// Normalize lowercases the query, strips possessive suffixes
// ("sarah's" becomes "sarah") and collapses whitespace.
func Normalize(query string) string {
	if query == "" {
		return ""
	}

	normalized := strings.ToLower(query)
	for _, pattern := range possessivePatterns {
		normalized = pattern.ReplaceAllString(normalized, "$1")
	}

	return strings.Join(strings.Fields(normalized), " ")
}

// ExtractPossessiveName returns the lowercased base name of the first
// possessive form in the query ("Sarah's condition" yields "sarah").
func ExtractPossessiveName(query string) (string, bool) {
	lowered := strings.ToLower(query)
	for _, pattern := range possessivePatterns {
		if m := pattern.FindStringSubmatch(lowered); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// DetectPronoun reports whether the query contains a third-person
// pronoun and the gender it implies. Male pronouns win when both appear,
// matching the word-set semantics the resolver's gender check relies on.
func DetectPronoun(query string) (string, bool) {
	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}

	for p := range malePronouns {
		if seen[p] {
			return GenderMale, true
		}
	}
	for p := range femalePronouns {
		if seen[p] {
			return GenderFemale, true
		}
	}
	return "", false
}

// anaphorPhrases refer back to the patient under discussion without
// naming anyone and without implying a gender.
var anaphorPhrases = []string{"the patient", "this patient"}

// HasAnaphor reports whether the query refers back to the current
// patient with a genderless phrase like "the patient".
func HasAnaphor(query string) bool {
	lowered := strings.ToLower(query)
	for _, phrase := range anaphorPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// StripPronouns removes patient pronouns from the query.
func StripPronouns(query string) string {
	words := strings.Fields(query)
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		lw := strings.ToLower(w)
		if malePronouns[lw] || femalePronouns[lw] {
			continue
		}
		cleaned = append(cleaned, w)
	}
	return strings.Join(cleaned, " ")
}

// ExtractPatientID extracts an explicit numeric patient reference.
func ExtractPatientID(query string) (int64, bool) {
	lowered := strings.ToLower(query)
	for _, pattern := range patientIDPatterns {
		if m := pattern.FindStringSubmatch(lowered); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				continue
			}
			return id, true
		}
	}
	return 0, false
}

// ExtractNameCandidates returns potential patient name mentions in
// lookup order: consecutive capitalized word pairs (full names) first,
// then single capitalized words, then known first or last names that
// arrived lowercased. Possessive suffixes and surrounding punctuation
// are stripped, so "Smith's" and "Smith." both yield "Smith"; a fully
// specified name therefore stays a full-name candidate instead of
// degrading into an ambiguous single token.
func ExtractNameCandidates(query string) []string {
	var words []string
	for _, w := range strings.Fields(query) {
		if cleaned := cleanWord(w); cleaned != "" {
			words = append(words, cleaned)
		}
	}

	capitalized := make([]string, 0, len(words))
	for _, w := range words {
		if isCapitalizedWord(w) {
			capitalized = append(capitalized, w)
		}
	}

	var candidates []string
	for i := 0; i+1 < len(capitalized); i++ {
		candidates = append(candidates, capitalized[i]+" "+capitalized[i+1])
	}
	candidates = append(candidates, capitalized...)

	for _, w := range words {
		lw := strings.ToLower(w)
		if commonFirstNames[lw] || commonLastNames[lw] {
			if !containsString(candidates, w) {
				candidates = append(candidates, w)
			}
		}
	}

	return candidates
}

// cleanWord strips a possessive suffix and surrounding punctuation,
// returning empty when no letters remain.
func cleanWord(w string) string {
	for _, suffix := range []string{"'s", "'S", "’s", "’S"} {
		if strings.HasSuffix(w, suffix) {
			w = w[:len(w)-len(suffix)]
			break
		}
	}
	w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
	if !isAlphaWord(w) {
		return ""
	}
	return w
}

// GenderMatches reports whether a detected pronoun gender is compatible
// with a patient's recorded gender. An unrecorded patient gender allows
// the match; a recorded one must agree, so a mismatched pronoun can
// never silently answer about the wrong patient.
func GenderMatches(pronounGender, patientGender string) bool {
	if patientGender == "" {
		return true
	}

	pg := strings.ToLower(patientGender)
	switch pronounGender {
	case GenderMale:
		return pg == "male" || pg == "m" || pg == "man"
	case GenderFemale:
		return pg == "female" || pg == "f" || pg == "woman"
	default:
		return false
	}
}

func isCapitalizedWord(w string) bool {
	if !isAlphaWord(w) {
		return false
	}
	r := []rune(w)
	return unicode.IsUpper(r[0])
}

func isAlphaWord(w string) bool {
	if w == "" {
		return false
	}
	for _, r := range w {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
