package querytext

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty query", "", ""},
		{"lowercases", "What Is His Condition", "what is his condition"},
		{"strips possessive", "Sarah's condition", "sarah condition"},
		{"strips curly possessive", "Sarah’s condition", "sarah condition"},
		{"collapses whitespace", "  tell   me about   John ", "tell me about john"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExtractPossessiveName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		found    bool
	}{
		{"standard apostrophe", "Sarah's condition", "sarah", true},
		{"curly apostrophe", "John’s history", "john", true},
		{"no possessive", "tell me about Sarah", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractPossessiveName(tt.input)
			if found != tt.found || got != tt.expected {
				t.Errorf("ExtractPossessiveName(%q) = (%q, %v), expected (%q, %v)",
					tt.input, got, found, tt.expected, tt.found)
			}
		})
	}
}

func TestDetectPronoun(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		gender   string
		detected bool
	}{
		{"male pronoun", "what is his diagnosis", GenderMale, true},
		{"female pronoun", "how old is she", GenderFemale, true},
		{"object pronoun", "tell me about her", GenderFemale, true},
		{"male wins over female", "did his doctor see her", GenderMale, true},
		{"no pronoun", "what is the diagnosis", "", false},
		{"embedded letters do not match", "is the shelter heated", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gender, detected := DetectPronoun(tt.input)
			if detected != tt.detected || gender != tt.gender {
				t.Errorf("DetectPronoun(%q) = (%q, %v), expected (%q, %v)",
					tt.input, gender, detected, tt.gender, tt.detected)
			}
		})
	}
}

func TestStripPronouns(t *testing.T) {
	got := StripPronouns("what is his condition and her age")
	expected := "what is condition and age"
	if got != expected {
		t.Errorf("StripPronouns() = %q, expected %q", got, expected)
	}
}

func TestExtractPatientID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
		found    bool
	}{
		{"patient id with colon", "show patient id: 12", 12, true},
		{"patient id with space", "patient id 7", 7, true},
		{"patient number", "tell me about patient 3", 3, true},
		{"bare id", "id: 42", 42, true},
		{"hash reference", "what about #9", 9, true},
		{"no reference", "tell me about Sarah", 0, false},
		{"bare number is not a reference", "is 120 over 80 normal", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ExtractPatientID(tt.input)
			if found != tt.found || got != tt.expected {
				t.Errorf("ExtractPatientID(%q) = (%d, %v), expected (%d, %v)",
					tt.input, got, found, tt.expected, tt.found)
			}
		})
	}
}

func TestExtractNameCandidates(t *testing.T) {
	t.Run("full name pair comes first", func(t *testing.T) {
		candidates := ExtractNameCandidates("Tell me about Emily Smith")
		if len(candidates) == 0 {
			t.Fatal("expected candidates, got none")
		}
		if !containsString(candidates, "Emily Smith") {
			t.Errorf("expected full-name candidate, got %v", candidates)
		}
		// Pairs must be tried before single words so "Emily Smith"
		// cannot lose to a bare "Emily" lookup.
		var pairIdx, singleIdx int
		for i, c := range candidates {
			if c == "Emily Smith" {
				pairIdx = i
			}
			if c == "Emily" {
				singleIdx = i
			}
		}
		if pairIdx > singleIdx {
			t.Errorf("pair candidate ordered after single: %v", candidates)
		}
	})

	t.Run("lowercase known name is caught", func(t *testing.T) {
		candidates := ExtractNameCandidates("tell me about sarah")
		if !containsString(candidates, "sarah") {
			t.Errorf("expected lowercase known name, got %v", candidates)
		}
	})

	t.Run("possessive keeps full name together", func(t *testing.T) {
		candidates := ExtractNameCandidates("What is Robert Brown's risk level")
		if !containsString(candidates, "Robert Brown") {
			t.Errorf("expected full-name candidate from possessive form, got %v", candidates)
		}
	})

	t.Run("trailing punctuation is trimmed", func(t *testing.T) {
		candidates := ExtractNameCandidates("Tell me about Emily Smith.")
		if !containsString(candidates, "Emily Smith") {
			t.Errorf("expected full-name candidate despite punctuation, got %v", candidates)
		}
	})

	t.Run("no names", func(t *testing.T) {
		candidates := ExtractNameCandidates("what is the current time")
		if containsString(candidates, "what") || containsString(candidates, "time") {
			t.Errorf("unexpected candidates %v", candidates)
		}
	})
}

func TestHasAnaphor(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"how is the patient doing", true},
		{"summarize this patient", true},
		{"how is Emily doing", false},
		{"list all patients", false},
	}

	for _, tt := range tests {
		if got := HasAnaphor(tt.input); got != tt.expected {
			t.Errorf("HasAnaphor(%q) = %v, expected %v", tt.input, got, tt.expected)
		}
	}
}

func TestGenderMatches(t *testing.T) {
	tests := []struct {
		name          string
		pronounGender string
		patientGender string
		expected      bool
	}{
		{"male matches Male", GenderMale, "Male", true},
		{"male matches M", GenderMale, "M", true},
		{"female matches Female", GenderFemale, "Female", true},
		{"female matches woman", GenderFemale, "woman", true},
		{"male does not match Female", GenderMale, "Female", false},
		{"female does not match Male", GenderFemale, "Male", false},
		{"unknown patient gender allows match", GenderMale, "", true},
		{"unknown pronoun gender never matches", "", "Male", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenderMatches(tt.pronounGender, tt.patientGender); got != tt.expected {
				t.Errorf("GenderMatches(%q, %q) = %v, expected %v",
					tt.pronounGender, tt.patientGender, got, tt.expected)
			}
		})
	}
}
