package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
	"github.com/patient-insight-server/pkg/querytext"
)

// Resolution methods recorded for logging and audit.
const (
	methodID         = "ID"
	methodName       = "NAME"
	methodPossessive = "POSSESSIVE"
	methodPronoun    = "PRONOUN"
	methodContext    = "CONTEXT"
	methodNone       = "NONE"
)

// Resolver establishes which patient a query refers to. Explicit
// references (id, name, possessive) are tried before pronouns, and a
// pronoun only ever resolves through the session's conversation context
// after a live gender check, so a mismatched "he" can never silently
// answer about a remembered "she".
type Resolver struct {
	source domain.EvidenceSource
	store  domain.ContextStore
	logger *logrus.Logger
}

// NewResolver creates a patient resolver.
func NewResolver(source domain.EvidenceSource, store domain.ContextStore, logger *logrus.Logger) *Resolver {
	return &Resolver{
		source: source,
		store:  store,
		logger: logger,
	}
}

// Resolve works out the patient a query refers to. Successful
// resolutions refresh the session context with the patient id and the
// query's intent; ambiguous and failed resolutions leave it untouched.
// The returned error is reserved for evidence source failures; every
// linguistic outcome is a Resolution status.
func (r *Resolver) Resolve(ctx context.Context, sessionID, query string, intent domain.Intent) (*domain.Resolution, error) {
	// Explicit numeric reference wins over everything.
	if id, ok := querytext.ExtractPatientID(query); ok {
		patient, err := r.source.GetPatient(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return &domain.Resolution{Status: domain.NOT_FOUND, Method: methodID}, nil
		}
		if err != nil {
			return nil, err
		}
		return r.resolved(sessionID, patient, methodID, intent), nil
	}

	// Name-shaped tokens, full-name pairs first. A candidate that
	// matches decides immediately: one hit resolves, several hits are
	// ambiguous and must not guess. Candidates that match nothing are
	// remembered but do not yet fail the query, because a capitalized
	// non-name ("BMI") must not shadow a pronoun reference later in
	// the sentence.
	triedName := false
	for _, candidate := range querytext.ExtractNameCandidates(query) {
		res, decided, err := r.lookupName(ctx, sessionID, candidate, methodName, intent)
		if err != nil {
			return nil, err
		}
		if decided {
			return res, nil
		}
		triedName = true
	}

	// Possessive base name catches lowercased names the candidate scan
	// cannot see ("mira's condition").
	if name, ok := querytext.ExtractPossessiveName(query); ok {
		res, decided, err := r.lookupName(ctx, sessionID, name, methodPossessive, intent)
		if err != nil {
			return nil, err
		}
		if decided {
			return res, nil
		}
		triedName = true
	}

	// Pronouns resolve through conversation context with a gender check
	// against the live patient record.
	if pronounGender, ok := querytext.DetectPronoun(query); ok {
		return r.resolveFromContext(ctx, sessionID, pronounGender, intent)
	}

	// Genderless anaphora ("the patient") also resolve through context.
	if querytext.HasAnaphor(query) {
		return r.resolveFromContext(ctx, sessionID, "", intent)
	}

	if triedName {
		return &domain.Resolution{Status: domain.NOT_FOUND, Method: methodName}, nil
	}
	return &domain.Resolution{Status: domain.NO_REFERENCE, Method: methodNone}, nil
}

// lookupName resolves one name candidate. decided is false when the
// candidate matched no patient and the caller should keep trying.
func (r *Resolver) lookupName(ctx context.Context, sessionID, name, method string, intent domain.Intent) (*domain.Resolution, bool, error) {
	matches, err := r.source.FindPatientsByName(ctx, name)
	if err != nil {
		return nil, false, err
	}

	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		patient := matches[0]
		return r.resolved(sessionID, &patient, method, intent), true, nil
	default:
		r.logger.WithFields(logrus.Fields{
			"session_id":  sessionID,
			"candidate":   name,
			"match_count": len(matches),
		}).Info("Ambiguous patient reference")
		return &domain.Resolution{
			Status:     domain.AMBIGUOUS,
			MatchCount: len(matches),
			Matches:    matches,
			Method:     method,
		}, true, nil
	}
}

// resolveFromContext handles pronoun and anaphoric references. The
// remembered id is re-fetched from the evidence source so the gender
// check and every downstream read run against live data, never against
// anything cached in the session.
func (r *Resolver) resolveFromContext(ctx context.Context, sessionID, pronounGender string, intent domain.Intent) (*domain.Resolution, error) {
	conv, ok := r.store.Get(sessionID)
	if !ok {
		return &domain.Resolution{Status: domain.PRONOUN_NO_CONTEXT, Method: methodPronoun}, nil
	}

	patient, err := r.source.GetPatient(ctx, conv.LastPatientID)
	if errors.Is(err, domain.ErrNotFound) {
		// The remembered patient no longer exists; the context is
		// stale and useless for any later turn.
		r.store.Clear(sessionID)
		return &domain.Resolution{Status: domain.NOT_FOUND, Method: methodPronoun}, nil
	}
	if err != nil {
		return nil, err
	}

	if pronounGender != "" && !querytext.GenderMatches(pronounGender, patient.Gender) {
		r.logger.WithFields(logrus.Fields{
			"session_id":     sessionID,
			"pronoun_gender": pronounGender,
			"patient_id":     patient.PatientID,
			"patient_gender": patient.Gender,
		}).Info("Pronoun gender mismatch")
		return &domain.Resolution{Status: domain.GENDER_MISMATCH, Method: methodPronoun}, nil
	}

	method := methodPronoun
	if pronounGender == "" {
		method = methodContext
	}
	return r.resolved(sessionID, patient, method, intent), nil
}

// resolved builds a successful resolution and refreshes the session
// context, restarting its expiry window.
func (r *Resolver) resolved(sessionID string, patient *domain.Patient, method string, intent domain.Intent) *domain.Resolution {
	r.store.Put(sessionID, patient.PatientID, intent)

	r.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"patient_id": patient.PatientID,
		"method":     method,
	}).Debug("Patient reference resolved")

	return &domain.Resolution{
		Status:    domain.OK,
		PatientID: patient.PatientID,
		Patient:   patient,
		Method:    method,
	}
}
