// Package session keeps per-session conversation context in memory so
// follow-up questions ("how old is he?") can be resolved against the
// patient discussed in an earlier turn.
package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// Sessions that never return are swept out on this interval.
const purgeSweepInterval = 5 * time.Minute

// Store is an in-memory implementation of domain.ContextStore guarded by
// a read-write mutex. Contexts expire on a sliding window: every
// successful Put resets the clock, Get lazily evicts entries whose
// window has elapsed, and a background sweep catches the rest.
type Store struct {
	logger   *logrus.Logger
	window   time.Duration
	mu       sync.RWMutex
	sessions map[string]*domain.ConversationContext
}

// NewStore creates a context store with the given expiry window.
func NewStore(window time.Duration, logger *logrus.Logger) *Store {
	s := &Store{
		logger:   logger,
		window:   window,
		sessions: make(map[string]*domain.ConversationContext),
	}

	go s.startPurgeRoutine()

	return s
}

// Get returns the live context for a session. Expired contexts are
// deleted on access and reported as a miss, so a stale patient reference
// can never leak into resolution.
func (s *Store) Get(sessionID string) (*domain.ConversationContext, bool) {
	s.mu.RLock()
	ctx, exists := s.sessions[sessionID]
	s.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if ctx.Expired(s.window, time.Now()) {
		s.mu.Lock()
		// Re-check under the write lock: a concurrent Put may have
		// refreshed the entry between the two lock acquisitions.
		if cur, ok := s.sessions[sessionID]; ok && cur.Expired(s.window, time.Now()) {
			delete(s.sessions, sessionID)
			s.logger.WithFields(logrus.Fields{
				"session_id": sessionID,
				"age":        time.Since(cur.CreatedAt).String(),
			}).Debug("Evicted expired conversation context")
		}
		s.mu.Unlock()
		return nil, false
	}

	// Return a copy to prevent external modification
	ctxCopy := *ctx
	return &ctxCopy, true
}

// Put records the patient a session is currently discussing. The window
// restarts from now, whether the entry is new or refreshed.
func (s *Store) Put(sessionID string, patientID int64, intent domain.Intent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sessionID] = &domain.ConversationContext{
		SessionID:     sessionID,
		LastPatientID: patientID,
		LastIntent:    intent,
		CreatedAt:     time.Now(),
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"patient_id": patientID,
		"intent":     intent.String(),
	}).Debug("Updated conversation context")
}

// Clear drops the context for a session.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of stored contexts, expired entries included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// startPurgeRoutine periodically sweeps out expired contexts.
func (s *Store) startPurgeRoutine() {
	ticker := time.NewTicker(purgeSweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.Purge()
	}
}

// Purge removes every expired context in one sweep. Get already evicts
// lazily; the sweep keeps the map from accumulating entries for
// sessions that never come back.
func (s *Store) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	expired := make([]string, 0)
	for id, ctx := range s.sessions {
		if ctx.Expired(s.window, now) {
			expired = append(expired, id)
		}
	}

	for _, id := range expired {
		delete(s.sessions, id)
	}

	if len(expired) > 0 {
		s.logger.WithField("expired_count", len(expired)).Debug("Purged expired conversation contexts")
	}
	return len(expired)
}
