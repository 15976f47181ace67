package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-call-orchestrator-service/internal/observability/metrics"
)

// Store is the registry of active call sessions. The registry lock guards
// only map mutation; each Session carries its own lock for field-level
// mutation, so destroying one session never blocks operations on another.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *metrics.Metrics
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		metrics:  metrics.DefaultMetrics,
	}
}

// Create registers a session for the call, or returns the existing one.
// Idempotent: a duplicate "call started" signal is self-healing, not fatal.
func (st *Store) Create(callID string, metadata map[string]string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if existing, ok := st.sessions[callID]; ok {
		log.Warn().Str("callId", callID).Msg("Duplicate session create, returning existing")
		return existing
	}

	s := newSession(callID, metadata)
	st.sessions[callID] = s
	st.metrics.RecordSessionCreated()

	log.Info().Str("callId", callID).Msg("Session created")
	return s
}

// Get returns the session for the call, or nil if none exists.
func (st *Store) Get(callID string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[callID]
}

// Destroy removes the session and runs its teardown hooks (cancels any
// in-flight generation, closes the transcriber stream). Idempotent: an
// "end" signal without a matching "start" is logged and ignored.
func (st *Store) Destroy(callID string) {
	st.mu.Lock()
	s, ok := st.sessions[callID]
	if ok {
		delete(st.sessions, callID)
	}
	st.mu.Unlock()

	if !ok {
		log.Warn().Str("callId", callID).Msg("Destroy for unknown session, ignoring")
		return
	}

	s.teardown()
	st.metrics.RecordSessionDestroyed(time.Since(s.createdAt).Seconds())

	log.Info().
		Str("callId", callID).
		Dur("lifetime", time.Since(s.createdAt)).
		Msg("Session destroyed")
}

// Len returns the number of active sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
