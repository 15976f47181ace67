package session

import (
	"strings"
	"sync"
	"time"

	"ai-call-orchestrator-service/internal/models"
)

// Session holds the mutable per-call state. All fields are guarded by the
// session's own lock so that operations on one session never block another.
// Collaborators access sessions only through the Store.
type Session struct {
	callID   string
	metadata map[string]string

	mu              sync.Mutex
	phase           Phase
	pending         strings.Builder
	lastTranscript  time.Time
	lastDispatch    time.Time
	lastCycleEnd    time.Time
	replyInFlight   bool
	softStopped     bool
	degraded        bool
	epoch           uint64
	chunkSeq        int
	history         []models.HistoryEntry
	cancelCycle     func()
	teardownHooks   []func()
	createdAt       time.Time
	utteranceCount  int
	interruptCount  int
}

func newSession(callID string, metadata map[string]string) *Session {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return &Session{
		callID:    callID,
		metadata:  md,
		phase:     PhaseListening,
		createdAt: time.Now(),
	}
}

// CallID returns the call identifier. Stable for the session's lifetime.
func (s *Session) CallID() string {
	return s.callID
}

// Metadata returns the caller-supplied metadata value for a key.
func (s *Session) Metadata(key string) string {
	return s.metadata[key]
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// TransitionTo moves the session to the given phase, validating the
// transition against the state machine. Transitions out of ENDED are
// rejected with ErrSessionEnded.
func (s *Session) TransitionTo(to Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseEnded {
		return ErrSessionEnded
	}
	if !canTransition(s.phase, to) {
		return ErrInvalidTransition
	}
	s.phase = to
	return nil
}

// Ended returns true if the session reached its terminal phase.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase.IsTerminal()
}

// Epoch returns the current generation epoch.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// BumpEpoch starts a new generation epoch and returns it. Any chunk tagged
// with an older epoch becomes stale and is dropped at dispatch time.
func (s *Session) BumpEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.softStopped = false
	return s.epoch
}

// ReplyInFlight reports whether a generation cycle is active.
func (s *Session) ReplyInFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replyInFlight
}

// SetReplyInFlight marks the start or end of a generation cycle.
func (s *Session) SetReplyInFlight(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replyInFlight = v
}

// SoftStop pauses chunk emission for the current cycle without abandoning
// it. Cleared when a new epoch begins.
func (s *Session) SoftStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.softStopped = true
}

// SoftStopped reports whether emission is paused by a soft interruption.
func (s *Session) SoftStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softStopped
}

// AppendPending merges final transcript text into the pending buffer and
// returns the merged buffer. Interim results never persist here.
func (s *Session) AppendPending(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Len() > 0 && text != "" {
		s.pending.WriteByte(' ')
	}
	s.pending.WriteString(strings.TrimSpace(text))
	return s.pending.String()
}

// PendingBuffer returns the current pending transcript without clearing it.
func (s *Session) PendingBuffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.String()
}

// TakePending copies out the pending buffer and clears it. Called exactly
// once per completed utterance.
func (s *Session) TakePending() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.pending.String()
	s.pending.Reset()
	return text
}

// MarkTranscript records a transcript arrival time.
func (s *Session) MarkTranscript(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTranscript = at
}

// LastTranscript returns the time of the most recent transcript arrival.
func (s *Session) LastTranscript() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTranscript
}

// MarkDispatch records the time of a reply dispatch.
func (s *Session) MarkDispatch(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDispatch = at
}

// LastDispatch returns the time of the most recent reply dispatch.
func (s *Session) LastDispatch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDispatch
}

// MarkCycleEnd records the completion time of a generation cycle, used by
// the cooldown limiter.
func (s *Session) MarkCycleEnd(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCycleEnd = at
}

// LastCycleEnd returns the completion time of the last generation cycle.
func (s *Session) LastCycleEnd() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCycleEnd
}

// NextChunkSeq returns the next chunk sequence index for the session.
func (s *Session) NextChunkSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkSeq++
	return s.chunkSeq
}

// AppendHistory appends a conversation turn. Entries are strictly
// chronological and match actual dispatch, never speculative.
func (s *Session) AppendHistory(entry models.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
}

// History returns a copy of the conversation history.
func (s *Session) History() []models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// MarkDegraded flags the session after a dispatch fault. The session is not
// torn down; the next utterance gets a fresh attempt.
func (s *Session) MarkDegraded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded = true
}

// Degraded reports whether a dispatch fault occurred on this session.
func (s *Session) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// SetCycleCancel stores the cancel function of the in-flight generation
// cycle so teardown can abort it.
func (s *Session) SetCycleCancel(cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelCycle = cancel
}

// CancelCycle aborts any in-flight generation cycle.
func (s *Session) CancelCycle() {
	s.mu.Lock()
	cancel := s.cancelCycle
	s.cancelCycle = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// OnTeardown registers a hook run when the session is destroyed.
func (s *Session) OnTeardown(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownHooks = append(s.teardownHooks, hook)
}

// CountUtterance increments and returns the utterance counter.
func (s *Session) CountUtterance() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utteranceCount++
	return s.utteranceCount
}

// CountInterrupt increments and returns the confirmed-interruption counter.
func (s *Session) CountInterrupt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptCount++
	return s.interruptCount
}

func (s *Session) teardown() {
	s.mu.Lock()
	s.phase = PhaseEnded
	hooks := s.teardownHooks
	s.teardownHooks = nil
	cancel := s.cancelCycle
	s.cancelCycle = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, hook := range hooks {
		hook()
	}
}
