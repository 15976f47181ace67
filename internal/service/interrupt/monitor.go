// Package interrupt assesses whether a transcript segment arriving during an
// in-flight reply should interrupt it. Interim segments are noisy, so the
// assessment is two-tier: a soft verdict stops chunk emission immediately,
// a confirmed verdict abandons the generation epoch.
package interrupt

import (
	"strings"
	"time"

	"ai-call-orchestrator-service/internal/config"
	"ai-call-orchestrator-service/internal/models"
)

// Verdict is the outcome of an interruption assessment.
type Verdict int

const (
	// VerdictNone - the segment does not interrupt the current reply.
	VerdictNone Verdict = iota
	// VerdictSoft - stop emitting new chunks and acknowledge the user,
	// but do not yet commit to a new utterance.
	VerdictSoft
	// VerdictConfirmed - abandon the current epoch and treat the segment
	// as a new utterance.
	VerdictConfirmed
)

// String returns the string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictNone:
		return "NONE"
	case VerdictSoft:
		return "SOFT"
	case VerdictConfirmed:
		return "CONFIRMED"
	default:
		return "UNKNOWN"
	}
}

// Monitor assesses transcript segments against interruption criteria.
// Stateless; the orchestrator applies the consequences.
type Monitor struct {
	cfg config.InterruptConfig
}

// New creates a monitor with the given tuning.
func New(cfg config.InterruptConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

// Assess returns the interruption verdict for a segment that arrived while a
// reply was in flight. sinceLastDispatch is the time since the last reply
// chunk was dispatched for the session.
func (m *Monitor) Assess(seg models.TranscriptSegment, sinceLastDispatch time.Duration) Verdict {
	text := strings.TrimSpace(seg.Text)
	if text == "" || m.isFiller(text) {
		return VerdictNone
	}

	if !seg.Final {
		if len(text) > m.cfg.SoftMinLen {
			return VerdictSoft
		}
		return VerdictNone
	}

	if len(text) <= m.cfg.ConfirmedMinLen {
		return VerdictNone
	}
	if m.isGratitude(text) {
		return VerdictNone
	}
	// Within the grace period the user is likely reacting to the reply we
	// just played, not talking over it.
	if sinceLastDispatch < m.cfg.DispatchGrace {
		return VerdictNone
	}
	return VerdictConfirmed
}

// isFiller reports whether the fragment is a filler word as its leading token.
func (m *Monitor) isFiller(text string) bool {
	lower := strings.ToLower(text)
	first := lower
	if i := strings.IndexAny(lower, " ,."); i >= 0 {
		first = lower[:i]
	}
	for _, filler := range m.cfg.FillerWords {
		if first == filler {
			return true
		}
	}
	return false
}

func (m *Monitor) isGratitude(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range m.cfg.GratitudePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
