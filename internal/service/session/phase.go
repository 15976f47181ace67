// Package session provides per-call session state and the session store.
package session

import (
	"errors"
	"fmt"
)

// Phase represents the lifecycle phase of a call session.
type Phase int

const (
	// PhaseListening - waiting for the user to speak.
	PhaseListening Phase = iota
	// PhaseSegmenting - transcript is accumulating, not yet a complete utterance.
	PhaseSegmenting
	// PhaseGenerating - a reply is being generated, nothing dispatched yet.
	PhaseGenerating
	// PhaseStreaming - reply chunks are being dispatched to the call.
	PhaseStreaming
	// PhaseEnded - call terminated. Terminal state.
	PhaseEnded
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "LISTENING"
	case PhaseSegmenting:
		return "SEGMENTING"
	case PhaseGenerating:
		return "GENERATING"
	case PhaseStreaming:
		return "STREAMING"
	case PhaseEnded:
		return "ENDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", p)
	}
}

// IsTerminal returns true if the phase is terminal.
func (p Phase) IsTerminal() bool {
	return p == PhaseEnded
}

// Errors for invalid phase transitions.
var (
	ErrSessionEnded      = errors.New("session has ended")
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// validTransitions encodes the session state machine:
//
//	LISTENING → SEGMENTING → GENERATING → STREAMING → LISTENING
//	STREAMING/GENERATING → GENERATING again on confirmed interruption
//	any → ENDED
var validTransitions = map[Phase][]Phase{
	PhaseListening:  {PhaseSegmenting, PhaseGenerating, PhaseEnded},
	PhaseSegmenting: {PhaseListening, PhaseGenerating, PhaseEnded},
	PhaseGenerating: {PhaseStreaming, PhaseGenerating, PhaseListening, PhaseEnded},
	PhaseStreaming:  {PhaseGenerating, PhaseListening, PhaseEnded},
	PhaseEnded:      {},
}

func canTransition(from, to Phase) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
