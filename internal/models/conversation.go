// Package models defines the data structures shared across the call orchestrator.
package models

import "time"

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptSegment is a single transcription event for a sub-span of speech.
// Immutable once constructed; not retained beyond the accumulation step.
type TranscriptSegment struct {
	Text       string
	Final      bool
	Confidence float64
	ReceivedAt time.Time
}

// ReplyChunk is one unit of reply text bound for the call-control channel.
// A chunk whose Epoch no longer matches the session's current generation
// epoch is stale and must be discarded unsent.
type ReplyChunk struct {
	Text  string
	Seq   int
	Epoch uint64
}

// HistoryEntry is one turn of the conversation. Append-only, never mutated
// or reordered; fed back into the generator as context and published as an
// audit trail.
type HistoryEntry struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}
