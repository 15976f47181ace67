// Package segmenter decides when an accumulating transcript has become one
// complete user utterance, and whether an utterance ends the call. It is the
// single home for these heuristics; thresholds and phrase sets are
// configuration, not constants.
package segmenter

import (
	"strings"
	"time"

	"ai-call-orchestrator-service/internal/config"
)

// Segmenter evaluates utterance completeness and goodbye detection. All
// methods are pure functions of their inputs: calling them twice on the same
// buffer yields the same verdict.
type Segmenter struct {
	cfg config.SegmenterConfig
}

// New creates a segmenter with the given tuning.
func New(cfg config.SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Complete judges whether the pending buffer is a complete utterance.
// sinceLastArrival is the time elapsed since the newest transcript segment.
func (sg *Segmenter) Complete(buffer string, sinceLastArrival time.Duration) bool {
	text := strings.TrimSpace(buffer)
	if text == "" {
		return false
	}

	// Length floor suppresses false triggers on very short fragments.
	if len(text) < sg.cfg.MinUtteranceLen {
		return false
	}

	if endsWithTerminalPunctuation(text) {
		return true
	}

	lower := strings.ToLower(text)
	for _, stem := range sg.cfg.QuestionStems {
		if strings.HasPrefix(lower, stem+" ") || lower == stem {
			return true
		}
	}
	for _, phrase := range sg.cfg.CourtesyPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}

	return sinceLastArrival >= sg.cfg.SilenceThreshold
}

// Goodbye reports whether the buffer is a call-ending utterance: a goodbye
// phrase with no continuation cue alongside it.
func (sg *Segmenter) Goodbye(buffer string) bool {
	lower := strings.ToLower(strings.TrimSpace(buffer))
	if lower == "" {
		return false
	}

	matched := false
	for _, phrase := range sg.cfg.GoodbyePhrases {
		if strings.Contains(lower, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, cue := range sg.cfg.ContinuationCues {
		if strings.Contains(lower, cue) {
			return false
		}
	}
	return true
}

// Cooldown returns the configured minimum spacing between generation cycles.
func (sg *Segmenter) Cooldown() time.Duration {
	return sg.cfg.Cooldown
}

// SilenceThreshold returns the configured silence threshold.
func (sg *Segmenter) SilenceThreshold() time.Duration {
	return sg.cfg.SilenceThreshold
}

func endsWithTerminalPunctuation(text string) bool {
	switch text[len(text)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
