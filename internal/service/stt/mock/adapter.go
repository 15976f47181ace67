// Package mock provides a mock transcription adapter for testing without
// cloud credentials. It simulates realistic streaming behavior with
// progressive interim transcripts followed by exactly one final per
// utterance. Utterance boundary decisions are left to the orchestrator's
// segmenter, as with the real providers.
package mock

import (
	"context"
	"sync"
	"time"

	"ai-call-orchestrator-service/internal/service/stt"
)

// SimulatedUtterance represents a scripted utterance with progressive
// transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for the final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"How do I", "How do I reset", "How do I reset my"},
		Final:      "How do I reset my password?",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Can you", "Can you help", "Can you help me with"},
		Final:      "Can you help me with my account",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"I've been", "I've been waiting", "I've been waiting for"},
		Final:      "I've been waiting for over an hour",
		Confidence: 0.89,
	},
	{
		Partials:   []string{"Thanks"},
		Final:      "Thanks, that's all, goodbye",
		Confidence: 0.98,
	},
}

// Adapter implements stt.Adapter with scripted responses:
// one interim transcript per audio frame, then exactly one final once the
// script is exhausted.
type Adapter struct {
	mu            sync.Mutex
	cb            stt.Callback
	audioReceived int
	utterance     SimulatedUtterance
	partialIndex  int
	finalSent     bool
	closed        bool
}

// utteranceCounter tracks which utterance to use next (cycles through defaults)
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a new mock transcription adapter.
func New() *Adapter {
	counterMu.Lock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	counterMu.Unlock()

	return &Adapter{
		utterance: DefaultUtterances[idx],
	}
}

// NewScripted creates a mock adapter that plays a specific utterance.
func NewScripted(u SimulatedUtterance) *Adapter {
	return &Adapter{utterance: u}
}

// Factory returns an stt.Factory producing fresh mock adapters.
func Factory() stt.Factory {
	return func(ctx context.Context) (stt.Adapter, error) {
		return New(), nil
	}
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// SendAudio simulates receiving audio and triggers progressive interim
// transcripts, then the final once all partials are sent.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	a.audioReceived++

	if a.partialIndex < len(a.utterance.Partials) {
		partial := a.utterance.Partials[a.partialIndex]
		a.partialIndex++

		// Simulate processing delay
		go func(text string) {
			time.Sleep(50 * time.Millisecond)
			a.mu.Lock()
			cb := a.cb
			closed := a.closed
			a.mu.Unlock()
			if !closed && cb != nil {
				cb.OnPartial(text)
			}
		}(partial)
	} else if !a.finalSent {
		a.finalSent = true

		go func() {
			time.Sleep(100 * time.Millisecond)
			a.mu.Lock()
			cb := a.cb
			closed := a.closed
			utt := a.utterance
			a.mu.Unlock()

			if !closed && cb != nil {
				cb.OnFinal(utt.Final, utt.Confidence)
			}
		}()
	}

	return nil
}

// Close ends the mock session.
// If the final wasn't sent yet (stream ended early), send it now.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if !a.finalSent && a.cb != nil {
		a.finalSent = true
		cb := a.cb
		utt := a.utterance
		go func() {
			time.Sleep(100 * time.Millisecond)
			cb.OnFinal(utt.Final, utt.Confidence)
		}()
	}

	return nil
}
