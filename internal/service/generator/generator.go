// Package generator defines the interface for reply generators. A generation
// request yields an explicit subscription handle rather than fire-and-forget
// callbacks, so a caller that abandons a cycle cancels it structurally.
package generator

import (
	"context"
	"errors"
	"sync"

	"ai-call-orchestrator-service/internal/models"
)

// Update is one step of a reply stream. Text is the full reply text so far;
// it grows monotonically across updates. The update carrying Final is the
// last one.
type Update struct {
	Text  string
	Final bool
}

var (
	// ErrCancelled is returned by Next after the subscription is cancelled.
	ErrCancelled = errors.New("generation subscription cancelled")
	// ErrStreamClosed is returned by Next after the provider closed the
	// stream; callers normally stop at the Final update and never see it.
	ErrStreamClosed = errors.New("generation stream closed")
)

// Subscription is a handle on one in-flight generation. Next blocks until
// the next update, the stream fails, or the context is done. Cancel releases
// the stream; further Next calls return ErrCancelled.
type Subscription interface {
	Next(ctx context.Context) (Update, error)
	Cancel()
}

// Generator produces a reply stream for a complete user utterance given the
// conversation so far. May be slow; may fail; not guaranteed to produce
// partials before the final.
type Generator interface {
	Generate(ctx context.Context, utterance string, history []models.HistoryEntry) (Subscription, error)
}

// Stream is a channel-backed Subscription for providers to feed.
type Stream struct {
	updates chan Update

	mu        sync.Mutex
	err       error
	cancelled bool
	done      chan struct{}
}

// NewStream creates a Stream with a small update buffer.
func NewStream() *Stream {
	return &Stream{
		updates: make(chan Update, 16),
		done:    make(chan struct{}),
	}
}

// Next returns the next update from the stream.
func (s *Stream) Next(ctx context.Context) (Update, error) {
	select {
	case u, ok := <-s.updates:
		if !ok {
			return Update{}, s.failure()
		}
		return u, nil
	case <-s.done:
		// Drain any update raced with cancellation.
		select {
		case u, ok := <-s.updates:
			if ok {
				return u, nil
			}
		default:
		}
		return Update{}, s.failure()
	case <-ctx.Done():
		return Update{}, ctx.Err()
	}
}

// Cancel abandons the subscription. Idempotent.
func (s *Stream) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.err == nil {
		s.err = ErrCancelled
	}
	close(s.done)
}

// Cancelled reports whether the consumer abandoned the stream. Providers
// should stop feeding once true.
func (s *Stream) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Push delivers an update to the consumer. Returns false if the subscription
// was cancelled and the update was discarded.
func (s *Stream) Push(u Update) bool {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.updates <- u:
		return true
	case <-s.done:
		return false
	}
}

// Fail terminates the stream with an error. A provider calls exactly one of
// Fail or Close.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	close(s.updates)
}

// Close terminates the stream normally after the final update.
func (s *Stream) Close() {
	close(s.updates)
}

func (s *Stream) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return ErrStreamClosed
}
