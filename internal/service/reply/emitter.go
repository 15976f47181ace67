package reply

import (
	"context"
	"strings"
	"time"

	"ai-call-orchestrator-service/internal/models"
	"ai-call-orchestrator-service/internal/service/generator"
	"ai-call-orchestrator-service/internal/service/session"
)

// emitter tracks chunk emission state across one cycle's generator attempts.
// Emission rules: the first chunk must be a complete sentence of a minimum
// length, later chunks respect the minimum inter-chunk gap, and only the
// newly-added sentence-terminated portion of the text is released; partial
// sentences are buffered and re-attempted on the next update.
type emitter struct {
	coordinator *Coordinator
	sess        *session.Session
	epoch       uint64
	cycleStart  time.Time

	ackHandled      bool
	sentLen         int // bytes of the growing reply text already dispatched
	parts           []string
	lastEmit        time.Time
	firstChunkSent  bool
	streamingMarked bool
}

func (em *emitter) emitted() bool {
	return em.firstChunkSent
}

func (em *emitter) dispatchedText() string {
	return strings.Join(em.parts, " ")
}

// consume releases whatever portion of the update is ready for dispatch.
// Returns outcomeSuccess both when a chunk was dispatched and when the text
// was merely buffered.
func (em *emitter) consume(ctx context.Context, u generator.Update) (outcome, error) {
	text := u.Text
	if len(text) <= em.sentLen {
		return outcomeSuccess, nil
	}

	pending := text[em.sentLen:]
	cut := lastSentenceEnd(pending)
	if cut < 0 {
		return outcomeSuccess, nil
	}
	chunkText := strings.TrimSpace(pending[:cut+1])
	if chunkText == "" {
		em.sentLen += cut + 1
		return outcomeSuccess, nil
	}

	cfg := em.coordinator.cfg
	if !em.firstChunkSent {
		// Withhold the opening chunk until it sounds like a whole
		// sentence; a truncated first utterance is worse than a pause.
		if len(chunkText) < cfg.MinFirstChunkLen || !em.coordinator.seg.Complete(chunkText, 0) {
			return outcomeSuccess, nil
		}
	}
	if !em.lastEmit.IsZero() && time.Since(em.lastEmit) < cfg.MinChunkGap {
		return outcomeSuccess, nil
	}
	if em.sess.SoftStopped() {
		return outcomeSuccess, nil
	}

	out, err := em.dispatch(ctx, chunkText)
	if out != outcomeSuccess {
		return out, err
	}
	em.sentLen += cut + 1
	return outcomeSuccess, nil
}

// flushTail dispatches whatever reply text remains after the final update.
func (em *emitter) flushTail(ctx context.Context, finalText string) (outcome, error) {
	var pending string
	if em.sentLen < len(finalText) {
		pending = strings.TrimSpace(finalText[em.sentLen:])
	}
	if pending == "" {
		return outcomeSuccess, nil
	}
	if em.sess.SoftStopped() {
		return outcomeSoft, nil
	}

	if !em.lastEmit.IsZero() {
		if rem := em.coordinator.cfg.MinChunkGap - time.Since(em.lastEmit); rem > 0 {
			select {
			case <-time.After(rem):
			case <-ctx.Done():
				return outcomeFailure, ctx.Err()
			}
		}
	}
	if em.sess.SoftStopped() {
		return outcomeSoft, nil
	}

	out, err := em.dispatch(ctx, pending)
	if out != outcomeSuccess {
		return out, err
	}
	em.sentLen = len(finalText)
	return outcomeSuccess, nil
}

// dispatch sends one epoch-tagged chunk and records emission state.
func (em *emitter) dispatch(ctx context.Context, text string) (outcome, error) {
	chunk := models.ReplyChunk{
		Text:  text,
		Seq:   em.sess.NextChunkSeq(),
		Epoch: em.epoch,
	}
	sent, err := em.coordinator.dispatcher.DispatchChunk(ctx, em.sess, chunk)
	if err != nil {
		return outcomeFault, err
	}
	if !sent {
		return outcomeStale, nil
	}

	em.parts = append(em.parts, text)
	em.lastEmit = time.Now()
	if !em.firstChunkSent {
		em.firstChunkSent = true
		em.coordinator.metrics.GenerationLatency.Observe(time.Since(em.cycleStart).Seconds())
	}
	if !em.streamingMarked {
		em.streamingMarked = true
		if err := em.sess.TransitionTo(session.PhaseStreaming); err != nil {
			return outcomeStale, nil
		}
	}
	return outcomeSuccess, nil
}

// emitRaw dispatches filler or redirect text. It paces later chunks but does
// not count as the reply's first content chunk.
func (em *emitter) emitRaw(ctx context.Context, text string) (bool, error) {
	chunk := models.ReplyChunk{
		Text:  text,
		Seq:   em.sess.NextChunkSeq(),
		Epoch: em.epoch,
	}
	sent, err := em.coordinator.dispatcher.DispatchChunk(ctx, em.sess, chunk)
	if err != nil || !sent {
		return sent, err
	}
	em.lastEmit = time.Now()
	return true, nil
}

// lastSentenceEnd returns the index of the last terminal punctuation mark in
// s, or -1 if none.
func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}
