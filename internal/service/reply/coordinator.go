// Package reply drives one reply-generation cycle end-to-end: it requests a
// reply, paces emission of sentence-bounded chunks, races the first chunk
// against an acknowledgment timer, and falls back to cached or canned
// content when generation fails. Interruption cancels a cycle by epoch
// invalidation, not by killing the generator call.
package reply

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-call-orchestrator-service/internal/config"
	"ai-call-orchestrator-service/internal/events"
	"ai-call-orchestrator-service/internal/models"
	"ai-call-orchestrator-service/internal/observability/logging"
	"ai-call-orchestrator-service/internal/observability/metrics"
	"ai-call-orchestrator-service/internal/service/dispatch"
	"ai-call-orchestrator-service/internal/service/generator"
	"ai-call-orchestrator-service/internal/service/segmenter"
	"ai-call-orchestrator-service/internal/service/session"
)

// cannedAnswer maps common-question keywords to a ready spoken answer.
type cannedAnswer struct {
	keywords []string
	answer   string
}

var defaultCanned = []cannedAnswer{
	{
		keywords: []string{"hours", "open", "close"},
		answer:   "We're open every day from nine a.m. to five p.m.",
	},
	{
		keywords: []string{"password", "reset"},
		answer:   "You can reset your password from the sign-in page by choosing Forgot password.",
	},
	{
		keywords: []string{"human", "agent", "representative"},
		answer:   "I'll note that you'd like to speak with a person. Someone will call you back shortly.",
	},
}

type cacheEntry struct {
	text string
	at   time.Time
}

// outcome classifies how a generation attempt ended.
type outcome int

const (
	outcomeSuccess  outcome = iota // final received, tail flushed
	outcomeStale                   // epoch no longer current, cycle abandoned
	outcomeSoft                    // ended while soft-stopped, nothing more may be spoken
	outcomeFault                   // call-control dispatch failed
	outcomeRedirect                // unrelated-topic redirect dispatched
	outcomeFailure                 // generator error, eligible for retry
)

// Coordinator runs generation cycles for sessions.
type Coordinator struct {
	gen        generator.Generator
	dispatcher *dispatch.Dispatcher
	seg        *segmenter.Segmenter
	publisher  *events.Publisher
	cfg        config.ReplyConfig
	genCfg     config.GeneratorConfig
	metrics    *metrics.Metrics

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
	canned  []cannedAnswer
}

// New creates a coordinator.
func New(
	gen generator.Generator,
	dispatcher *dispatch.Dispatcher,
	seg *segmenter.Segmenter,
	publisher *events.Publisher,
	cfg config.ReplyConfig,
	genCfg config.GeneratorConfig,
) *Coordinator {
	return &Coordinator{
		gen:        gen,
		dispatcher: dispatcher,
		seg:        seg,
		publisher:  publisher,
		cfg:        cfg,
		genCfg:     genCfg,
		metrics:    metrics.DefaultMetrics,
		cache:      make(map[string]cacheEntry),
		canned:     defaultCanned,
	}
}

// Run drives one generation cycle for a complete utterance. It owns the
// session's reply-in-flight flag for the epoch it creates; a cycle abandoned
// by interruption leaves those fields to its successor.
func (c *Coordinator) Run(ctx context.Context, sess *session.Session, utterance string) {
	epoch := sess.BumpEpoch()
	sess.SetReplyInFlight(true)
	start := time.Now()

	logger := logging.WithCycle(sess.CallID(), epoch)

	defer func() {
		// Only the owning epoch clears the in-flight flag; an abandoned
		// cycle leaves these fields to the cycle that replaced it.
		if sess.Epoch() == epoch {
			sess.SetReplyInFlight(false)
			sess.MarkCycleEnd(time.Now())
			if !sess.Ended() {
				if err := sess.TransitionTo(session.PhaseListening); err != nil && err != session.ErrSessionEnded {
					logger.Debug().Err(err).Msg("Post-cycle transition skipped")
				}
			}
		}
	}()

	if err := sess.TransitionTo(session.PhaseGenerating); err != nil {
		logger.Debug().Err(err).Msg("Cycle not started")
		return
	}

	history := sess.History()
	firstTurn := len(history) == 0

	// The utterance enters history when it is handed to generation.
	sess.AppendHistory(models.HistoryEntry{
		Speaker:   models.SpeakerUser,
		Text:      utterance,
		Timestamp: time.Now(),
	})
	if err := c.publisher.PublishUserTurn(ctx, sess.CallID(), utterance); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish user turn")
	}

	reply, spoken := c.stream(ctx, sess, epoch, utterance, history, firstTurn, start, logger)
	if !spoken {
		return
	}

	sess.AppendHistory(models.HistoryEntry{
		Speaker:   models.SpeakerAssistant,
		Text:      reply,
		Timestamp: time.Now(),
	})
	if err := c.publisher.PublishAssistantTurn(ctx, sess.CallID(), reply, epoch); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish assistant turn")
	}

	logger.Info().
		Dur("cycleDuration", time.Since(start)).
		Int("replyLen", len(reply)).
		Msg("Reply cycle completed")
}

// stream runs generator attempts with bounded retry, then the fallback
// chain. Returns the dispatched reply text and whether anything reached the
// caller.
func (c *Coordinator) stream(
	ctx context.Context,
	sess *session.Session,
	epoch uint64,
	utterance string,
	history []models.HistoryEntry,
	firstTurn bool,
	start time.Time,
	logger zerolog.Logger,
) (string, bool) {
	em := &emitter{
		coordinator: c,
		sess:        sess,
		epoch:       epoch,
		cycleStart:  start,
	}

	for attempt := 0; attempt <= c.genCfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.genCfg.RetryBackoff):
			case <-ctx.Done():
				return "", false
			}
		}

		c.metrics.RecordGenerationAttempt()
		reply, out, err := c.attempt(ctx, utterance, history, firstTurn, em, logger)

		switch out {
		case outcomeSuccess:
			c.remember(utterance, reply)
			return reply, true
		case outcomeRedirect:
			return reply, true
		case outcomeStale, outcomeSoft:
			logger.Debug().Str("outcome", "abandoned").Msg("Cycle abandoned")
			return "", false
		case outcomeFault:
			return "", false
		case outcomeFailure:
			c.metrics.RecordGenerationFailure(failureReason(err))
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Generation attempt failed")
			if em.emitted() {
				// Part of a reply was already spoken; retrying would
				// repeat ourselves. Close out with what was said.
				return em.dispatchedText(), true
			}
		}
	}

	return c.fallback(ctx, sess, epoch, utterance, logger)
}

// attempt runs a single generator call, racing the first emission against
// the acknowledgment timer.
func (c *Coordinator) attempt(
	ctx context.Context,
	utterance string,
	history []models.HistoryEntry,
	firstTurn bool,
	em *emitter,
	logger zerolog.Logger,
) (string, outcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.genCfg.AttemptTimeout)
	defer cancel()

	sub, err := c.gen.Generate(attemptCtx, utterance, history)
	if err != nil {
		return "", outcomeFailure, err
	}
	defer sub.Cancel()

	updates := make(chan generator.Update)
	errs := make(chan error, 1)
	go func() {
		for {
			u, err := sub.Next(attemptCtx)
			if err != nil {
				errs <- err
				return
			}
			select {
			case updates <- u:
			case <-attemptCtx.Done():
				return
			}
			if u.Final {
				return
			}
		}
	}()

	var ack <-chan time.Time
	if !em.emitted() && !em.ackHandled {
		timer := time.NewTimer(c.cfg.AckTimeout)
		defer timer.Stop()
		ack = timer.C
	}

	for {
		select {
		case <-ack:
			ack = nil
			em.ackHandled = true

			if firstTurn && c.unrelated(utterance) {
				// Off-topic opener: redirect instead of generating.
				c.metrics.RecordFallback("redirect")
				sent, err := em.emitRaw(ctx, c.cfg.RedirectText)
				if err != nil {
					return "", outcomeFault, err
				}
				if !sent {
					return "", outcomeStale, nil
				}
				logger.Info().Msg("Unrelated topic redirected")
				return c.cfg.RedirectText, outcomeRedirect, nil
			}

			c.metrics.RecordAckFiller()
			sent, err := em.emitRaw(ctx, c.cfg.FillerText)
			if err != nil {
				return "", outcomeFault, err
			}
			if !sent {
				return "", outcomeStale, nil
			}
			logger.Debug().Msg("Acknowledgment filler dispatched")

		case err := <-errs:
			return "", outcomeFailure, err

		case u := <-updates:
			out, err := em.consume(ctx, u)
			if out != outcomeSuccess {
				return "", out, err
			}
			if u.Final {
				out, err := em.flushTail(ctx, u.Text)
				if out != outcomeSuccess {
					return "", out, err
				}
				return u.Text, outcomeSuccess, nil
			}

		case <-attemptCtx.Done():
			return "", outcomeFailure, attemptCtx.Err()
		}
	}
}

// fallback dispatches the best available substitute reply: a cached answer
// for an identical recent query, a canned common-question answer, or the
// generic fallback sentence. The user is never left without a spoken
// response.
func (c *Coordinator) fallback(
	ctx context.Context,
	sess *session.Session,
	epoch uint64,
	utterance string,
	logger zerolog.Logger,
) (string, bool) {
	text, kind := c.fallbackText(utterance)
	c.metrics.RecordFallback(kind)

	chunk := models.ReplyChunk{Text: text, Seq: sess.NextChunkSeq(), Epoch: epoch}
	sent, err := c.dispatcher.DispatchChunk(ctx, sess, chunk)
	if err != nil || !sent {
		return "", false
	}

	logger.Info().Str("kind", kind).Msg("Fallback reply dispatched")
	return text, true
}

func (c *Coordinator) fallbackText(utterance string) (string, string) {
	if text, ok := c.cached(utterance); ok {
		return text, "cache"
	}
	lower := strings.ToLower(utterance)
	for _, canned := range c.canned {
		for _, kw := range canned.keywords {
			if strings.Contains(lower, kw) {
				return canned.answer, "canned"
			}
		}
	}
	return c.cfg.FallbackText, "generic"
}

func (c *Coordinator) unrelated(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, topic := range c.cfg.UnrelatedTopics {
		if strings.Contains(lower, topic) {
			return true
		}
	}
	return false
}

func (c *Coordinator) cached(utterance string) (string, bool) {
	key := normalizeQuery(utterance)
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry, ok := c.cache[key]
	if !ok || time.Since(entry.at) > c.genCfg.CacheTTL {
		return "", false
	}
	return entry.text, true
}

func (c *Coordinator) remember(utterance, reply string) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[normalizeQuery(utterance)] = cacheEntry{text: reply, at: time.Now()}
}

func normalizeQuery(utterance string) string {
	return strings.ToLower(strings.TrimSpace(utterance))
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "transport"
	}
}
