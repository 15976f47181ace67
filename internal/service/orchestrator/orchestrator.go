// Package orchestrator ties the per-call components together: it routes
// transcript segments to the segmenter and interruption monitor, starts and
// abandons generation cycles, and owns each call's transcription stream.
// It is the only component the surrounding webhook layer invokes.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-call-orchestrator-service/internal/config"
	"ai-call-orchestrator-service/internal/events"
	"ai-call-orchestrator-service/internal/models"
	"ai-call-orchestrator-service/internal/observability/logging"
	"ai-call-orchestrator-service/internal/observability/metrics"
	"ai-call-orchestrator-service/internal/service/dispatch"
	"ai-call-orchestrator-service/internal/service/interrupt"
	"ai-call-orchestrator-service/internal/service/reply"
	"ai-call-orchestrator-service/internal/service/segmenter"
	"ai-call-orchestrator-service/internal/service/session"
	"ai-call-orchestrator-service/internal/service/stt"
)

// callState holds the per-call resources the orchestrator owns outside the
// session itself: the transcription stream handle and the silence timer.
type callState struct {
	mu           sync.Mutex
	adapter      stt.Adapter
	silenceTimer *time.Timer
}

// Orchestrator coordinates all per-call activity.
type Orchestrator struct {
	store       *session.Store
	seg         *segmenter.Segmenter
	monitor     *interrupt.Monitor
	coordinator *reply.Coordinator
	dispatcher  *dispatch.Dispatcher
	publisher   *events.Publisher
	sttFactory  stt.Factory
	sttProvider string
	replyCfg    config.ReplyConfig
	metrics     *metrics.Metrics

	mu    sync.Mutex
	calls map[string]*callState
}

// New creates an orchestrator.
func New(
	store *session.Store,
	seg *segmenter.Segmenter,
	monitor *interrupt.Monitor,
	coordinator *reply.Coordinator,
	dispatcher *dispatch.Dispatcher,
	publisher *events.Publisher,
	sttFactory stt.Factory,
	sttProvider string,
	replyCfg config.ReplyConfig,
) *Orchestrator {
	return &Orchestrator{
		store:       store,
		seg:         seg,
		monitor:     monitor,
		coordinator: coordinator,
		dispatcher:  dispatcher,
		publisher:   publisher,
		sttFactory:  sttFactory,
		sttProvider: sttProvider,
		replyCfg:    replyCfg,
		metrics:     metrics.DefaultMetrics,
		calls:       make(map[string]*callState),
	}
}

// OnCallStarted creates the session and opens its transcription stream.
// Idempotent: a duplicate start signal reuses the existing session.
func (o *Orchestrator) OnCallStarted(ctx context.Context, callID string, metadata map[string]string) error {
	sess := o.store.Create(callID, metadata)

	o.mu.Lock()
	if _, exists := o.calls[callID]; exists {
		o.mu.Unlock()
		return nil
	}
	cs := &callState{}
	o.calls[callID] = cs
	o.mu.Unlock()

	adapter, err := o.sttFactory(ctx)
	if err != nil {
		o.dropCallState(callID)
		o.store.Destroy(callID)
		return err
	}
	if err := adapter.Start(ctx, &transcriptSink{o: o, callID: callID}); err != nil {
		o.dropCallState(callID)
		o.store.Destroy(callID)
		return err
	}

	cs.mu.Lock()
	cs.adapter = adapter
	cs.mu.Unlock()

	sess.OnTeardown(func() {
		o.teardownCall(callID, cs)
		if err := o.publisher.PublishLifecycle(context.Background(), "call.ended", callID, metadata); err != nil {
			log.Warn().Err(err).Str("callId", callID).Msg("Failed to publish call-ended event")
		}
	})

	if err := o.publisher.PublishLifecycle(ctx, "call.started", callID, metadata); err != nil {
		log.Warn().Err(err).Str("callId", callID).Msg("Failed to publish call-started event")
	}
	log.Info().Str("callId", callID).Msg("Call started")
	return nil
}

// OnMediaFrame forwards audio bytes into the call's transcription stream.
// A write failure never crosses the call boundary: a recoverable fault
// recreates the stream and retries the frame once; anything else is logged
// and the frame is dropped.
func (o *Orchestrator) OnMediaFrame(callID string, frame []byte) {
	cs := o.callState(callID)
	if cs == nil {
		log.Warn().Str("callId", callID).Msg("Media frame for unknown call")
		return
	}
	o.metrics.RecordAudioReceived(len(frame))

	cs.mu.Lock()
	adapter := cs.adapter
	cs.mu.Unlock()
	if adapter == nil {
		return
	}

	ctx := context.Background()
	if err := adapter.SendAudio(ctx, frame); err != nil {
		if !stt.Recoverable(err) {
			log.Error().Err(err).Str("callId", callID).Msg("Unrecoverable transcription write failure")
			return
		}
		fresh, rerr := o.recreateStream(ctx, callID, cs)
		if rerr != nil {
			log.Error().Err(rerr).Str("callId", callID).Msg("Failed to recreate transcription stream")
			return
		}
		if err := fresh.SendAudio(ctx, frame); err != nil {
			log.Warn().Err(err).Str("callId", callID).Msg("Frame dropped after stream recreate")
		}
	}
}

// OnCallEnded destroys the session; teardown hooks close the stream and
// cancel any in-flight generation.
func (o *Orchestrator) OnCallEnded(callID string) {
	o.store.Destroy(callID)
	log.Info().Str("callId", callID).Msg("Call ended")
}

// handlePartial processes an interim transcript. Interim results are noisy:
// they only ever trigger the soft interruption path, never a buffer merge.
func (o *Orchestrator) handlePartial(callID, text string) {
	sess := o.store.Get(callID)
	if sess == nil || sess.Ended() {
		return
	}
	now := time.Now()
	o.metrics.RecordPartialTranscript()
	sess.MarkTranscript(now)

	if !sess.ReplyInFlight() {
		return
	}

	seg := models.TranscriptSegment{Text: text, Final: false, ReceivedAt: now}
	if o.monitor.Assess(seg, now.Sub(sess.LastDispatch())) != interrupt.VerdictSoft {
		return
	}
	if sess.SoftStopped() {
		return
	}
	sess.SoftStop()
	o.metrics.RecordInterruption("soft")
	log.Debug().Str("callId", callID).Msg("Soft interruption, pausing emission")

	// Acknowledge immediately so the user is not talking over dead air.
	go func() {
		if err := o.dispatcher.DispatchKeepListening(context.Background(), sess); err != nil {
			log.Warn().Err(err).Str("callId", callID).Msg("Keep-listening update failed")
		}
	}()
}

// handleFinal processes a final transcript segment.
func (o *Orchestrator) handleFinal(callID, text string, confidence float64) {
	sess := o.store.Get(callID)
	if sess == nil || sess.Ended() {
		return
	}
	now := time.Now()
	o.metrics.RecordFinalTranscript()
	prevArrival := sess.LastTranscript()
	sess.MarkTranscript(now)

	if sess.ReplyInFlight() {
		seg := models.TranscriptSegment{Text: text, Final: true, Confidence: confidence, ReceivedAt: now}
		if o.monitor.Assess(seg, now.Sub(sess.LastDispatch())) == interrupt.VerdictConfirmed {
			o.metrics.RecordInterruption("confirmed")
			sess.CountInterrupt()
			log.Info().Str("callId", callID).Msg("Confirmed interruption, abandoning reply")
			// The interrupting text is a freshly completed utterance;
			// starting the new cycle bumps the epoch, which strands the
			// old cycle's chunks.
			sess.AppendPending(text)
			o.startCycle(sess)
			return
		}
		// Not an interruption; keep the words for the next utterance. The
		// silence timer re-evaluates the buffer once the cycle finishes.
		sess.AppendPending(text)
		o.armSilenceTimer(callID)
		return
	}

	buffer := sess.AppendPending(text)
	if sess.Phase() == session.PhaseListening {
		if err := sess.TransitionTo(session.PhaseSegmenting); err != nil {
			return
		}
	}

	if o.seg.Goodbye(buffer) {
		o.endWithGoodbye(sess)
		return
	}

	var sinceLast time.Duration
	if !prevArrival.IsZero() {
		sinceLast = now.Sub(prevArrival)
	}
	if o.seg.Complete(buffer, sinceLast) {
		o.maybeStartCycle(sess)
		return
	}

	// Not complete yet: let silence finish the utterance.
	o.armSilenceTimer(callID)
}

// silenceCheck re-evaluates completeness once the silence threshold has
// elapsed with no further transcript arrivals.
func (o *Orchestrator) silenceCheck(callID string) {
	sess := o.store.Get(callID)
	if sess == nil || sess.Ended() {
		return
	}
	if sess.ReplyInFlight() {
		// A buffer merged during the reply must still be spoken; try
		// again once the cycle has finished.
		o.armSilenceTimer(callID)
		return
	}
	buffer := sess.PendingBuffer()
	if buffer == "" {
		return
	}
	since := time.Since(sess.LastTranscript())
	if o.seg.Complete(buffer, since) {
		o.maybeStartCycle(sess)
	}
}

// maybeStartCycle starts a generation cycle unless the cooldown limiter
// rejects it; a suppressed trigger keeps the buffer and re-arms the silence
// timer so the utterance is retried once the cooldown elapses.
func (o *Orchestrator) maybeStartCycle(sess *session.Session) {
	if last := sess.LastCycleEnd(); !last.IsZero() {
		if since := time.Since(last); since < o.seg.Cooldown() {
			o.metrics.RecordCooldownSuppressed()
			log.Debug().
				Str("callId", sess.CallID()).
				Dur("sinceLastCycle", since).
				Msg("Generation suppressed by cooldown")
			o.armSilenceTimerAfter(sess.CallID(), o.seg.Cooldown()-since)
			return
		}
	}
	o.startCycle(sess)
}

// startCycle hands the pending buffer to a new generation cycle.
func (o *Orchestrator) startCycle(sess *session.Session) {
	utterance := sess.TakePending()
	if utterance == "" {
		return
	}
	o.metrics.RecordUtterance()
	sess.CountUtterance()

	ctx, cancel := context.WithCancel(context.Background())
	sess.SetCycleCancel(cancel)
	go func() {
		defer cancel()
		o.coordinator.Run(ctx, sess, utterance)
	}()
}

// endWithGoodbye speaks the terminal reply with a hangup directive and
// tears the session down.
func (o *Orchestrator) endWithGoodbye(sess *session.Session) {
	o.metrics.RecordGoodbye()
	log.Info().Str("callId", sess.CallID()).Msg("Goodbye detected, ending call")

	if err := o.dispatcher.DispatchGoodbye(context.Background(), sess, o.replyCfg.GoodbyeText); err != nil {
		log.Error().Err(err).Str("callId", sess.CallID()).Msg("Goodbye dispatch failed")
	}
	o.store.Destroy(sess.CallID())
}

// handleStreamError reacts to a transcription stream fault. Recoverable
// faults recreate the stream with the same subscriber; the session is
// otherwise unaffected.
func (o *Orchestrator) handleStreamError(callID string, err error) {
	o.metrics.RecordSTTError(o.sttProvider, "stream")
	cs := o.callState(callID)
	if cs == nil {
		return
	}
	if !stt.Recoverable(err) {
		log.Error().Err(err).Str("callId", callID).Msg("Unrecoverable transcription stream error")
		return
	}
	if _, rerr := o.recreateStream(context.Background(), callID, cs); rerr != nil {
		log.Error().Err(rerr).Str("callId", callID).Msg("Failed to recreate transcription stream")
	}
}

// recreateStream replaces the call's transcription stream with a fresh one,
// re-subscribed identically. The old handle is closed, never reused.
func (o *Orchestrator) recreateStream(ctx context.Context, callID string, cs *callState) (stt.Adapter, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.adapter != nil {
		_ = cs.adapter.Close()
	}
	fresh, err := o.sttFactory(ctx)
	if err != nil {
		return nil, err
	}
	if err := fresh.Start(ctx, &transcriptSink{o: o, callID: callID}); err != nil {
		return nil, err
	}
	cs.adapter = fresh
	o.metrics.RecordTranscriberRestart()
	logger := logging.WithStream(callID, o.sttProvider)
	logger.Info().Msg("Transcription stream recreated")
	return fresh, nil
}

func (o *Orchestrator) armSilenceTimer(callID string) {
	o.armSilenceTimerAfter(callID, o.seg.SilenceThreshold())
}

func (o *Orchestrator) armSilenceTimerAfter(callID string, d time.Duration) {
	cs := o.callState(callID)
	if cs == nil {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.silenceTimer != nil {
		cs.silenceTimer.Stop()
	}
	cs.silenceTimer = time.AfterFunc(d, func() {
		o.silenceCheck(callID)
	})
}

func (o *Orchestrator) callState(callID string) *callState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[callID]
}

func (o *Orchestrator) dropCallState(callID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.calls, callID)
}

func (o *Orchestrator) teardownCall(callID string, cs *callState) {
	cs.mu.Lock()
	if cs.silenceTimer != nil {
		cs.silenceTimer.Stop()
		cs.silenceTimer = nil
	}
	adapter := cs.adapter
	cs.adapter = nil
	cs.mu.Unlock()

	if adapter != nil {
		if err := adapter.Close(); err != nil {
			log.Warn().Err(err).Str("callId", callID).Msg("Error closing transcription stream")
		}
	}
	o.dropCallState(callID)
	o.dispatcher.Release(callID)
}

// transcriptSink adapts the stt.Callback interface onto the orchestrator
// for one call. A recreated stream gets a new sink with the same callID,
// which is what "re-subscribed identically" means here.
type transcriptSink struct {
	o      *Orchestrator
	callID string
}

func (t *transcriptSink) OnPartial(text string) {
	t.o.handlePartial(t.callID, text)
}

func (t *transcriptSink) OnFinal(text string, confidence float64) {
	t.o.handleFinal(t.callID, text, confidence)
}

func (t *transcriptSink) OnError(err error) {
	t.o.handleStreamError(t.callID, err)
}
