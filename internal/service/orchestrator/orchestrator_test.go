package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ai-call-orchestrator-service/internal/config"
	"ai-call-orchestrator-service/internal/events"
	"ai-call-orchestrator-service/internal/models"
	callmock "ai-call-orchestrator-service/internal/service/callctl/mock"
	"ai-call-orchestrator-service/internal/service/dispatch"
	genmock "ai-call-orchestrator-service/internal/service/generator/mock"
	"ai-call-orchestrator-service/internal/service/interrupt"
	"ai-call-orchestrator-service/internal/service/reply"
	"ai-call-orchestrator-service/internal/service/segmenter"
	"ai-call-orchestrator-service/internal/service/session"
	"ai-call-orchestrator-service/internal/service/stt"
)

// stubAdapter is a transcription stream that records calls; transcripts are
// injected directly through the orchestrator's handlers.
type stubAdapter struct {
	mu     sync.Mutex
	frames int
	closed bool
	failOn error
}

func (a *stubAdapter) Start(ctx context.Context, cb stt.Callback) error { return nil }

func (a *stubAdapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames++
	return a.failOn
}

func (a *stubAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *stubAdapter) frameCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames
}

func (a *stubAdapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *stubAdapter) setFailOn(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failOn = err
}

type fixture struct {
	orch    *Orchestrator
	store   *session.Store
	channel *callmock.Channel
	gen     *genmock.Generator
	adapter *stubAdapter

	mu   sync.Mutex
	made []*stubAdapter
}

// takeAdapter returns the next transcription stream: the fixture's primary
// adapter first, then a fresh stub per recreate.
func (f *fixture) takeAdapter() *stubAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := f.adapter
	if len(f.made) > 0 {
		a = &stubAdapter{}
	}
	f.made = append(f.made, a)
	return a
}

func (f *fixture) adapterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

func (f *fixture) lastAdapter() *stubAdapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[len(f.made)-1]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	segCfg := config.SegmenterConfig{
		SilenceThreshold: 60 * time.Millisecond,
		MinUtteranceLen:  10,
		Cooldown:         50 * time.Millisecond,
		QuestionStems:    []string{"how", "what", "can"},
		CourtesyPhrases:  []string{"please"},
		GoodbyePhrases:   []string{"goodbye", "that's all"},
		ContinuationCues: []string{"question", "help"},
	}
	intCfg := config.InterruptConfig{
		SoftMinLen:      8,
		ConfirmedMinLen: 15,
		DispatchGrace:   30 * time.Millisecond,
		FillerWords:     []string{"um", "uh", "okay"},
		GratitudePhrases: []string{
			"thank you", "thanks",
		},
	}
	replyCfg := config.ReplyConfig{
		AckTimeout:       2 * time.Second,
		MinChunkGap:      time.Millisecond,
		MinFirstChunkLen: 20,
		FillerText:       "One moment.",
		FallbackText:     "Sorry, could you repeat that?",
		RedirectText:     "I can only help with account questions.",
		GoodbyeText:      "Thanks for calling. Goodbye!",
	}
	genCfg := config.GeneratorConfig{
		AttemptTimeout: 2 * time.Second,
		MaxRetries:     1,
		RetryBackoff:   10 * time.Millisecond,
		CacheTTL:       time.Minute,
	}

	channel := callmock.New()
	gen := genmock.New()
	dispatcher := dispatch.New(channel)
	seg := segmenter.New(segCfg)
	publisher := events.New(&events.Config{Enabled: false})
	coordinator := reply.New(gen, dispatcher, seg, publisher, replyCfg, genCfg)
	store := session.NewStore()

	f := &fixture{store: store, channel: channel, gen: gen, adapter: &stubAdapter{}}
	factory := func(ctx context.Context) (stt.Adapter, error) { return f.takeAdapter(), nil }

	f.orch = New(store, seg, interrupt.New(intCfg), coordinator, dispatcher, publisher, factory, "stub", replyCfg)
	return f
}

func (f *fixture) startCall(t *testing.T, callID string) *session.Session {
	t.Helper()
	if err := f.orch.OnCallStarted(context.Background(), callID, nil); err != nil {
		t.Fatalf("OnCallStarted failed: %v", err)
	}
	sess := f.store.Get(callID)
	if sess == nil {
		t.Fatal("expected session after start")
	}
	return sess
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestOrchestrator_CompleteUtteranceProducesReply(t *testing.T) {
	f := newFixture(t)
	sess := f.startCall(t, "call-1")

	f.orch.handleFinal("call-1", "How do I reset my password?", 0.94)

	if !waitFor(t, time.Second, func() bool {
		return len(f.channel.SpokenTexts()) >= 2 && !sess.ReplyInFlight()
	}) {
		t.Fatalf("reply never completed, spoken: %v", f.channel.SpokenTexts())
	}

	full := strings.Join(f.channel.SpokenTexts(), " ")
	want := "You can reset your password from the account page. I can send you a reset link now."
	if full != want {
		t.Errorf("spoken reply = %q, want %q", full, want)
	}

	h := sess.History()
	if len(h) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(h))
	}
	if h[0].Speaker != models.SpeakerUser || h[1].Speaker != models.SpeakerAssistant {
		t.Errorf("unexpected history order %+v", h)
	}
	if sess.Phase() != session.PhaseListening {
		t.Errorf("expected LISTENING after cycle, got %v", sess.Phase())
	}
}

func TestOrchestrator_IncompleteFragmentWaitsForSilence(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")

	// No terminal punctuation, no stem, below nothing: not complete yet.
	f.orch.handleFinal("call-1", "I was charged twice last month", 0.9)

	time.Sleep(20 * time.Millisecond)
	if len(f.channel.SpokenTexts()) != 0 {
		t.Fatal("utterance should not be complete before the silence threshold")
	}

	// The silence timer fires and completes the utterance.
	if !waitFor(t, time.Second, func() bool {
		return len(f.channel.SpokenTexts()) > 0
	}) {
		t.Fatal("silence timer never completed the utterance")
	}
}

func TestOrchestrator_MergesFragmentsIntoOneUtterance(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")

	f.orch.handleFinal("call-1", "how do I", 0.9)
	f.orch.handleFinal("call-1", "reset my password?", 0.9)

	if !waitFor(t, time.Second, func() bool {
		return len(f.gen.Calls()) > 0
	}) {
		t.Fatal("generation never started")
	}

	calls := f.gen.Calls()
	if calls[0] != "how do I reset my password?" {
		t.Errorf("merged utterance = %q", calls[0])
	}
}

func TestOrchestrator_GoodbyeEndsCall(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")

	f.orch.handleFinal("call-1", "Thanks, that's all, goodbye", 0.97)

	updates := f.channel.Sent()
	if len(updates) != 1 {
		t.Fatalf("expected 1 goodbye update, got %d", len(updates))
	}
	u := updates[0].Update
	if u.Speak != "Thanks for calling. Goodbye!" {
		t.Errorf("goodbye text = %q", u.Speak)
	}
	if !u.Hangup {
		t.Error("goodbye must hang up")
	}

	if f.store.Get("call-1") != nil {
		t.Error("expected session destroyed after goodbye")
	}
	if !waitFor(t, time.Second, f.adapter.isClosed) {
		t.Error("expected transcription stream closed on teardown")
	}
}

func TestOrchestrator_GoodbyeWithContinuationContinues(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")

	f.orch.handleFinal("call-1", "Thanks for that, goodbye, wait I have another question", 0.9)

	// Continuation cue suppresses the goodbye; no hangup may be sent.
	for _, s := range f.channel.Sent() {
		if s.Update.Hangup {
			t.Fatal("continuation cue must suppress hangup")
		}
	}
	if f.store.Get("call-1") == nil {
		t.Error("session must survive a suppressed goodbye")
	}
}

func TestOrchestrator_SoftInterruptionPausesEmission(t *testing.T) {
	f := newFixture(t)
	sess := f.startCall(t, "call-1")
	f.gen.SetFallback(genmock.Script{
		StartDelay: 150 * time.Millisecond,
		Final:      "This long reply arrives after the user already spoke again.",
	})

	f.orch.handleFinal("call-1", "tell me about my plan please", 0.9)

	if !waitFor(t, time.Second, sess.ReplyInFlight) {
		t.Fatal("cycle never started")
	}

	// A substantial interim while the reply is in flight soft-stops it.
	f.orch.handlePartial("call-1", "wait actually I wanted")

	if !sess.SoftStopped() {
		t.Fatal("expected soft stop")
	}

	if !waitFor(t, time.Second, func() bool { return !sess.ReplyInFlight() }) {
		t.Fatal("cycle never finished")
	}

	// Only the keep-listening acknowledgment may have gone out.
	for _, s := range f.channel.Sent() {
		if s.Update.Speak != "" {
			t.Errorf("soft-stopped cycle spoke %q", s.Update.Speak)
		}
	}
}

func TestOrchestrator_ShortInterimDoesNotInterrupt(t *testing.T) {
	f := newFixture(t)
	sess := f.startCall(t, "call-1")
	f.gen.SetFallback(genmock.Script{
		StartDelay: 100 * time.Millisecond,
		Final:      "Here is the answer to the question that you asked me.",
	})

	f.orch.handleFinal("call-1", "tell me about my plan please", 0.9)
	if !waitFor(t, time.Second, sess.ReplyInFlight) {
		t.Fatal("cycle never started")
	}

	f.orch.handlePartial("call-1", "um")
	f.orch.handlePartial("call-1", "okay")

	if sess.SoftStopped() {
		t.Error("filler interims must not soft-stop the reply")
	}
}

func TestOrchestrator_ConfirmedInterruptionStartsNewCycle(t *testing.T) {
	f := newFixture(t)
	sess := f.startCall(t, "call-1")
	f.gen.SetFallback(genmock.Script{
		StartDelay: 200 * time.Millisecond,
		Final:      "This stale reply must never reach the caller at all.",
	})
	f.gen.SetScript("delivery", genmock.Script{
		Partials:     []string{"Your delivery arrives tomorrow before noon."},
		Final:        "Your delivery arrives tomorrow before noon. Anything else?",
		PartialDelay: 10 * time.Millisecond,
	})

	f.orch.handleFinal("call-1", "tell me about my plan please", 0.9)
	if !waitFor(t, time.Second, sess.ReplyInFlight) {
		t.Fatal("first cycle never started")
	}
	firstEpoch := sess.Epoch()

	// A long final while the reply is in flight confirms the interruption.
	f.orch.handleFinal("call-1", "actually when is my delivery arriving", 0.92)

	if !waitFor(t, time.Second, func() bool { return sess.Epoch() > firstEpoch }) {
		t.Fatal("epoch never advanced after confirmed interruption")
	}

	if !waitFor(t, 2*time.Second, func() bool {
		texts := f.channel.SpokenTexts()
		return len(texts) > 0 && strings.Contains(strings.Join(texts, " "), "delivery arrives tomorrow")
	}) {
		t.Fatalf("second reply never spoken, got %v", f.channel.SpokenTexts())
	}

	for _, text := range f.channel.SpokenTexts() {
		if strings.Contains(text, "stale reply") {
			t.Errorf("stale chunk reached the caller: %q", text)
		}
	}
}

func TestOrchestrator_CooldownSuppressesImmediateTrigger(t *testing.T) {
	f := newFixture(t)
	sess := f.startCall(t, "call-1")

	f.orch.handleFinal("call-1", "How do I reset my password?", 0.94)
	if !waitFor(t, time.Second, func() bool {
		return !sess.ReplyInFlight() && len(f.gen.Calls()) == 1
	}) {
		t.Fatal("first cycle never completed")
	}

	// Immediately after the cycle ends the cooldown is still active; the
	// new utterance is buffered, rechecked after the cooldown, then run.
	f.orch.handleFinal("call-1", "What are your hours?", 0.93)

	if !waitFor(t, 2*time.Second, func() bool {
		return len(f.gen.Calls()) == 2
	}) {
		t.Fatalf("suppressed utterance never retried, calls: %v", f.gen.Calls())
	}
	if calls := f.gen.Calls(); calls[1] != "What are your hours?" {
		t.Errorf("second call = %q", calls[1])
	}
}

func TestOrchestrator_DuplicateStartIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sess := f.startCall(t, "call-1")

	if err := f.orch.OnCallStarted(context.Background(), "call-1", nil); err != nil {
		t.Fatalf("duplicate start errored: %v", err)
	}
	if f.store.Get("call-1") != sess {
		t.Error("duplicate start must reuse the session")
	}
	if f.store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", f.store.Len())
	}
}

func TestOrchestrator_OnCallEndedTearsDown(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")

	f.orch.OnCallEnded("call-1")

	if f.store.Get("call-1") != nil {
		t.Error("expected session removed")
	}
	if !f.adapter.isClosed() {
		t.Error("expected transcription stream closed")
	}
	if f.orch.callState("call-1") != nil {
		t.Error("expected call state dropped")
	}
}

func TestOrchestrator_MediaFramesReachAdapter(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")

	f.orch.OnMediaFrame("call-1", []byte{1, 2, 3})
	f.orch.OnMediaFrame("call-1", []byte{4, 5, 6})

	if got := f.adapter.frameCount(); got != 2 {
		t.Errorf("adapter received %d frames, want 2", got)
	}
}

func TestOrchestrator_MediaFrameForUnknownCall(t *testing.T) {
	f := newFixture(t)

	// Must not panic
	f.orch.OnMediaFrame("nope", []byte{1})
}

func TestOrchestrator_TranscriptAfterEndIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")
	f.orch.OnCallEnded("call-1")

	f.orch.handleFinal("call-1", "How do I reset my password?", 0.94)
	f.orch.handlePartial("call-1", "hello again")

	time.Sleep(50 * time.Millisecond)
	if len(f.channel.Sent()) != 0 {
		t.Errorf("expected no updates after end, got %v", f.channel.Sent())
	}
}

func TestOrchestrator_RecoverableSendFailureRecreatesStream(t *testing.T) {
	f := newFixture(t)
	f.startCall(t, "call-1")

	f.adapter.setFailOn(errors.New("stream reset"))

	f.orch.OnMediaFrame("call-1", []byte{1, 2, 3})

	if !f.adapter.isClosed() {
		t.Error("failed stream must be closed before replacement")
	}
	if got := f.adapterCount(); got != 2 {
		t.Fatalf("expected a replacement stream, streams opened: %d", got)
	}
	replacement := f.lastAdapter()
	if got := replacement.frameCount(); got != 1 {
		t.Errorf("frame must be retried on the fresh stream, got %d sends", got)
	}
}

func TestOrchestrator_FinalMergedDuringReplyIsSpokenAfterCycle(t *testing.T) {
	f := newFixture(t)
	sess := f.startCall(t, "call-1")

	// Slow the reply down so the follow-up final lands mid-cycle.
	f.gen.SetScript("password", genmock.Script{
		Partials:     []string{"You can reset your password from the account page."},
		Final:        "You can reset your password from the account page.",
		StartDelay:   50 * time.Millisecond,
		PartialDelay: 40 * time.Millisecond,
	})

	f.orch.handleFinal("call-1", "How do I reset my password?", 0.94)
	if !waitFor(t, time.Second, func() bool { return sess.ReplyInFlight() }) {
		t.Fatal("first cycle never started")
	}

	// Too short to confirm an interruption; merged for the next utterance.
	f.orch.handleFinal("call-1", "my email too", 0.9)

	if !waitFor(t, 2*time.Second, func() bool { return len(f.gen.Calls()) == 2 }) {
		t.Fatalf("merged utterance never generated, calls: %v, pending: %q",
			f.gen.Calls(), sess.PendingBuffer())
	}
	if got := f.gen.Calls()[1]; got != "my email too" {
		t.Errorf("second generation = %q, want %q", got, "my email too")
	}
	if !waitFor(t, 2*time.Second, func() bool {
		return !sess.ReplyInFlight() && sess.PendingBuffer() == ""
	}) {
		t.Error("pending buffer not drained after the follow-up cycle")
	}
}
