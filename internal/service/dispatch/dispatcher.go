// Package dispatch serializes outbound call-control updates. An update
// carries full replacement instructions, so two racing updates would drop
// content; the dispatcher guarantees one in flight per session, in
// submission order.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ai-call-orchestrator-service/internal/models"
	"ai-call-orchestrator-service/internal/observability/metrics"
	"ai-call-orchestrator-service/internal/service/callctl"
	"ai-call-orchestrator-service/internal/service/session"
)

// Dispatcher owns the per-session dispatch locks and the call-control
// channel.
type Dispatcher struct {
	channel callctl.Channel
	metrics *metrics.Metrics

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a dispatcher over the given call-control channel.
func New(channel callctl.Channel) *Dispatcher {
	return &Dispatcher{
		channel: channel,
		metrics: metrics.DefaultMetrics,
		locks:   make(map[string]*sync.Mutex),
	}
}

// DispatchChunk sends one reply chunk with a keep-listening directive.
// The chunk's epoch is compared against the session's current epoch under
// the dispatch lock; a stale chunk is dropped unsent and (false, nil) is
// returned. This is how interruption cancels in-flight output.
func (d *Dispatcher) DispatchChunk(ctx context.Context, sess *session.Session, chunk models.ReplyChunk) (bool, error) {
	lock := d.lockFor(sess.CallID())
	lock.Lock()
	defer lock.Unlock()

	if chunk.Epoch != sess.Epoch() {
		d.metrics.RecordStaleChunkDropped()
		log.Debug().
			Str("callId", sess.CallID()).
			Uint64("chunkEpoch", chunk.Epoch).
			Uint64("sessionEpoch", sess.Epoch()).
			Int("seq", chunk.Seq).
			Msg("Stale chunk dropped")
		return false, nil
	}

	err := d.send(ctx, sess, callctl.Update{
		Speak:             chunk.Text,
		ContinueListening: true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// DispatchKeepListening sends a minimal update so the user is not left
// talking over dead air after a soft interruption.
func (d *Dispatcher) DispatchKeepListening(ctx context.Context, sess *session.Session) error {
	lock := d.lockFor(sess.CallID())
	lock.Lock()
	defer lock.Unlock()

	return d.send(ctx, sess, callctl.Update{ContinueListening: true})
}

// DispatchGoodbye speaks the terminal reply and appends a hangup directive.
// The caller tears the session down after a successful dispatch.
func (d *Dispatcher) DispatchGoodbye(ctx context.Context, sess *session.Session, text string) error {
	lock := d.lockFor(sess.CallID())
	lock.Lock()
	defer lock.Unlock()

	return d.send(ctx, sess, callctl.Update{
		Speak:  text,
		Hangup: true,
	})
}

// Release drops the dispatch lock entry for a destroyed session.
func (d *Dispatcher) Release(callID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.locks, callID)
}

func (d *Dispatcher) send(ctx context.Context, sess *session.Session, update callctl.Update) error {
	start := time.Now()
	err := d.channel.UpdateCall(ctx, sess.CallID(), update)
	if err != nil {
		// A dispatch fault degrades the session but does not tear it
		// down; the next utterance gets a fresh attempt.
		d.metrics.RecordDispatchError()
		sess.MarkDegraded()
		log.Error().
			Err(err).
			Str("callId", sess.CallID()).
			Bool("hangup", update.Hangup).
			Msg("Call-control update failed")
		return err
	}

	sess.MarkDispatch(time.Now())
	if update.Speak != "" {
		d.metrics.RecordChunkDispatched(time.Since(start).Seconds())
	}
	return nil
}

func (d *Dispatcher) lockFor(callID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[callID]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[callID] = lock
	}
	return lock
}
