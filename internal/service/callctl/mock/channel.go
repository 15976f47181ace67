// Package mock provides a recording call-control channel for tests.
package mock

import (
	"context"
	"sync"

	"ai-call-orchestrator-service/internal/service/callctl"
)

// Sent is one recorded update with its call.
type Sent struct {
	CallID string
	Update callctl.Update
}

// Channel records every update and can be scripted to fail.
type Channel struct {
	mu   sync.Mutex
	sent []Sent
	errs map[int]error // attempt index (0-based) -> error
}

// New creates a recording channel.
func New() *Channel {
	return &Channel{}
}

// FailAttempt makes the n-th UpdateCall (0-based) return err.
func (c *Channel) FailAttempt(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errs == nil {
		c.errs = make(map[int]error)
	}
	c.errs[n] = err
}

// UpdateCall records the update.
func (c *Channel) UpdateCall(ctx context.Context, callID string, update callctl.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.sent)
	c.sent = append(c.sent, Sent{CallID: callID, Update: update})
	if err, ok := c.errs[idx]; ok {
		return err
	}
	return nil
}

// Sent returns a copy of the recorded updates in order.
func (c *Channel) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Sent, len(c.sent))
	copy(out, c.sent)
	return out
}

// SpokenTexts returns just the spoken text of each update, in order.
func (c *Channel) SpokenTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, s := range c.sent {
		out = append(out, s.Update.Speak)
	}
	return out
}
