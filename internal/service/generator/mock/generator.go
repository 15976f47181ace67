// Package mock provides a scripted reply generator for testing and local
// development without API credentials.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"ai-call-orchestrator-service/internal/models"
	"ai-call-orchestrator-service/internal/service/generator"
)

// Script defines the simulated stream for one utterance.
type Script struct {
	Partials     []string      // Growing partial texts, pushed in order
	Final        string        // Final reply text
	StartDelay   time.Duration // Delay before the first partial
	PartialDelay time.Duration // Delay between partials
	Err          error         // If set, the stream fails after StartDelay
}

// DefaultScripts provides canned replies keyed by a lowercase substring of
// the utterance.
var DefaultScripts = map[string]Script{
	"password": {
		Partials: []string{
			"You can reset your password",
			"You can reset your password from the account page.",
			"You can reset your password from the account page. I can send",
		},
		Final:        "You can reset your password from the account page. I can send you a reset link now.",
		PartialDelay: 30 * time.Millisecond,
	},
	"hours": {
		Partials:     []string{"We are open"},
		Final:        "We are open every day from nine to five.",
		PartialDelay: 30 * time.Millisecond,
	},
}

// Generator implements generator.Generator with scripted streams.
type Generator struct {
	mu       sync.Mutex
	scripts  map[string]Script
	fallback Script
	calls    []string
}

// New creates a mock generator with the default scripts.
func New() *Generator {
	return &Generator{
		scripts: DefaultScripts,
		fallback: Script{
			Partials:     []string{"I can help with that."},
			Final:        "I can help with that. Could you tell me a bit more?",
			PartialDelay: 30 * time.Millisecond,
		},
	}
}

// SetScript registers a script for utterances containing the given substring.
func (g *Generator) SetScript(key string, s Script) {
	g.mu.Lock()
	defer g.mu.Unlock()
	scripts := make(map[string]Script, len(g.scripts)+1)
	for k, v := range g.scripts {
		scripts[k] = v
	}
	scripts[key] = s
	g.scripts = scripts
}

// SetFallback replaces the script used when no key matches.
func (g *Generator) SetFallback(s Script) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallback = s
}

// Calls returns the utterances passed to Generate, in order.
func (g *Generator) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	copy(out, g.calls)
	return out
}

// Generate streams the script matching the utterance.
func (g *Generator) Generate(ctx context.Context, utterance string, history []models.HistoryEntry) (generator.Subscription, error) {
	g.mu.Lock()
	g.calls = append(g.calls, utterance)
	script := g.fallback
	lower := strings.ToLower(utterance)
	for key, s := range g.scripts {
		if strings.Contains(lower, key) {
			script = s
			break
		}
	}
	g.mu.Unlock()

	sub := generator.NewStream()
	go func() {
		if script.StartDelay > 0 {
			select {
			case <-time.After(script.StartDelay):
			case <-ctx.Done():
				sub.Fail(ctx.Err())
				return
			}
		}
		if script.Err != nil {
			sub.Fail(script.Err)
			return
		}
		for _, partial := range script.Partials {
			if sub.Cancelled() {
				return
			}
			sub.Push(generator.Update{Text: partial})
			if script.PartialDelay > 0 {
				select {
				case <-time.After(script.PartialDelay):
				case <-ctx.Done():
					sub.Fail(ctx.Err())
					return
				}
			}
		}
		if sub.Cancelled() {
			return
		}
		sub.Push(generator.Update{Text: script.Final, Final: true})
		sub.Close()
	}()

	return sub, nil
}
