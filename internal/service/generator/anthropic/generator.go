// Package anthropic provides a reply generator backed by the Anthropic
// Messages streaming API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"ai-call-orchestrator-service/internal/models"
	"ai-call-orchestrator-service/internal/service/generator"
)

const systemPrompt = "You are a concise, friendly phone support agent. " +
	"Answer in short spoken sentences. Never use lists or markdown."

// Generator implements generator.Generator over the Anthropic Messages API.
type Generator struct {
	client    anthropicsdk.Client
	model     string
	maxTokens int
}

// New creates a generator that reads ANTHROPIC_API_KEY from the environment.
func New(model string, maxTokens int) *Generator {
	return &Generator{
		client:    anthropicsdk.NewClient(),
		model:     model,
		maxTokens: maxTokens,
	}
}

// NewWithKey creates a generator with an explicit API key.
func NewWithKey(apiKey, model string, maxTokens int) *Generator {
	return &Generator{
		client:    anthropicsdk.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Generate starts a streaming completion for the utterance. Each text delta
// is pushed as a growing partial; the accumulated message is pushed once
// more with Final set when the stream ends.
func (g *Generator) Generate(ctx context.Context, utterance string, history []models.HistoryEntry) (generator.Subscription, error) {
	params := g.buildParams(utterance, history)
	stream := g.client.Messages.NewStreaming(ctx, params)

	sub := generator.NewStream()
	go func() {
		var text strings.Builder

		for stream.Next() {
			if sub.Cancelled() {
				return
			}
			event := stream.Current()
			if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" {
				text.WriteString(event.Delta.Text)
				sub.Push(generator.Update{Text: text.String()})
			}
		}

		if err := stream.Err(); err != nil {
			sub.Fail(fmt.Errorf("anthropic stream: %w", err))
			return
		}
		sub.Push(generator.Update{Text: text.String(), Final: true})
		sub.Close()
	}()

	return sub, nil
}

func (g *Generator) buildParams(utterance string, history []models.HistoryEntry) anthropicsdk.MessageNewParams {
	messages := make([]anthropicsdk.MessageParam, 0, len(history)+1)
	for _, h := range history {
		switch h.Speaker {
		case models.SpeakerUser:
			messages = append(messages, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(h.Text)))
		case models.SpeakerAssistant:
			messages = append(messages, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(h.Text)))
		}
	}
	messages = append(messages, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(utterance)))

	return anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(g.model),
		Messages:  messages,
		MaxTokens: int64(g.maxTokens),
		System: []anthropicsdk.TextBlockParam{
			{Text: systemPrompt},
		},
	}
}
