package events

import (
	"context"
	"testing"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerUser != nil {
				t.Error("expected nil user writer when disabled")
			}
			if p.writerAssistant != nil {
				t.Error("expected nil assistant writer when disabled")
			}
		})
	}
}

func TestNew_NilConfig(t *testing.T) {
	p := New(nil)
	if p == nil {
		t.Fatal("expected non-nil publisher")
	}
	if p.enabled {
		t.Error("expected publisher to be disabled")
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:        false,
		Brokers:        []string{"localhost:9092"},
		TopicUser:      "test.user",
		TopicAssistant: "test.assistant",
		Principal:      "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicUser != "test.user" {
		t.Errorf("expected topic user 'test.user', got %s", p.topicUser)
	}
	if p.topicAssistant != "test.assistant" {
		t.Errorf("expected topic assistant 'test.assistant', got %s", p.topicAssistant)
	}
}

func TestPublisher_PublishUserTurn_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishUserTurn(context.Background(), "call-123", "how do I reset my password")

	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishAssistantTurn_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishAssistantTurn(context.Background(), "call-123", "You can reset it from the settings page.", 3)

	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishLifecycle_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishLifecycle(context.Background(), "call.started", "call-123", map[string]string{"caller": "+15550100"})

	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.Close()
	if err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}

func TestPublisher_Close_NilWriters(t *testing.T) {
	p := &Publisher{
		writerUser:      nil,
		writerAssistant: nil,
	}

	err := p.Close()
	if err != nil {
		t.Errorf("expected no error closing publisher with nil writers, got %v", err)
	}
}
