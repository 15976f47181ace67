package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear relevant env vars
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "METRICS_ADDR", "LOG_LEVEL",
		"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
		"STT_INTERIM_RESULTS", "STT_AUDIO_ENCODING",
		"GENERATOR_PROVIDER", "GENERATOR_ATTEMPT_TIMEOUT", "GENERATOR_MAX_RETRIES",
		"SEGMENTER_SILENCE_THRESHOLD", "SEGMENTER_MIN_UTTERANCE_LEN", "SEGMENTER_COOLDOWN",
		"INTERRUPT_SOFT_MIN_LEN", "INTERRUPT_CONFIRMED_MIN_LEN", "INTERRUPT_DISPATCH_GRACE",
		"REPLY_ACK_TIMEOUT", "REPLY_MIN_CHUNK_GAP", "REPLY_FILLER_TEXT",
		"REPLY_GOODBYE_TEXT", "CALL_CONTROL_URL",
		"KAFKA_ENABLED", "KAFKA_BROKERS",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	// Service defaults
	if cfg.Service.Principal != "svc-call-orchestrator" {
		t.Errorf("expected default principal 'svc-call-orchestrator', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}

	// STT defaults
	if cfg.STT.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected default sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.STT.InterimResults)
	}

	// Generator defaults
	if cfg.Generator.Provider != "mock" {
		t.Errorf("expected default generator provider 'mock', got %s", cfg.Generator.Provider)
	}
	if cfg.Generator.AttemptTimeout != 8*time.Second {
		t.Errorf("expected default attempt timeout 8s, got %v", cfg.Generator.AttemptTimeout)
	}
	if cfg.Generator.MaxRetries != 2 {
		t.Errorf("expected default max retries 2, got %d", cfg.Generator.MaxRetries)
	}

	// Segmenter defaults
	if cfg.Segmenter.SilenceThreshold != 800*time.Millisecond {
		t.Errorf("expected default silence threshold 800ms, got %v", cfg.Segmenter.SilenceThreshold)
	}
	if cfg.Segmenter.MinUtteranceLen != 10 {
		t.Errorf("expected default min utterance length 10, got %d", cfg.Segmenter.MinUtteranceLen)
	}
	if cfg.Segmenter.Cooldown != 400*time.Millisecond {
		t.Errorf("expected default cooldown 400ms, got %v", cfg.Segmenter.Cooldown)
	}
	if len(cfg.Segmenter.GoodbyePhrases) == 0 {
		t.Error("expected non-empty default goodbye phrases")
	}

	// Interrupt defaults
	if cfg.Interrupt.SoftMinLen != 8 {
		t.Errorf("expected default soft min length 8, got %d", cfg.Interrupt.SoftMinLen)
	}
	if cfg.Interrupt.ConfirmedMinLen != 15 {
		t.Errorf("expected default confirmed min length 15, got %d", cfg.Interrupt.ConfirmedMinLen)
	}
	if cfg.Interrupt.DispatchGrace != 1500*time.Millisecond {
		t.Errorf("expected default dispatch grace 1.5s, got %v", cfg.Interrupt.DispatchGrace)
	}

	// Reply defaults
	if cfg.Reply.AckTimeout != 2*time.Second {
		t.Errorf("expected default ack timeout 2s, got %v", cfg.Reply.AckTimeout)
	}
	if cfg.Reply.MinChunkGap != 500*time.Millisecond {
		t.Errorf("expected default min chunk gap 500ms, got %v", cfg.Reply.MinChunkGap)
	}
	if cfg.Reply.FillerText != "One moment." {
		t.Errorf("expected default filler text 'One moment.', got %s", cfg.Reply.FillerText)
	}
	if cfg.Reply.GoodbyeText != "Thanks for calling. Goodbye!" {
		t.Errorf("expected default goodbye text, got %s", cfg.Reply.GoodbyeText)
	}
	if cfg.Service.CallControlURL != "http://localhost:9000" {
		t.Errorf("expected default call control URL, got %s", cfg.Service.CallControlURL)
	}

	// Kafka defaults
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.TopicUser != "conversation.turn.user" {
		t.Errorf("expected default user topic 'conversation.turn.user', got %s", cfg.Kafka.TopicUser)
	}

	// Observability defaults
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	set := map[string]string{
		"SERVICE_PRINCIPAL":           "svc-test",
		"HTTP_PORT":                   "9000",
		"STT_PROVIDER":                "google",
		"STT_SAMPLE_RATE_HZ":          "16000",
		"GENERATOR_PROVIDER":          "anthropic",
		"GENERATOR_ATTEMPT_TIMEOUT":   "4s",
		"SEGMENTER_SILENCE_THRESHOLD": "600ms",
		"SEGMENTER_COOLDOWN":          "250ms",
		"SEGMENTER_GOODBYE_PHRASES":   "goodbye,see you",
		"INTERRUPT_SOFT_MIN_LEN":      "12",
		"REPLY_ACK_TIMEOUT":           "3s",
		"KAFKA_ENABLED":               "true",
		"KAFKA_BROKERS":               "broker-1:9092,broker-2:9092",
	}
	for k, v := range set {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range set {
			os.Unsetenv(k)
		}
	}()

	cfg := Load()

	if cfg.Service.Principal != "svc-test" {
		t.Errorf("expected principal 'svc-test', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9000" {
		t.Errorf("expected port '9000', got %s", cfg.Service.HTTPPort)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.Generator.Provider != "anthropic" {
		t.Errorf("expected generator provider 'anthropic', got %s", cfg.Generator.Provider)
	}
	if cfg.Generator.AttemptTimeout != 4*time.Second {
		t.Errorf("expected attempt timeout 4s, got %v", cfg.Generator.AttemptTimeout)
	}
	if cfg.Segmenter.SilenceThreshold != 600*time.Millisecond {
		t.Errorf("expected silence threshold 600ms, got %v", cfg.Segmenter.SilenceThreshold)
	}
	if cfg.Segmenter.Cooldown != 250*time.Millisecond {
		t.Errorf("expected cooldown 250ms, got %v", cfg.Segmenter.Cooldown)
	}
	if len(cfg.Segmenter.GoodbyePhrases) != 2 || cfg.Segmenter.GoodbyePhrases[1] != "see you" {
		t.Errorf("expected custom goodbye phrases, got %v", cfg.Segmenter.GoodbyePhrases)
	}
	if cfg.Interrupt.SoftMinLen != 12 {
		t.Errorf("expected soft min length 12, got %d", cfg.Interrupt.SoftMinLen)
	}
	if cfg.Reply.AckTimeout != 3*time.Second {
		t.Errorf("expected ack timeout 3s, got %v", cfg.Reply.AckTimeout)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" {
		t.Errorf("expected two brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestEnvInt_Invalid(t *testing.T) {
	os.Setenv("SEGMENTER_MIN_UTTERANCE_LEN", "not-a-number")
	defer os.Unsetenv("SEGMENTER_MIN_UTTERANCE_LEN")

	cfg := Load()
	if cfg.Segmenter.MinUtteranceLen != 10 {
		t.Errorf("expected fallback to default 10 on invalid int, got %d", cfg.Segmenter.MinUtteranceLen)
	}
}

func TestEnvDuration_Invalid(t *testing.T) {
	os.Setenv("REPLY_ACK_TIMEOUT", "soon")
	defer os.Unsetenv("REPLY_ACK_TIMEOUT")

	cfg := Load()
	if cfg.Reply.AckTimeout != 2*time.Second {
		t.Errorf("expected fallback to default 2s on invalid duration, got %v", cfg.Reply.AckTimeout)
	}
}

func TestEnvCSV(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      []string
		expected int
	}{
		{"unset uses default", "", []string{"a", "b"}, 2},
		{"single value", "x", nil, 1},
		{"trims whitespace", " x , y ", nil, 2},
		{"skips empty entries", "x,,y,", nil, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_CSV_VALUES"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envCSV(key, tt.def)
			if len(got) != tt.expected {
				t.Errorf("envCSV(%q) = %v, want %d entries", tt.envValue, got, tt.expected)
			}
		})
	}
}
