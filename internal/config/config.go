// Package config loads service configuration from environment variables.
// Every heuristic threshold the orchestrator uses is tunable here; the
// defaults are starting points, not the last word.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig holds process identity and listen addresses.
type ServiceConfig struct {
	Principal      string
	HTTPPort       string
	MetricsAddr    string
	CallControlURL string
}

// STTConfig holds transcription collaborator settings.
type STTConfig struct {
	Provider       string // "mock" or "google"
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// GeneratorConfig holds reply generator settings.
type GeneratorConfig struct {
	Provider       string // "mock" or "anthropic"
	Model          string
	MaxTokens      int
	AttemptTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	CacheTTL       time.Duration
}

// SegmenterConfig holds utterance-completeness tuning.
type SegmenterConfig struct {
	SilenceThreshold time.Duration
	MinUtteranceLen  int
	Cooldown         time.Duration
	QuestionStems    []string
	CourtesyPhrases  []string
	GoodbyePhrases   []string
	ContinuationCues []string
}

// InterruptConfig holds interruption-monitor tuning.
type InterruptConfig struct {
	SoftMinLen       int
	ConfirmedMinLen  int
	DispatchGrace    time.Duration
	FillerWords      []string
	GratitudePhrases []string
}

// ReplyConfig holds reply-stream pacing and fallback tuning.
type ReplyConfig struct {
	AckTimeout       time.Duration
	MinChunkGap      time.Duration
	MinFirstChunkLen int
	FillerText       string
	FallbackText     string
	RedirectText     string
	GoodbyeText      string
	UnrelatedTopics  []string
}

// KafkaConfig holds conversation audit publishing settings.
type KafkaConfig struct {
	Enabled        bool
	Brokers        []string
	TopicUser      string
	TopicAssistant string
	Principal      string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel string
}

// Configuration is the root configuration for the service.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Generator     GeneratorConfig
	Segmenter     SegmenterConfig
	Interrupt     InterruptConfig
	Reply         ReplyConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// Load reads configuration from the environment, applying defaults.
func Load() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Principal:      envOrDefault("SERVICE_PRINCIPAL", "svc-call-orchestrator"),
			HTTPPort:       envOrDefault("HTTP_PORT", "8080"),
			MetricsAddr:    envOrDefault("METRICS_ADDR", ":9090"),
			CallControlURL: envOrDefault("CALL_CONTROL_URL", "http://localhost:9000"),
		},
		STT: STTConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envInt("STT_SAMPLE_RATE_HZ", 8000),
			InterimResults: envBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:  envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
		},
		Generator: GeneratorConfig{
			Provider:       envOrDefault("GENERATOR_PROVIDER", "mock"),
			Model:          envOrDefault("GENERATOR_MODEL", "claude-3-5-haiku-latest"),
			MaxTokens:      envInt("GENERATOR_MAX_TOKENS", 512),
			AttemptTimeout: envDuration("GENERATOR_ATTEMPT_TIMEOUT", 8*time.Second),
			MaxRetries:     envInt("GENERATOR_MAX_RETRIES", 2),
			RetryBackoff:   envDuration("GENERATOR_RETRY_BACKOFF", 500*time.Millisecond),
			CacheTTL:       envDuration("GENERATOR_CACHE_TTL", 2*time.Minute),
		},
		Segmenter: SegmenterConfig{
			SilenceThreshold: envDuration("SEGMENTER_SILENCE_THRESHOLD", 800*time.Millisecond),
			MinUtteranceLen:  envInt("SEGMENTER_MIN_UTTERANCE_LEN", 10),
			Cooldown:         envDuration("SEGMENTER_COOLDOWN", 400*time.Millisecond),
			QuestionStems:    envCSV("SEGMENTER_QUESTION_STEMS", []string{"how", "what", "why", "can", "could"}),
			CourtesyPhrases:  envCSV("SEGMENTER_COURTESY_PHRASES", []string{"please", "thank you", "help me", "need help", "can you", "would you"}),
			GoodbyePhrases:   envCSV("SEGMENTER_GOODBYE_PHRASES", []string{"goodbye", "bye", "thanks", "that's all", "have a good day", "end the call"}),
			ContinuationCues: envCSV("SEGMENTER_CONTINUATION_CUES", []string{"question", "help", "another"}),
		},
		Interrupt: InterruptConfig{
			SoftMinLen:       envInt("INTERRUPT_SOFT_MIN_LEN", 8),
			ConfirmedMinLen:  envInt("INTERRUPT_CONFIRMED_MIN_LEN", 15),
			DispatchGrace:    envDuration("INTERRUPT_DISPATCH_GRACE", 1500*time.Millisecond),
			FillerWords:      envCSV("INTERRUPT_FILLER_WORDS", []string{"um", "uh", "okay", "oh"}),
			GratitudePhrases: envCSV("INTERRUPT_GRATITUDE_PHRASES", []string{"thank you", "thanks", "appreciate it"}),
		},
		Reply: ReplyConfig{
			AckTimeout:       envDuration("REPLY_ACK_TIMEOUT", 2*time.Second),
			MinChunkGap:      envDuration("REPLY_MIN_CHUNK_GAP", 500*time.Millisecond),
			MinFirstChunkLen: envInt("REPLY_MIN_FIRST_CHUNK_LEN", 20),
			FillerText:       envOrDefault("REPLY_FILLER_TEXT", "One moment."),
			FallbackText:     envOrDefault("REPLY_FALLBACK_TEXT", "I'm sorry, I'm having trouble right now. Could you say that again?"),
			RedirectText:     envOrDefault("REPLY_REDIRECT_TEXT", "I can help with account and support questions. What can I do for you?"),
			GoodbyeText:      envOrDefault("REPLY_GOODBYE_TEXT", "Thanks for calling. Goodbye!"),
			UnrelatedTopics:  envCSV("REPLY_UNRELATED_TOPICS", []string{"weather", "sports", "stock", "lottery", "movie"}),
		},
		Kafka: KafkaConfig{
			Enabled:        envBool("KAFKA_ENABLED", false),
			Brokers:        envCSV("KAFKA_BROKERS", nil),
			TopicUser:      envOrDefault("KAFKA_TOPIC_USER", "conversation.turn.user"),
			TopicAssistant: envOrDefault("KAFKA_TOPIC_ASSISTANT", "conversation.turn.assistant"),
			Principal:      envOrDefault("KAFKA_PRINCIPAL", "svc-call-orchestrator"),
		},
		Observability: ObservabilityConfig{
			LogLevel: envOrDefault("LOG_LEVEL", "info"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envCSV(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}
