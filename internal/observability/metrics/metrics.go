// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_call_orchestrator"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter

	// Utterance metrics
	UtterancesTotal    prometheus.Counter
	GoodbyesTotal      prometheus.Counter
	CooldownSuppressed prometheus.Counter

	// Interruption metrics
	Interruptions *prometheus.CounterVec

	// Dispatch metrics
	ChunksDispatched   prometheus.Counter
	ChunksDroppedStale prometheus.Counter
	DispatchErrors     prometheus.Counter
	DispatchLatency    prometheus.Histogram

	// Generation metrics
	GenerationAttempts prometheus.Counter
	GenerationFailures *prometheus.CounterVec
	GenerationFallback *prometheus.CounterVec
	GenerationLatency  prometheus.Histogram
	AckFillers         prometheus.Counter

	// Audio metrics
	AudioBytesReceived  prometheus.Counter
	AudioFramesReceived prometheus.Counter

	// STT metrics
	STTErrors           *prometheus.CounterVec
	TranscriberRestarts prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequests       *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of call sessions created",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active call sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of call sessions in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),

		// Transcript metrics
		TranscriptsPartial: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of interim transcript segments received",
		}),
		TranscriptsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcript segments received",
		}),

		// Utterance metrics
		UtterancesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Total number of complete utterances handed to generation",
		}),
		GoodbyesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goodbyes_total",
			Help:      "Total number of goodbye utterances that ended a call",
		}),
		CooldownSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldown_suppressed_total",
			Help:      "Total number of generation cycles suppressed by the cooldown limiter",
		}),

		// Interruption metrics
		Interruptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Total number of interruptions by tier",
		}, []string{"tier"}),

		// Dispatch metrics
		ChunksDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_dispatched_total",
			Help:      "Total number of reply chunks dispatched to call control",
		}),
		ChunksDroppedStale: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_dropped_stale_total",
			Help:      "Total number of chunks dropped due to epoch mismatch",
		}),
		DispatchErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Total number of call-control update failures",
		}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Call-control update latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),

		// Generation metrics
		GenerationAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Total number of reply generation attempts",
		}),
		GenerationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_failures_total",
			Help:      "Total number of reply generation failures",
		}, []string{"reason"}),
		GenerationFallback: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Total number of fallback replies by kind",
		}, []string{"kind"}),
		GenerationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_seconds",
			Help:      "Time from utterance completion to first dispatched chunk",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15},
		}),
		AckFillers: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ack_fillers_total",
			Help:      "Total number of acknowledgment filler dispatches",
		}),

		// Audio metrics
		AudioBytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_received_total",
			Help:      "Total audio bytes received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),

		// STT metrics
		STTErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stt_errors_total",
			Help:      "Total number of transcription stream errors",
		}, []string{"provider", "error_type"}),
		TranscriberRestarts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriber_restarts_total",
			Help:      "Total number of transcription streams recreated after a fault",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "speaker"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "speaker"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served",
		}, []string{"method", "path", "status"}),
		HTTPRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_latency_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "path"}),
	}
}

// RecordSessionCreated records a new session being created.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionDestroyed records a session ending.
func (m *Metrics) RecordSessionDestroyed(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordPartialTranscript records an interim transcript segment.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordFinalTranscript records a final transcript segment.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordUtterance records a complete utterance handed to generation.
func (m *Metrics) RecordUtterance() {
	m.UtterancesTotal.Inc()
}

// RecordGoodbye records a goodbye utterance ending a call.
func (m *Metrics) RecordGoodbye() {
	m.GoodbyesTotal.Inc()
}

// RecordCooldownSuppressed records a generation cycle suppressed by cooldown.
func (m *Metrics) RecordCooldownSuppressed() {
	m.CooldownSuppressed.Inc()
}

// RecordInterruption records an interruption by tier ("soft" or "confirmed").
func (m *Metrics) RecordInterruption(tier string) {
	m.Interruptions.WithLabelValues(tier).Inc()
}

// RecordChunkDispatched records a chunk reaching call control.
func (m *Metrics) RecordChunkDispatched(latencySeconds float64) {
	m.ChunksDispatched.Inc()
	m.DispatchLatency.Observe(latencySeconds)
}

// RecordStaleChunkDropped records a chunk dropped by epoch mismatch.
func (m *Metrics) RecordStaleChunkDropped() {
	m.ChunksDroppedStale.Inc()
}

// RecordDispatchError records a call-control update failure.
func (m *Metrics) RecordDispatchError() {
	m.DispatchErrors.Inc()
}

// RecordGenerationAttempt records a generation attempt.
func (m *Metrics) RecordGenerationAttempt() {
	m.GenerationAttempts.Inc()
}

// RecordGenerationFailure records a generation failure by reason.
func (m *Metrics) RecordGenerationFailure(reason string) {
	m.GenerationFailures.WithLabelValues(reason).Inc()
}

// RecordFallback records a fallback reply by kind ("cache", "canned", "generic", "redirect").
func (m *Metrics) RecordFallback(kind string) {
	m.GenerationFallback.WithLabelValues(kind).Inc()
}

// RecordAckFiller records an acknowledgment filler dispatch.
func (m *Metrics) RecordAckFiller() {
	m.AckFillers.Inc()
}

// RecordAudioReceived records audio bytes and frames received.
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesReceived.Add(float64(bytes))
	m.AudioFramesReceived.Inc()
}

// RecordSTTError records a transcription error.
func (m *Metrics) RecordSTTError(provider, errorType string) {
	m.STTErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordTranscriberRestart records a transcription stream being recreated.
func (m *Metrics) RecordTranscriberRestart() {
	m.TranscriberRestarts.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, speaker string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, speaker).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, speaker).Inc()
	}
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestLatency.WithLabelValues(method, path).Observe(latencySeconds)
}
