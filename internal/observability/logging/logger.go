// Package logging provides contextual zerolog helpers. Global logger setup
// lives in the app package; these helpers attach the identifying fields a
// component logs with.
package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// WithCall returns a logger with call context.
func WithCall(callId string) zerolog.Logger {
	return log.With().
		Str("callId", callId).
		Logger()
}

// WithCycle returns a logger with generation-cycle context.
func WithCycle(callId string, epoch uint64) zerolog.Logger {
	return log.With().
		Str("callId", callId).
		Uint64("epoch", epoch).
		Logger()
}

// WithStream returns a logger with transcription stream context.
func WithStream(callId, provider string) zerolog.Logger {
	return log.With().
		Str("callId", callId).
		Str("sttProvider", provider).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}
