// Package stt defines the interface for streaming transcription providers.
package stt

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Callback receives transcript results from the transcription provider.
// Utterance boundary decisions are not the provider's job; the orchestrator
// segments the transcript stream itself.
type Callback interface {
	// OnPartial is called when an interim transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	OnFinal(text string, confidence float64)

	// OnError is called when an error occurs on the stream.
	OnError(err error)
}

// Adapter is one live transcription stream for one call. The handle is owned
// exclusively by its session and is recreated, not reused, after a fault.
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}

// Factory creates a fresh Adapter. Used both at call start and when a
// faulted stream is recreated with its subscriber re-attached.
type Factory func(ctx context.Context) (Adapter, error)

// Recoverable reports whether a stream error should be handled by
// recreating the stream rather than ending the session. Transient transport
// faults (including plain write failures, which surface as Unknown) are
// recoverable; credential and request errors are not.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.Canceled:
		return false
	}
	return true
}
