// Package callctl defines the outbound call-control channel. An update
// carries full replacement instructions for the call, so the caller must
// never let two updates for one call race.
package callctl

import "context"

// Update is one call-control instruction: speak the text, then either keep
// listening for the next utterance or hang up.
type Update struct {
	Speak             string `json:"speak"`
	ContinueListening bool   `json:"continueListening"`
	Hangup            bool   `json:"hangup"`
}

// Channel delivers updates to the telephony layer. Accepts one update at a
// time per call; failures are reported, not swallowed.
type Channel interface {
	UpdateCall(ctx context.Context, callID string, update Update) error
}
