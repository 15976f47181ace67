package models

// ConversationTurnEvent is the audit event published for each finalized
// conversation turn (user utterance or completed assistant reply).
type ConversationTurnEvent struct {
	EventType string `json:"eventType"`
	CallID    string `json:"callId"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Epoch     uint64 `json:"epoch,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// CallLifecycleEvent is published when a call session is created or destroyed.
type CallLifecycleEvent struct {
	EventType string            `json:"eventType"`
	CallID    string            `json:"callId"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp int64             `json:"timestamp"`
}
