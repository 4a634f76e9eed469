package domain

// InboundEvent is the canonical direct message extracted from a webhook payload.
type InboundEvent struct {
	SenderID string
	Text     string
}
