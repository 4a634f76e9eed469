package domain

import (
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// MaxHistory is the number of turns kept per session.
	MaxHistory = 10
)

// ErrSessionConflict reports that the stored session changed after it was
// loaded, so saving would drop the other writer's turns.
var ErrSessionConflict = errors.New("session changed since load")

// Turn is a single conversation message tagged with its author role.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the persisted per-sender conversation state.
type Session struct {
	SenderID string
	// Profile is stored as-is and reserved for personalization.
	Profile map[string]any
	History []Turn
	// SentLink is persisted but never set by the relay.
	SentLink bool
	LastSeen time.Time
	// Version is the stored revision this copy was loaded at; 0 when new.
	// Stores write Version+1 and refuse the write if the stored revision moved.
	Version int64
}

// NewSession returns the default state for a sender seen for the first time.
func NewSession(senderID string) Session {
	return Session{
		SenderID: senderID,
		Profile:  map[string]any{},
		History:  []Turn{},
	}
}

// Append adds a turn and evicts the oldest entries beyond MaxHistory.
func (s *Session) Append(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	s.History = TrimHistory(s.History, MaxHistory)
}

// TrimHistory keeps the most recent limit turns in chronological order.
func TrimHistory(history []Turn, limit int) []Turn {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	out := make([]Turn, limit)
	copy(out, history[len(history)-limit:])
	return out
}
