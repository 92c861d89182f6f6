package models

import "time"

// SpeakerRole identifies who produced a conversation turn.
type SpeakerRole string

const (
	SpeakerUser      SpeakerRole = "user"
	SpeakerAssistant SpeakerRole = "assistant"
	SpeakerSystem    SpeakerRole = "system"
)

// Message is a single raw conversation turn.
type Message struct {
	Role      SpeakerRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage builds a Message stamped with the current time.
func NewMessage(role SpeakerRole, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UTC()}
}

// TurnEvent is the wire format of a chat turn delivered to the memory service.
type TurnEvent struct {
	SessionID  string      `json:"session_id"`
	UserID     string      `json:"user_id"`
	Role       SpeakerRole `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	EndSession bool        `json:"end_session,omitempty"`
}

// Message converts the event into a Message, defaulting the timestamp.
func (e TurnEvent) Message() Message {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	role := e.Role
	if role == "" {
		role = SpeakerUser
	}
	return Message{Role: role, Content: e.Content, Timestamp: ts}
}
