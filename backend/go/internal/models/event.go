package models

import "time"

// MemoryEventType names a memory lifecycle event.
type MemoryEventType string

const (
	EventSummaryWritten MemoryEventType = "summary_written"
	EventFactsWritten   MemoryEventType = "facts_written"
	EventSessionClosed  MemoryEventType = "session_closed"
)

// MemoryEvent is published after a memory write becomes visible.
type MemoryEvent struct {
	ID        string                 `json:"id"`
	Type      MemoryEventType        `json:"type"`
	SessionID string                 `json:"session_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}
