// Package working keeps the per-session ring buffer of the most recent raw turns.
package working

import (
	"context"

	"memory_orchestrator/backend/go/internal/models"
)

// Store is a TTL-bound, bounded list of recent messages per session.
//
// Implementations never panic on backend failure. Append becomes a no-op and
// Read returns an empty, non-nil slice; the returned error (wrapping
// models.ErrBackendUnavailable) is informational so callers can count it.
type Store interface {
	// Append pushes msg, trims the list to the configured bound and refreshes the TTL.
	Append(ctx context.Context, sessionID string, msg models.Message) error
	// Read returns the session's messages, most recent last.
	Read(ctx context.Context, sessionID string) ([]models.Message, error)
	// Clear drops the session's messages.
	Clear(ctx context.Context, sessionID string) error
}
