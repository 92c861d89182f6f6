// Package extractor pulls atomic, confidence-scored facts out of conversation text.
package extractor

import (
	"context"

	"memory_orchestrator/backend/go/internal/models"
)

// Extractor defines the interface for extracting facts from content.
//
// Implementations are best-effort: on any failure they return an empty,
// non-nil slice together with the error.
type Extractor interface {
	Extract(ctx context.Context, userID string, chunk string) ([]models.ExtractedFact, error)
}
