package service

import (
	"context"
	"time"

	"memory_orchestrator/backend/go/internal/memory/extractor"
	"memory_orchestrator/backend/go/internal/memory/worker"
	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/logger"
)

// WorkingMemory is the per-session window of recent turns.
type WorkingMemory interface {
	Append(ctx context.Context, sessionID string, msg models.Message) error
	Read(ctx context.Context, sessionID string) ([]models.Message, error)
	Clear(ctx context.Context, sessionID string) error
}

// EpisodicMemory is the summary log plus its turn counter.
type EpisodicMemory interface {
	RecordTurn(ctx context.Context, sessionID string) (int64, error)
	ShouldSummarize(ctx context.Context, sessionID string) (bool, error)
	MarkSummarized(ctx context.Context, sessionID string) error
	WriteSummary(ctx context.Context, sessionID, userID string, result models.SummaryResult) (*models.EpisodicSummary, error)
	ReadLatestSummary(ctx context.Context, sessionID string) (*string, error)
	ResetSession(ctx context.Context, sessionID string) error
}

// SemanticMemory is the per-user fact store.
type SemanticMemory interface {
	WriteFact(ctx context.Context, userID string, fact models.ExtractedFact) (models.WriteResult, error)
	QueryRelevant(ctx context.Context, userID, query string, limit int) ([]models.SemanticFact, error)
}

// Summarizer compresses a window of turns.
type Summarizer interface {
	Summarize(ctx context.Context, sessionID string, window []models.Message) (models.SummaryResult, error)
}

// EventPublisher announces memory writes. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event models.MemoryEvent) error
}

// TaskRunner schedules background work without blocking the caller.
type TaskRunner interface {
	Submit(name string, task worker.Task) bool
	Wait()
	Dropped() int64
	Close(ctx context.Context) error
}

// Deps are the collaborators a MemoryService is built from. Publisher, Logger
// and Now are optional; every other field is required. Now drives session
// expiry and defaults to time.Now.
type Deps struct {
	Working    WorkingMemory
	Episodic   EpisodicMemory
	Semantic   SemanticMemory
	Summarizer Summarizer
	Extractor  extractor.Extractor
	Pool       TaskRunner
	Publisher  EventPublisher
	Logger     *logger.Logger
	Now        func() time.Time
}
