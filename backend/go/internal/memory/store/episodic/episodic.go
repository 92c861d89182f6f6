// Package episodic keeps the append-only log of session summaries and the
// per-session turn counter that decides when a new summary is due.
package episodic

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"memory_orchestrator/backend/go/internal/memory/keywords"
	"memory_orchestrator/backend/go/internal/models"

	"github.com/google/uuid"
)

// Repository persists summaries. Rows are never updated in place.
type Repository interface {
	Insert(ctx context.Context, summary *models.EpisodicSummary) error
	// Latest returns the newest summary for the session, or nil when none exists.
	Latest(ctx context.Context, sessionID string) (*models.EpisodicSummary, error)
	// List returns every summary of the session, oldest first.
	List(ctx context.Context, sessionID string) ([]models.EpisodicSummary, error)
}

// Store combines the summary repository with the turn counter.
type Store struct {
	repo      Repository
	counter   TurnCounter
	threshold int
	maxLength int
	now       func() time.Time
}

// NewStore creates an episodic Store. threshold is the turn count at which
// ShouldSummarize fires; maxLength caps stored summary text in runes.
func NewStore(repo Repository, counter TurnCounter, threshold, maxLength int) *Store {
	return &Store{
		repo:      repo,
		counter:   counter,
		threshold: threshold,
		maxLength: maxLength,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordTurn counts one stored turn for the session.
func (s *Store) RecordTurn(ctx context.Context, sessionID string) (int64, error) {
	return s.counter.Incr(ctx, sessionID)
}

// ShouldSummarize reports whether enough turns accumulated since the last summary.
func (s *Store) ShouldSummarize(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.counter.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return n >= int64(s.threshold), nil
}

// MarkSummarized zeroes the counter once a summary job has been handed off.
func (s *Store) MarkSummarized(ctx context.Context, sessionID string) error {
	return s.counter.Reset(ctx, sessionID)
}

// WriteSummary appends one summary row built from result.
func (s *Store) WriteSummary(ctx context.Context, sessionID, userID string, result models.SummaryResult) (*models.EpisodicSummary, error) {
	text := strings.TrimSpace(result.Summary)
	if sessionID == "" || text == "" {
		return nil, fmt.Errorf("%w: session id and summary are required", models.ErrInvalidInput)
	}
	if s.maxLength > 0 && utf8.RuneCountInString(text) > s.maxLength {
		text = keywords.Truncate(text, s.maxLength)
	}
	row := &models.EpisodicSummary{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		UserID:          userID,
		Summary:         text,
		Topics:          nonNil(result.Topics),
		KeyDecisions:    nonNil(result.KeyDecisions),
		UserPreferences: nonNil(result.UserPreferences),
		NextSteps:       nonNil(result.NextSteps),
		ImportanceScore: result.Importance(),
		CreatedAt:       s.now(),
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// ReadLatestSummary returns the newest summary text, or nil when the session has none.
func (s *Store) ReadLatestSummary(ctx context.Context, sessionID string) (*string, error) {
	latest, err := s.repo.Latest(ctx, sessionID)
	if err != nil || latest == nil {
		return nil, err
	}
	text := latest.Summary
	return &text, nil
}

// ListSummaries returns the session's summaries, oldest first.
func (s *Store) ListSummaries(ctx context.Context, sessionID string) ([]models.EpisodicSummary, error) {
	rows, err := s.repo.List(ctx, sessionID)
	if rows == nil {
		rows = []models.EpisodicSummary{}
	}
	return rows, err
}

// ResetSession drops the turn counter. The summary log is kept.
func (s *Store) ResetSession(ctx context.Context, sessionID string) error {
	return s.counter.Reset(ctx, sessionID)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
