// Package service is the memory orchestrator: it coordinates writes to the
// three memory layers, schedules summarization and fact extraction in the
// background, and assembles the per-turn MemoryContext.
package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"memory_orchestrator/backend/go/internal/config"
	"memory_orchestrator/backend/go/internal/memory/assembler"
	"memory_orchestrator/backend/go/internal/memory/extractor"
	"memory_orchestrator/backend/go/internal/memory/keywords"
	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/logger"
	"memory_orchestrator/backend/go/pkg/util"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const maxTrackedSessions = 100000

// MemoryService provides the core memory functionality.
//
// No method returns an error or panics on backend or model failure: affected
// layers degrade to empty and the failure is logged and counted.
type MemoryService struct {
	working    WorkingMemory
	episodic   EpisodicMemory
	semantic   SemanticMemory
	summarizer Summarizer
	extractor  extractor.Extractor
	pool       TaskRunner
	publisher  EventPublisher
	logger     *logger.Logger
	cfg        config.MemoryConfig

	sessions *util.LRUCache[string, session]
	epochs   atomic.Uint64
	locks    stripes

	stats statsCollector
}

// NewMemoryService creates a new MemoryService.
func NewMemoryService(deps Deps, cfg config.MemoryConfig) (*MemoryService, error) {
	if deps.Working == nil || deps.Episodic == nil || deps.Semantic == nil ||
		deps.Summarizer == nil || deps.Extractor == nil || deps.Pool == nil {
		return nil, errors.New("memory service: missing required dependency")
	}
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	sessions, err := util.NewWithConfig[string, session](util.CacheConfig{
		Capacity: maxTrackedSessions,
		TTL:      cfg.WorkingTTLDuration(),
		Now:      deps.Now,
	})
	if err != nil {
		return nil, err
	}
	return &MemoryService{
		working:    deps.Working,
		episodic:   deps.Episodic,
		semantic:   deps.Semantic,
		summarizer: deps.Summarizer,
		extractor:  deps.Extractor,
		pool:       deps.Pool,
		publisher:  deps.Publisher,
		logger:     log,
		cfg:        cfg,
		sessions:   sessions,
	}, nil
}

// StoreMessage appends msg to working memory and, once enough turns have
// accumulated, schedules summarization of the current window. It returns
// without waiting for any model call.
func (s *MemoryService) StoreMessage(ctx context.Context, sessionID, userID string, msg models.Message) {
	log := s.logger.WithSession(sessionID, userID)
	if sessionID == "" || userID == "" || strings.TrimSpace(msg.Content) == "" {
		log.Debug("ignoring message with missing session, user or content")
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Role == "" {
		msg.Role = models.SpeakerUser
	}

	epoch := s.touch(sessionID, userID)

	if err := s.working.Append(ctx, sessionID, msg); err != nil {
		s.backendFailure(log, err, "failed to append to working memory")
	}
	if _, err := s.episodic.RecordTurn(ctx, sessionID); err != nil {
		s.backendFailure(log, err, "failed to record turn")
	}

	due, err := s.episodic.ShouldSummarize(ctx, sessionID)
	if err != nil {
		s.backendFailure(log, err, "failed to check summarization trigger")
	}
	if due {
		s.scheduleSummary(ctx, sessionID, userID, epoch)
	}

	if s.cfg.ExtractOnUserTurn && msg.Role == models.SpeakerUser {
		content := msg.Content
		if !s.pool.Submit("extract:"+sessionID, func(ctx context.Context) {
			s.extractAndWrite(ctx, sessionID, userID, content, epoch, true)
		}) {
			log.Warn("fact extraction dropped")
		}
	}
}

// scheduleSummary snapshots the window and hands it to the pool. The turn
// counter is reset only when the job was accepted, so a dropped job is
// retried on the next turn.
func (s *MemoryService) scheduleSummary(ctx context.Context, sessionID, userID string, epoch uint64) {
	log := s.logger.WithSession(sessionID, userID)
	window, err := s.working.Read(ctx, sessionID)
	if err != nil {
		s.backendFailure(log, err, "failed to read working memory for summarization")
	}
	if len(window) == 0 {
		return
	}

	s.beginSummary(sessionID, epoch)
	accepted := s.pool.Submit("summarize:"+sessionID, func(ctx context.Context) {
		defer s.endSummary(sessionID, epoch, false)
		s.summarize(ctx, sessionID, userID, epoch, window)
	})
	if !accepted {
		s.endSummary(sessionID, epoch, true)
		log.Warn("summarization dropped, will retry on next turn")
		return
	}
	if err := s.episodic.MarkSummarized(ctx, sessionID); err != nil {
		s.backendFailure(log, err, "failed to reset turn counter")
	}
}

func (s *MemoryService) summarize(ctx context.Context, sessionID, userID string, epoch uint64, window []models.Message) {
	log := s.logger.WithSession(sessionID, userID)
	result, err := s.summarizer.Summarize(ctx, sessionID, window)
	if err != nil {
		s.stats.summariesFailed.Add(1)
		log.WithError(models.NewErrorInfo(err)).Warn("summarization skipped")
		return
	}

	lock := s.locks.of(sessionID)
	lock.RLock()
	if !s.live(sessionID, epoch) {
		lock.RUnlock()
		log.Debug("session closed, discarding summary")
		return
	}
	row, err := s.episodic.WriteSummary(ctx, sessionID, userID, result)
	lock.RUnlock()
	if err != nil {
		s.stats.summariesFailed.Add(1)
		s.backendFailure(log, err, "failed to write summary")
		return
	}
	s.stats.summariesWritten.Add(1)
	s.publish(ctx, models.EventSummaryWritten, sessionID, userID, map[string]interface{}{
		"summary_id":       row.ID,
		"importance_score": row.ImportanceScore,
		"window_size":      len(window),
	})
}

// GetContext reads the three layers concurrently and assembles them. The
// result is always well-formed; with every backend down it is the empty
// context with quality 0.
func (s *MemoryService) GetContext(ctx context.Context, sessionID, userID, query string) models.MemoryContext {
	log := s.logger.WithSession(sessionID, userID)
	if sessionID == "" || userID == "" {
		log.Debug("get context without session or user")
		return models.EmptyContext()
	}

	var (
		working []models.Message
		summary *string
		facts   []models.SemanticFact
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		if working, err = s.working.Read(ctx, sessionID); err != nil {
			s.backendFailure(log, err, "working memory unavailable")
			working = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if summary, err = s.episodic.ReadLatestSummary(ctx, sessionID); err != nil {
			s.backendFailure(log, err, "episodic memory unavailable")
			summary = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if facts, err = s.semantic.QueryRelevant(ctx, userID, query, s.cfg.FactQueryLimit); err != nil {
			s.backendFailure(log, err, "semantic memory unavailable")
			facts = nil
		}
		return nil
	})
	_ = g.Wait()

	mc := assembler.Build(query, working, summary, facts, assembler.Options{MaxTokens: s.cfg.MaxContextTokens})
	s.stats.recordContext(mc, keywords.Extract(query))
	return mc
}

// ExtractFacts extracts facts from content and writes them to semantic
// memory. It returns the number of newly inserted facts.
func (s *MemoryService) ExtractFacts(ctx context.Context, sessionID, userID, content string) int {
	if userID == "" || strings.TrimSpace(content) == "" {
		return 0
	}
	return s.extractAndWrite(ctx, sessionID, userID, content, 0, false)
}

// extractAndWrite runs extraction and persists accepted facts. When gated,
// writes are skipped once the session lifecycle identified by epoch ends.
func (s *MemoryService) extractAndWrite(ctx context.Context, sessionID, userID, content string, epoch uint64, gated bool) int {
	log := s.logger.WithSession(sessionID, userID)
	facts, err := s.extractor.Extract(ctx, userID, content)
	if err != nil {
		s.stats.extractionsFailed.Add(1)
		log.WithError(models.NewErrorInfo(err)).Warn("fact extraction skipped")
		return 0
	}

	written := 0
	for _, f := range facts {
		if gated {
			lock := s.locks.of(sessionID)
			lock.RLock()
			if !s.live(sessionID, epoch) {
				lock.RUnlock()
				log.Debug("session closed, discarding extracted facts")
				break
			}
			written += s.writeFact(ctx, log, userID, f)
			lock.RUnlock()
			continue
		}
		written += s.writeFact(ctx, log, userID, f)
	}
	if written > 0 {
		s.publish(ctx, models.EventFactsWritten, sessionID, userID, map[string]interface{}{"count": written})
	}
	return written
}

func (s *MemoryService) writeFact(ctx context.Context, log *logger.Logger, userID string, f models.ExtractedFact) int {
	res, err := s.semantic.WriteFact(ctx, userID, f)
	switch {
	case err == nil && res == models.FactInserted:
		s.stats.factsWritten.Add(1)
		return 1
	case err == nil || errors.Is(err, models.ErrInvalidInput):
		s.stats.factsSkipped.Add(1)
	default:
		s.backendFailure(log, err, "failed to write fact")
	}
	return 0
}

// CloseSession ends the session: working memory and the turn counter are
// dropped, summaries and facts are kept, and background jobs still running
// for the session finish without writing.
func (s *MemoryService) CloseSession(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	lock := s.locks.of(sessionID)
	lock.Lock()
	var userID string
	s.sessions.Update(sessionID, func(cur session, _ bool) (session, bool) {
		userID = cur.userID
		cur.closed = true
		cur.accumulating = false
		return cur, true
	})
	log := s.logger.WithSession(sessionID, userID)
	if err := s.working.Clear(ctx, sessionID); err != nil {
		s.backendFailure(log, err, "failed to clear working memory")
	}
	if err := s.episodic.ResetSession(ctx, sessionID); err != nil {
		s.backendFailure(log, err, "failed to reset turn counter")
	}
	lock.Unlock()

	log.Info("session closed")
	s.publish(ctx, models.EventSessionClosed, sessionID, userID, nil)
}

// EndSession runs a final extraction over the user turns still in working
// memory plus content, then closes the session. It returns the number of
// facts inserted.
func (s *MemoryService) EndSession(ctx context.Context, sessionID, userID, content string) int {
	if sessionID == "" {
		return 0
	}
	window, err := s.working.Read(ctx, sessionID)
	if err != nil {
		s.backendFailure(s.logger.WithSession(sessionID, userID), err, "failed to read working memory at session end")
	}
	var parts []string
	for _, m := range window {
		if m.Role == models.SpeakerUser {
			parts = append(parts, strings.TrimSpace(m.Content))
		}
	}
	if c := strings.TrimSpace(content); c != "" {
		parts = append(parts, c)
	}
	written := s.ExtractFacts(ctx, sessionID, userID, strings.Join(parts, "\n"))
	s.CloseSession(ctx, sessionID)
	return written
}

// GetStats returns an observability snapshot.
func (s *MemoryService) GetStats() models.MemoryStats {
	st := s.stats.snapshot()
	st.TasksDropped = s.pool.Dropped()
	st.ActiveSessions = s.activeSessions()
	return st
}

// Wait blocks until every accepted background job has finished.
func (s *MemoryService) Wait() {
	s.pool.Wait()
}

// Shutdown stops accepting background work and drains the pool.
func (s *MemoryService) Shutdown(ctx context.Context) error {
	return s.pool.Close(ctx)
}

func (s *MemoryService) backendFailure(log *logger.Logger, err error, msg string) {
	s.stats.backendErrors.Add(1)
	log.WithError(models.NewErrorInfo(err)).Warn(msg)
}

func (s *MemoryService) publish(ctx context.Context, typ models.MemoryEventType, sessionID, userID string, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	event := models.MemoryEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		SessionID: sessionID,
		UserID:    userID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithSession(sessionID, userID).WithError(models.NewErrorInfo(err)).Warn("failed to publish memory event")
	}
}
