package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"memory_orchestrator/backend/go/internal/config"
	"memory_orchestrator/backend/go/internal/database/gormdb"
	"memory_orchestrator/backend/go/internal/llm"
	"memory_orchestrator/backend/go/internal/memory/extractor"
	"memory_orchestrator/backend/go/internal/memory/store/episodic"
	"memory_orchestrator/backend/go/internal/memory/store/semantic"
	"memory_orchestrator/backend/go/internal/memory/store/working"
	"memory_orchestrator/backend/go/internal/memory/summarizer"
	"memory_orchestrator/backend/go/internal/memory/worker"
	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// fakeModel answers summary and extraction prompts. Extraction returns one
// 0.95 requirement for every conversation line containing "requires".
// When gate is non-nil, summary calls block until it is closed.
type fakeModel struct {
	gate chan struct{}

	mu      sync.Mutex
	summary int
	extract int
}

func (m *fakeModel) Call(ctx context.Context, prompt string, _ int, _ float64) (string, error) {
	_, conversation, _ := strings.Cut(prompt, "Conversation:\n")
	if strings.HasPrefix(prompt, "Summarize") {
		if m.gate != nil {
			select {
			case <-m.gate:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		m.mu.Lock()
		m.summary++
		n := m.summary
		m.mu.Unlock()
		return fmt.Sprintf(`{"summary":"summary %d of a %d line conversation","topics":["chat"],"key_decisions":[],"user_preferences":[],"next_steps":["follow up"]}`,
			n, strings.Count(conversation, "\n")+1), nil
	}

	m.mu.Lock()
	m.extract++
	m.mu.Unlock()
	var items []string
	for _, line := range strings.Split(conversation, "\n") {
		if !strings.Contains(line, "requires") {
			continue
		}
		items = append(items, fmt.Sprintf(`{"content":%q,"type":"requirement","confidence":0.95,"tags":[]}`, strings.TrimSpace(line)))
	}
	return `{"facts":[` + strings.Join(items, ",") + `]}`, nil
}

// recordingSummarizer records the size of every window it is handed.
type recordingSummarizer struct {
	next Summarizer

	mu      sync.Mutex
	windows []int
}

func (r *recordingSummarizer) Summarize(ctx context.Context, sessionID string, window []models.Message) (models.SummaryResult, error) {
	r.mu.Lock()
	r.windows = append(r.windows, len(window))
	r.mu.Unlock()
	return r.next.Summarize(ctx, sessionID, window)
}

func (r *recordingSummarizer) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.windows...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.MemoryEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e models.MemoryEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []models.MemoryEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.MemoryEventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	svc        *MemoryService
	model      *fakeModel
	summarizer *recordingSummarizer
	publisher  *recordingPublisher
	episodic   *episodic.Store
	semantic   *semantic.Store
	db         *gorm.DB
	redis      *miniredis.Miniredis
}

type harnessSetup struct {
	cfg       config.MemoryConfig
	model     *fakeModel
	extractor func(llm.Generator, config.MemoryConfig) extractor.Extractor
	now       func() time.Time
}

type harnessOption func(*harnessSetup)

func withConfig(fn func(*config.MemoryConfig)) harnessOption {
	return func(s *harnessSetup) { fn(&s.cfg) }
}

func withGate(gate chan struct{}) harnessOption {
	return func(s *harnessSetup) { s.model.gate = gate }
}

// withExtractor wraps the extractor built over the harness model.
func withExtractor(wrap func(extractor.Extractor) extractor.Extractor) harnessOption {
	return func(s *harnessSetup) {
		build := s.extractor
		s.extractor = func(gen llm.Generator, cfg config.MemoryConfig) extractor.Extractor {
			return wrap(build(gen, cfg))
		}
	}
}

func withClock(now func() time.Time) harnessOption {
	return func(s *harnessSetup) { s.now = now }
}

// gatedExtractor blocks every Extract call until release is closed.
type gatedExtractor struct {
	next    extractor.Extractor
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedExtractor(next extractor.Extractor) *gatedExtractor {
	return &gatedExtractor{next: next, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedExtractor) Extract(ctx context.Context, userID, chunk string) ([]models.ExtractedFact, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return []models.ExtractedFact{}, ctx.Err()
	}
	return g.next.Extract(ctx, userID, chunk)
}

// fakeClock is a settable clock safe for concurrent reads.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	setup := &harnessSetup{
		cfg:   config.DefaultMemoryConfig(),
		model: &fakeModel{},
		extractor: func(gen llm.Generator, cfg config.MemoryConfig) extractor.Extractor {
			return extractor.NewLlmExtractor(gen, cfg.ExtractionConfidenceFloor, cfg.MaxFactsPerExtraction, cfg.ExtractionMaxTokens)
		},
	}
	for _, opt := range opts {
		opt(setup)
	}
	cfg, model := setup.cfg, setup.model

	db, err := gormdb.Open(&config.SQLConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "memory.db")})
	if err != nil {
		t.Fatalf("gormdb.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = gormdb.Close(db) })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := episodic.NewGormRepository(db)
	if err != nil {
		t.Fatal(err)
	}
	epi := episodic.NewStore(repo, episodic.NewRedisTurnCounter(client, "test", cfg.WorkingTTLDuration()), cfg.SummarizeThreshold, cfg.SummaryMaxLength)
	sem, err := semantic.NewStore(db, cfg.RetrievalConfidenceFloor)
	if err != nil {
		t.Fatal(err)
	}

	gen := llm.NewGuard(model, llm.WithTimeout(5*time.Second))
	rec := &recordingSummarizer{next: summarizer.New(gen, cfg.SummaryMaxLength, cfg.SummaryMaxTokens)}
	pub := &recordingPublisher{}
	pool := worker.New(cfg.Workers, cfg.QueueSize, logger.Discard())

	svc, err := NewMemoryService(Deps{
		Working:    working.NewRedisStore(client, "test", cfg.MaxWorkingMessages, cfg.WorkingTTLDuration()),
		Episodic:   epi,
		Semantic:   sem,
		Summarizer: rec,
		Extractor:  setup.extractor(gen, cfg),
		Pool:       pool,
		Publisher:  pub,
		Logger:     logger.Discard(),
		Now:        setup.now,
	}, cfg)
	if err != nil {
		t.Fatalf("NewMemoryService() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

	return &harness{svc: svc, model: model, summarizer: rec, publisher: pub, episodic: epi, semantic: sem, db: db, redis: mr}
}

func userMsg(content string) models.Message {
	return models.NewMessage(models.SpeakerUser, content)
}
