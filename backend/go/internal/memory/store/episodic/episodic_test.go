package episodic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"memory_orchestrator/backend/go/internal/config"
	"memory_orchestrator/backend/go/internal/database/gormdb"
	"memory_orchestrator/backend/go/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gormdb.Open(&config.SQLConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "episodic.db")})
	if err != nil {
		t.Fatalf("gormdb.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = gormdb.Close(db) })
	return db
}

func newSQLStore(t *testing.T, threshold, maxLength int) (*Store, *gorm.DB) {
	t.Helper()
	db := openDB(t)
	repo, err := NewGormRepository(db)
	if err != nil {
		t.Fatalf("NewGormRepository() error = %v", err)
	}
	counter, err := NewLocalTurnCounter(100, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(repo, counter, threshold, maxLength), db
}

func TestShouldSummarizeAtThreshold(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLStore(t, 3, 500)
	for i := 1; i <= 3; i++ {
		ok, _ := s.ShouldSummarize(ctx, "s1")
		if ok {
			t.Fatalf("ShouldSummarize() = true after %d turns", i-1)
		}
		if _, err := s.RecordTurn(ctx, "s1"); err != nil {
			t.Fatal(err)
		}
	}
	if ok, _ := s.ShouldSummarize(ctx, "s1"); !ok {
		t.Fatal("ShouldSummarize() = false at threshold")
	}
	if err := s.MarkSummarized(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.ShouldSummarize(ctx, "s1"); ok {
		t.Error("ShouldSummarize() = true right after MarkSummarized")
	}
}

func TestWriteSummaryAndReadLatest(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLStore(t, 3, 500)

	got, err := s.ReadLatestSummary(ctx, "s1")
	if err != nil || got != nil {
		t.Fatalf("ReadLatestSummary() on empty log = %v, %v; want nil, nil", got, err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		s.now = func() time.Time { return base }
		if _, err := s.WriteSummary(ctx, "s1", "u1", models.SummaryResult{Summary: fmt.Sprintf("summary %d", i)}); err != nil {
			t.Fatalf("WriteSummary() error = %v", err)
		}
	}
	got, err = s.ReadLatestSummary(ctx, "s1")
	if err != nil || got == nil || *got != "summary 2" {
		t.Fatalf("ReadLatestSummary() = %v, %v; want summary 2", got, err)
	}

	list, err := s.ListSummaries(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].Summary != "summary 0" {
		t.Errorf("ListSummaries() = %+v", list)
	}
}

func TestWriteSummaryTruncatesAndScores(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLStore(t, 3, 20)
	long := "这是一段非常长的会话摘要，它会超过二十个字符的限制而被截断"
	row, err := s.WriteSummary(ctx, "s1", "u1", models.SummaryResult{
		Summary:      long,
		KeyDecisions: []string{"use sqlite"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n := utf8.RuneCountInString(row.Summary); n > 20 {
		t.Errorf("summary rune count = %d, want <= 20", n)
	}
	if row.ImportanceScore != 0.6 {
		t.Errorf("ImportanceScore = %v, want 0.6", row.ImportanceScore)
	}
	list, _ := s.ListSummaries(ctx, "s1")
	if len(list) != 1 || len(list[0].KeyDecisions) != 1 || list[0].Topics == nil {
		t.Errorf("round-tripped row = %+v", list)
	}
}

func TestWriteSummaryRejectsEmpty(t *testing.T) {
	s, _ := newSQLStore(t, 3, 500)
	_, err := s.WriteSummary(context.Background(), "s1", "u1", models.SummaryResult{Summary: "   "})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("WriteSummary() error = %v, want ErrInvalidInput", err)
	}
}

func TestResetSessionKeepsLog(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLStore(t, 1, 500)
	_, _ = s.RecordTurn(ctx, "s1")
	_, _ = s.WriteSummary(ctx, "s1", "u1", models.SummaryResult{Summary: "kept"})
	if err := s.ResetSession(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.ShouldSummarize(ctx, "s1"); ok {
		t.Error("counter survived ResetSession")
	}
	if got, _ := s.ReadLatestSummary(ctx, "s1"); got == nil || *got != "kept" {
		t.Errorf("ReadLatestSummary() = %v, want kept", got)
	}
}

func TestGormRepositoryUnavailable(t *testing.T) {
	ctx := context.Background()
	s, db := newSQLStore(t, 3, 500)
	_ = gormdb.Close(db)

	if _, err := s.WriteSummary(ctx, "s1", "u1", models.SummaryResult{Summary: "x"}); !errors.Is(err, models.ErrBackendUnavailable) {
		t.Errorf("WriteSummary() error = %v, want ErrBackendUnavailable", err)
	}
	if _, err := s.ReadLatestSummary(ctx, "s1"); !errors.Is(err, models.ErrBackendUnavailable) {
		t.Errorf("ReadLatestSummary() error = %v, want ErrBackendUnavailable", err)
	}
	list, err := s.ListSummaries(ctx, "s1")
	if !errors.Is(err, models.ErrBackendUnavailable) || list == nil {
		t.Errorf("ListSummaries() = %v, %v", list, err)
	}
}

func TestRedisTurnCounter(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	c := NewRedisTurnCounter(client, "test", time.Minute)

	if n, err := c.Get(ctx, "s1"); err != nil || n != 0 {
		t.Fatalf("Get() on missing key = %d, %v", n, err)
	}
	for i := 1; i <= 3; i++ {
		n, err := c.Incr(ctx, "s1")
		if err != nil || n != int64(i) {
			t.Fatalf("Incr() = %d, %v; want %d", n, err, i)
		}
	}
	if ttl := mr.TTL("test:turns:s1"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}
	if err := c.Reset(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if n, _ := c.Get(ctx, "s1"); n != 0 {
		t.Errorf("Get() after Reset = %d", n)
	}

	mr.Close()
	if _, err := c.Incr(ctx, "s1"); !errors.Is(err, models.ErrBackendUnavailable) {
		t.Errorf("Incr() error = %v, want ErrBackendUnavailable", err)
	}
}
