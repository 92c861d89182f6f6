package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"memory_orchestrator/backend/go/internal/models"

	"github.com/segmentio/kafka-go"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishKeysBySession(t *testing.T) {
	w := &recordingWriter{}
	p := NewEventPublisherWithWriter(w)

	ev := models.MemoryEvent{ID: "e1", Type: models.EventSummaryWritten, SessionID: "s1", UserID: "u1", CreatedAt: time.Unix(0, 0).UTC()}
	if err := p.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "s1" {
		t.Errorf("key = %q, want s1", w.msgs[0].Key)
	}
	var got models.MemoryEvent
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != models.EventSummaryWritten || got.SessionID != "s1" {
		t.Errorf("event = %+v", got)
	}

	if err := p.Publish(context.Background(), models.MemoryEvent{Type: models.EventFactsWritten, UserID: "u9"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if string(w.msgs[1].Key) != "u9" {
		t.Errorf("fallback key = %q, want u9", w.msgs[1].Key)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewEventPublisherWithWriter(&recordingWriter{err: boom})
	if err := p.Publish(context.Background(), models.MemoryEvent{SessionID: "s"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped broker error", err)
	}
}

func TestAsyncWriterCountsFailedDeliveries(t *testing.T) {
	var failed atomic.Int64
	w := newAsyncWriter([]string{"localhost:9092"}, "memory_events", nil, &failed)
	if !w.Async {
		t.Fatal("writer is synchronous, Publish would block on broker outages")
	}
	if w.Completion == nil {
		t.Fatal("writer has no completion callback")
	}

	w.Completion([]kafka.Message{{}, {}}, nil)
	if n := failed.Load(); n != 0 {
		t.Errorf("failed = %d after successful delivery", n)
	}
	w.Completion([]kafka.Message{{}, {}}, errors.New("broker down"))
	if n := failed.Load(); n != 2 {
		t.Errorf("failed = %d, want 2", n)
	}
}
