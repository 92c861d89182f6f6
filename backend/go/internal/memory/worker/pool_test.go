package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"memory_orchestrator/backend/go/pkg/logger"
)

func TestPoolRunsTasks(t *testing.T) {
	p := New(2, 8, logger.Discard())
	var n atomic.Int32
	for i := 0; i < 8; i++ {
		if !p.Submit("count", func(context.Context) { n.Add(1) }) {
			t.Fatalf("Submit(%d) rejected", i)
		}
	}
	p.Wait()
	if n.Load() != 8 {
		t.Errorf("ran %d tasks, want 8", n.Load())
	}
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestSubmitNeverBlocksWhenFull(t *testing.T) {
	p := New(1, 1, logger.Discard())
	release := make(chan struct{})
	started := make(chan struct{})
	p.Submit("blocker", func(context.Context) {
		close(started)
		<-release
	})
	<-started
	if !p.Submit("queued", func(context.Context) {}) {
		t.Fatal("second task should fit in the queue")
	}

	done := make(chan bool)
	go func() { done <- p.Submit("overflow", func(context.Context) {}) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("overflow task accepted, want dropped")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	if p.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", p.Dropped())
	}
	close(release)
	p.Wait()
	_ = p.Close(context.Background())
}

func TestPanicIsRecovered(t *testing.T) {
	p := New(1, 2, logger.Discard())
	var ran atomic.Bool
	p.Submit("boom", func(context.Context) { panic("boom") })
	p.Submit("after", func(context.Context) { ran.Store(true) })
	p.Wait()
	if !ran.Load() {
		t.Error("worker died after panic")
	}
	_ = p.Close(context.Background())
}

func TestCloseRejectsAndCancelsOnDeadline(t *testing.T) {
	p := New(1, 1, logger.Discard())
	cancelled := make(chan struct{})
	p.Submit("slow", func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Close(ctx); err != context.DeadlineExceeded {
		t.Errorf("Close() error = %v, want deadline exceeded", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("running task was not cancelled")
	}
	if p.Submit("late", func(context.Context) {}) {
		t.Error("Submit after Close accepted")
	}
}
