// Package worker runs background memory jobs on a fixed number of goroutines
// fed by a bounded queue.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of background work. ctx is cancelled when the pool is
// force-closed.
type Task func(ctx context.Context)

type job struct {
	name string
	run  Task
}

// Pool is a bounded worker pool. Submit never blocks: when the queue is full
// the task is dropped and counted.
type Pool struct {
	log    *logger.Logger
	queue  chan job
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int

	dropped atomic.Int64
}

// New starts workers goroutines sharing a queue of queueSize slots.
func New(workers, queueSize int, log *logger.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		log:    log,
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.idle = sync.NewCond(&p.pendingMu)
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for j := range p.queue {
				p.run(j)
			}
			return nil
		})
	}
	return p
}

// Submit enqueues task and reports whether it was accepted.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		return false
	}

	p.addPending(1)
	select {
	case p.queue <- job{name: name, run: task}:
		return true
	default:
		p.addPending(-1)
		p.dropped.Add(1)
		p.log.WithField("task", name).Warn("task queue full, dropping task")
		return false
	}
}

func (p *Pool) run(j job) {
	defer p.addPending(-1)
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("task", j.name).WithError(models.ErrorInfo{
				Message: fmt.Sprint(r),
				Type:    "panic",
				Stack:   string(debug.Stack()),
			}).Error("background task panicked")
		}
	}()
	j.run(p.ctx)
}

func (p *Pool) addPending(delta int) {
	p.pendingMu.Lock()
	p.pending += delta
	if p.pending == 0 {
		p.idle.Broadcast()
	}
	p.pendingMu.Unlock()
}

// Wait blocks until every accepted task has finished.
func (p *Pool) Wait() {
	p.pendingMu.Lock()
	for p.pending > 0 {
		p.idle.Wait()
	}
	p.pendingMu.Unlock()
}

// Pending returns the number of queued or running tasks.
func (p *Pool) Pending() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return p.pending
}

// Dropped returns how many tasks were rejected.
func (p *Pool) Dropped() int64 {
	return p.dropped.Load()
}

// Close stops accepting tasks and drains the queue. If ctx expires first the
// running tasks' context is cancelled and ctx.Err() is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = p.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
