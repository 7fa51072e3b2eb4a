// Package scheduler defers propagation work until a transaction commits and
// runs it off the writer's goroutine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	// ErrQueueClosed is returned when submitting to a closed queue.
	ErrQueueClosed = errors.New("task queue is closed")
	// ErrQueueFull is returned when the queue buffer is exhausted. Submit
	// never blocks the caller.
	ErrQueueFull = errors.New("task queue is full")
)

const (
	defaultWorkers = 2
	defaultSize    = 256
)

// Task is one unit of deferred work.
type Task func(context.Context)

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(task Task) error
}

// QueueConfig sizes a Queue.
type QueueConfig struct {
	Workers int
	Size    int
	Logf    func(string, ...any)
}

// Queue runs submitted tasks on a fixed pool of workers. Tasks already
// accepted run to completion even after Close is called.
type Queue struct {
	tasks  chan Task
	ctx    context.Context
	logf   func(string, ...any)
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewQueue starts a queue whose tasks inherit ctx values but not its
// cancellation.
func NewQueue(ctx context.Context, cfg QueueConfig) *Queue {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.Size <= 0 {
		cfg.Size = defaultSize
	}
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	q := &Queue{
		tasks: make(chan Task, cfg.Size),
		ctx:   context.WithoutCancel(ctx),
		logf:  cfg.Logf,
	}
	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	return q
}

// Submit enqueues task without blocking.
func (q *Queue) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("task is required")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish or for ctx
// to end, whichever comes first.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain task queue: %w", ctx.Err())
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

func (q *Queue) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logf("deferred task panicked: %v", r)
		}
	}()
	task(q.ctx)
}

var _ Submitter = (*Queue)(nil)
