// Package transfer dispatches a batch of upload/download tasks to a handler
// with bounded concurrency, draining in enqueue order with unspecified
// completion order.
package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/coldvault/agent/internal/logging"
)

// Task is one unit of work the queue dispatches to its handler.
type Task struct {
	Identifier string
	Payload    any
}

// TaskResult is what a handler reports back for one task.
type TaskResult struct {
	Success    bool
	Identifier string
}

// Handler performs the actual transfer for a single task. It must never
// panic in normal operation; if it does, the queue recovers and records a
// failure rather than propagating.
type Handler func(ctx context.Context, task Task) TaskResult

// Queue dispatches tasks to Handler with at most maxConcurrency in flight.
type Queue struct {
	mu             sync.Mutex
	maxConcurrency int
	handler        Handler
	verbose        bool
	pending        []Task
	active         int
	onComplete     func()
	completeFired  bool
	logger         logging.Logger
}

// New constructs an empty Queue.
func New(logger logging.Logger) *Queue {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Queue{logger: logger}
}

// Initialize (re)configures the queue for a new run, discarding any prior
// pending tasks and counters.
func (q *Queue) Initialize(maxConcurrency int, handler Handler, verbose bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	q.maxConcurrency = maxConcurrency
	q.handler = handler
	q.verbose = verbose
	q.pending = nil
	q.active = 0
	q.completeFired = false
	q.onComplete = nil
}

// SetQueue replaces the pending task list.
func (q *Queue) SetQueue(tasks []Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]Task(nil), tasks...)
}

// Start launches up to maxConcurrency workers and returns immediately.
// onComplete, if non-nil, fires exactly once once the pending list and the
// active set both reach zero, after the last handler invocation has
// actually returned.
func (q *Queue) Start(ctx context.Context, onComplete func()) {
	q.mu.Lock()
	q.onComplete = onComplete
	q.completeFired = false
	launch := q.maxConcurrency
	if launch > len(q.pending) {
		launch = len(q.pending)
	}
	q.mu.Unlock()

	if launch == 0 {
		q.maybeComplete()
		return
	}

	for i := 0; i < launch; i++ {
		go q.worker(ctx)
	}
}

func (q *Queue) worker(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			q.maybeComplete()
			return
		}
		task := q.pending[0]
		q.pending = q.pending[1:]
		q.active++
		q.mu.Unlock()

		result := q.invoke(ctx, task)
		if !result.Success && q.verbose {
			q.logger.Warn("task failed", logging.F("identifier", task.Identifier))
		}

		q.mu.Lock()
		q.active--
		q.mu.Unlock()
		q.maybeComplete()
	}
}

func (q *Queue) invoke(ctx context.Context, task Task) (result TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task handler panicked", logging.F("identifier", task.Identifier), logging.F("panic", fmt.Sprintf("%v", r)))
			result = TaskResult{Success: false, Identifier: task.Identifier}
		}
	}()
	return q.handler(ctx, task)
}

// maybeComplete fires onComplete exactly once, the instant both the pending
// list and the active set are empty.
func (q *Queue) maybeComplete() {
	q.mu.Lock()
	if q.completeFired || len(q.pending) != 0 || q.active != 0 {
		q.mu.Unlock()
		return
	}
	q.completeFired = true
	cb := q.onComplete
	q.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// Cancel clears the pending list. In-flight tasks are not interrupted.
func (q *Queue) Cancel() {
	q.mu.Lock()
	q.pending = nil
	q.mu.Unlock()
	q.maybeComplete()
}

// PendingCount returns the number of tasks not yet dispatched.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ActiveCount returns the number of handler invocations currently running.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// IsIdle reports whether nothing is pending or active.
func (q *Queue) IsIdle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0 && q.active == 0
}
