// Package loop provides the task-deferral primitive used by pulse emitters.
//
// A Loop is a single-goroutine cooperative event loop. Deferred work is
// appended to a FIFO queue from any goroutine and executed one task at a time
// on the goroutine that drives the loop, either with Run (blocking until the
// context is cancelled or Stop is called) or with RunUntilIdle (drains the
// queue, including tasks scheduled by the tasks themselves, then returns).
//
// Everything that touches chain state runs inside loop tasks, which is what
// lets the engine go without locks: there is no pre-emption between two
// statements of the same task.
package loop

import (
	"context"
	"errors"
	"log/slog"
)

// Loop is a FIFO task scheduler drained by a single goroutine.
//
// Thread-safety model:
//   - Defer(): safe from any goroutine
//   - Run() / RunUntilIdle(): must be called from exactly one goroutine at a time
type Loop struct {
	queue *taskQueue
}

// New creates an idle loop.
func New() *Loop {
	return &Loop{queue: newTaskQueue()}
}

// Defer schedules fn to run on a later turn of the loop.
// Tasks run in scheduling order. Returns false once the loop is stopped.
func (l *Loop) Defer(fn func() error) bool {
	if fn == nil {
		return false
	}
	return l.queue.Enqueue(fn)
}

// Len returns the number of tasks waiting to run.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// Stop closes the loop. Run finishes the tasks already queued and returns;
// Defer returns false from then on.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Run executes tasks until ctx is cancelled or Stop is called.
//
// A failing task is logged and the loop continues with the next one: a task
// error belongs to the chain that scheduled it, not to the loop.
func (l *Loop) Run(ctx context.Context) error {
	slog.Debug("loop starting")

	for {
		if t, ok := l.queue.TryDequeue(); ok {
			if err := t.fn(); err != nil {
				logTaskError(t, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Debug("loop stopping: context cancelled")
			return ctx.Err()

		case _, open := <-l.queue.Wait():
			if !open {
				slog.Debug("loop stopping: closed")
				return nil
			}
		}
	}
}

// RunUntilIdle executes queued tasks until the queue is empty, including
// tasks scheduled while draining. It returns the joined errors of every task
// that failed, after logging each one.
//
// Used by tests and by callers that drive chains synchronously.
func (l *Loop) RunUntilIdle() error {
	var errs []error
	for {
		t, ok := l.queue.TryDequeue()
		if !ok {
			return errors.Join(errs...)
		}
		if err := t.fn(); err != nil {
			logTaskError(t, err)
			errs = append(errs, err)
		}
	}
}

func logTaskError(t task, err error) {
	slog.Error("deferred task failed",
		"error", err,
		"task_seq", t.seq,
	)
}
