package loop

import "sync"

// task is a unit of deferred work. The sequence number is assigned at
// enqueue time and only used for diagnostics.
type task struct {
	seq int64
	fn  func() error
}

// taskQueue is a thread-safe FIFO queue of deferred tasks.
//
// The queue is unbounded so that a chain can schedule an arbitrary number of
// back-to-back emissions (one per repeat) without blocking the loop that is
// draining it.
//
// Enqueue is safe from any goroutine (listeners releasing a held pulse from
// their own goroutines post here). Dequeue happens on the loop goroutine only.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	next   int64
	closed bool
	signal chan struct{} // buffered, size 1
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends fn to the back of the queue.
// Returns false if the queue is closed.
func (q *taskQueue) Enqueue(fn func() error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.next++
	q.tasks = append(q.tasks, task{seq: q.next, fn: fn})

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front task without blocking.
func (q *taskQueue) TryDequeue() (task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return task{}, false
	}

	t := q.tasks[0]

	// Nil out the slot so the closure (and the artery it captures) can be
	// collected before the backing array is reallocated.
	q.tasks[0] = task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	return t, true
}

// Wait returns a channel that signals when tasks may be available.
func (q *taskQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close rejects further enqueues and wakes any waiter.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
