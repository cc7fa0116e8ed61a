// Package bus implements the named-channel publish/subscribe primitive that
// pulse chains are layered on.
//
// Handlers are invoked in subscription order. Internal handlers (the step
// runtimes of running chains) always run after application handlers for the
// same name, so by the time a chain observes an emission every application
// listener for it has returned. Internal handlers are also invisible to
// Count and RemoveAll.
package bus

import (
	"log/slog"
	"sync"
)

// Handler receives the arguments of an emission. A non-nil error stops the
// dispatch and is returned to the emitter of a synchronous emission.
type Handler func(args ...any) error

// Scheduler defers work to a later turn of the event loop.
// Implemented by loop.Loop.
type Scheduler interface {
	Defer(task func() error) bool
}

type entry struct {
	id       uint64
	handler  Handler
	internal bool
}

// Bus is a named publish/subscribe registry.
//
// The subscription table is guarded by a mutex so handles can be released
// from any goroutine. Dispatch itself runs on the caller's goroutine.
type Bus struct {
	sched Scheduler

	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]entry
}

// New creates a bus whose deferred emissions run on sched.
func New(sched Scheduler) *Bus {
	return &Bus{
		sched: sched,
		subs:  make(map[string][]entry),
	}
}

// Subscribe registers an application handler for name.
func (b *Bus) Subscribe(name string, h Handler) *Subscription {
	return b.subscribe(name, h, false)
}

// SubscribeInternal registers a handler that runs after every application
// handler for name and is excluded from Count and RemoveAll.
func (b *Bus) SubscribeInternal(name string, h Handler) *Subscription {
	return b.subscribe(name, h, true)
}

func (b *Bus) subscribe(name string, h Handler, internal bool) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], entry{id: id, handler: h, internal: internal})

	return &Subscription{bus: b, name: name, id: id}
}

func (b *Bus) remove(name string, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subs[name]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		kept := make([]entry, 0, len(entries)-1)
		kept = append(kept, entries[:i]...)
		kept = append(kept, entries[i+1:]...)
		if len(kept) == 0 {
			delete(b.subs, name)
		} else {
			b.subs[name] = kept
		}
		return true
	}
	return false
}

// snapshot returns the handlers for name with application handlers first.
// Handlers removed during a dispatch still receive that dispatch.
func (b *Bus) snapshot(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := b.subs[name]
	if len(entries) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(entries))
	for _, e := range entries {
		if !e.internal {
			out = append(out, e.handler)
		}
	}
	for _, e := range entries {
		if e.internal {
			out = append(out, e.handler)
		}
	}
	return out
}

// Emit dispatches args to every handler of name on the current goroutine.
// Dispatch stops at the first handler error, which is returned.
func (b *Bus) Emit(name string, args ...any) error {
	for _, h := range b.snapshot(name) {
		if err := h(args...); err != nil {
			return err
		}
	}
	return nil
}

// EmitDeferred schedules an Emit on a later turn of the scheduler.
// Deferred emissions run in scheduling order. Returns false if the scheduler
// refused the task.
func (b *Bus) EmitDeferred(name string, args ...any) bool {
	ok := b.sched.Defer(func() error {
		return b.Emit(name, args...)
	})
	if !ok {
		slog.Warn("deferred emission dropped", "event", name)
	}
	return ok
}

// Count returns the number of application handlers subscribed to name.
func (b *Bus) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, e := range b.subs[name] {
		if !e.internal {
			n++
		}
	}
	return n
}

// CountInternal returns the number of internal handlers subscribed to name.
func (b *Bus) CountInternal(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, e := range b.subs[name] {
		if e.internal {
			n++
		}
	}
	return n
}

// RemoveAll unsubscribes every application handler of name.
// Internal handlers are kept so running chains are not broken.
func (b *Bus) RemoveAll(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var kept []entry
	for _, e := range b.subs[name] {
		if e.internal {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, name)
		return
	}
	b.subs[name] = kept
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus  *Bus
	name string
	id   uint64
	once sync.Once
}

// Name returns the event name the handle is subscribed to.
func (s *Subscription) Name() string {
	return s.name
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.name, s.id)
	})
}
