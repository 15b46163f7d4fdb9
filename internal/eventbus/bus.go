// Package eventbus provides an in-process, synchronous fan-out of events to
// registered handlers.
//
// Contract:
//   - Publish calls handlers on the caller's goroutine, in registration order.
//   - Handlers registered or removed during a Publish take effect from the
//     next Publish.
//   - A panicking handler is recovered and logged; later handlers still run.
//   - Publish must not be called while holding a lock a handler may need.
package eventbus

import (
	"sync"
	"sync/atomic"

	logx "rxalert/pkg/logx"
)

type Handler[E any] func(E)

type subscription[E any] struct {
	id uint64
	fn Handler[E]
}

type Bus[E any] struct {
	log logx.Logger

	mu   sync.Mutex
	subs []subscription[E]
	seq  atomic.Uint64
}

func New[E any](log logx.Logger) *Bus[E] {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bus[E]{log: log}
}

// Subscribe registers fn and returns an idempotent unsubscribe func.
func (b *Bus[E]) Subscribe(fn Handler[E]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	id := b.seq.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, subscription[E]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[E]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			// Copy so an in-flight Publish keeps its own snapshot intact.
			next := make([]subscription[E], 0, len(b.subs)-1)
			next = append(next, b.subs[:i]...)
			b.subs = append(next, b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers e to a snapshot of the current handlers and returns how
// many of them panicked.
func (b *Bus[E]) Publish(e E) (failed int) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		if !b.call(s, e) {
			failed++
		}
	}
	return failed
}

func (b *Bus[E]) call(s subscription[E], e E) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", logx.Uint64("subscriber", s.id), logx.Any("panic", r))
			ok = false
		}
	}()
	s.fn(e)
	return true
}

// Len reports the number of registered handlers.
func (b *Bus[E]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Reset drops every handler.
func (b *Bus[E]) Reset() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}
