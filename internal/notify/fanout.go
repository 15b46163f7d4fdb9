package notify

import "sync"

// turnstile hands out tickets under the engine mutex and lets holders
// publish strictly in ticket order once the mutex is released. Observers
// therefore see events in commit order while still being free to call the
// read methods.
type turnstile struct {
	mu   sync.Mutex
	cond *sync.Cond
	next uint64
	turn uint64
}

func newTurnstile() *turnstile {
	t := &turnstile{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// ticket must be called with the engine mutex held.
func (t *turnstile) ticket() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.next
	t.next++
	return n
}

// run waits for the ticket's turn, calls fn and passes the turn on. Every
// ticket must be run exactly once.
func (t *turnstile) run(n uint64, fn func()) {
	t.mu.Lock()
	for t.turn != n {
		t.cond.Wait()
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.turn++
		t.mu.Unlock()
		t.cond.Broadcast()
	}()
	fn()
}
