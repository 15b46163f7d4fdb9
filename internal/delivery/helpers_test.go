package delivery

import (
	"context"
	"errors"
	"sync"

	"rxalert/internal/notify"
)

type fakeChannel struct {
	name string
	perm notify.Permission

	mu       sync.Mutex
	sent     []notify.Notification
	failures int // fail this many sends before succeeding
	failAll  bool
	closed   bool
	block    chan struct{}
}

func (f *fakeChannel) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeChannel) Probe(context.Context) notify.Permission { return f.perm }

func (f *fakeChannel) Send(ctx context.Context, n notify.Notification) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failures > 0 {
		f.failures--
		return errors.New("endpoint unavailable")
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.ID)
	}
	return out
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
