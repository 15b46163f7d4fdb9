package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rxalert/internal/inventory"
	"rxalert/internal/storage"
	logx "rxalert/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu        sync.Mutex
	perm      Permission
	requests  int
	delivered []Notification
}

func (s *recordingSink) Permission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perm
}

func (s *recordingSink) RequestPermission(context.Context) Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.perm = PermissionGranted
	return s.perm
}

func (s *recordingSink) Deliver(n Notification) error {
	s.mu.Lock()
	s.delivered = append(s.delivered, n)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

type testEnv struct {
	engine *Engine
	clock  *fakeClock
	slot   *storage.Memory
	sink   *recordingSink
	inv    *inventory.Memory
}

// newTestEnv builds an initialized engine with probes disabled unless the
// config enables them.
func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	env := &testEnv{
		clock: newFakeClock(),
		slot:  storage.NewMemory(),
		sink:  &recordingSink{perm: PermissionUndetermined},
	}
	env.inv = inventory.NewMemory().WithClock(env.clock.Now)
	env.engine = env.newEngine(cfg)
	require.NoError(t, env.engine.Initialize(context.Background()))
	t.Cleanup(func() { _ = env.engine.Shutdown(context.Background()) })
	return env
}

func (env *testEnv) newEngine(cfg Config) *Engine {
	return New(cfg, Deps{
		Slot:      env.slot,
		Inventory: env.inv,
		Sink:      env.sink,
		Clock:     env.clock.Now,
		Logger:    logx.Nop(),
	})
}

func noProbes() Config {
	cfg := DefaultConfig()
	cfg.DisableProbes = true
	return cfg
}

func mustAdd(t *testing.T, e *Engine, kind string, p Payload) Notification {
	t.Helper()
	n, err := e.Add(context.Background(), kind, p)
	require.NoError(t, err)
	require.NotNil(t, n, "add %s was deduplicated", kind)
	return *n
}
