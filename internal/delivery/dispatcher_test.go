package delivery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

func fastConfig() Config {
	return Config{QueueSize: 16, RatePerSec: 1000, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond}
}

type eventSink struct {
	mu  sync.Mutex
	evs []Event
}

func (s *eventSink) add(ev Event) {
	s.mu.Lock()
	s.evs = append(s.evs, ev)
	s.mu.Unlock()
}

func (s *eventSink) list() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.evs...)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	ch := &fakeChannel{perm: notify.PermissionGranted}
	d := NewDispatcher(fastConfig(), ch, logx.Nop())
	var evs eventSink
	d.Events().Subscribe(evs.add)
	d.Start(context.Background())

	want := []string{}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("n%d", i)
		want = append(want, id)
		require.NoError(t, d.Deliver(notify.Notification{ID: id, Kind: notify.KindTest}))
	}
	d.Stop(context.Background())

	assert.Equal(t, want, ch.sentIDs())
	assert.True(t, ch.isClosed())
	require.Len(t, evs.list(), 5)
	assert.Equal(t, EventSent, evs.list()[0].Type)
	assert.Len(t, d.History(), 5)
}

func TestDispatcherRetries(t *testing.T) {
	ch := &fakeChannel{failures: 2}
	d := NewDispatcher(fastConfig(), ch, logx.Nop())
	var evs eventSink
	d.Events().Subscribe(evs.add)
	d.Start(context.Background())

	require.NoError(t, d.Deliver(notify.Notification{ID: "a"}))
	d.Stop(context.Background())

	assert.Equal(t, []string{"a"}, ch.sentIDs())
	require.Len(t, evs.list(), 1)
	assert.Equal(t, 3, evs.list()[0].Attempts)
}

func TestDispatcherGivesUp(t *testing.T) {
	ch := &fakeChannel{failAll: true}
	d := NewDispatcher(fastConfig(), ch, logx.Nop())
	var evs eventSink
	d.Events().Subscribe(evs.add)
	d.Start(context.Background())

	require.NoError(t, d.Deliver(notify.Notification{ID: "a"}))
	d.Stop(context.Background())

	require.Len(t, evs.list(), 1)
	ev := evs.list()[0]
	assert.Equal(t, EventFailed, ev.Type)
	assert.Equal(t, 3, ev.Attempts)
	assert.Equal(t, "endpoint unavailable", ev.Error)
	assert.Equal(t, "endpoint unavailable", d.History()[0].Error)
}

func TestDispatcherQueueFull(t *testing.T) {
	block := make(chan struct{})
	ch := &fakeChannel{block: block}
	cfg := fastConfig()
	cfg.QueueSize = 1
	d := NewDispatcher(cfg, ch, logx.Nop())
	var evs eventSink
	d.Events().Subscribe(evs.add)
	d.Start(context.Background())

	require.NoError(t, d.Deliver(notify.Notification{ID: "a"}))
	// Wait for the worker to pick up "a" and block on it.
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Deliver(notify.Notification{ID: "b"}))
	assert.ErrorIs(t, d.Deliver(notify.Notification{ID: "c"}), ErrQueueFull)

	close(block)
	d.Stop(context.Background())
	assert.Equal(t, []string{"a", "b"}, ch.sentIDs())

	dropped := 0
	for _, ev := range evs.list() {
		if ev.Type == EventDropped {
			dropped++
			assert.Equal(t, "c", ev.ID)
		}
	}
	assert.Equal(t, 1, dropped)
}

func TestDispatcherStopped(t *testing.T) {
	ch := &fakeChannel{}
	d := NewDispatcher(fastConfig(), ch, logx.Nop())
	assert.ErrorIs(t, d.Deliver(notify.Notification{ID: "a"}), ErrStopped)

	d.Start(context.Background())
	d.Stop(context.Background())
	assert.ErrorIs(t, d.Deliver(notify.Notification{ID: "b"}), ErrStopped)

	// Restartable after a stop.
	d.Start(context.Background())
	require.NoError(t, d.Deliver(notify.Notification{ID: "c"}))
	d.Stop(context.Background())
	assert.Equal(t, []string{"c"}, ch.sentIDs())
}

func TestDispatcherStopHonorsDeadline(t *testing.T) {
	ch := &fakeChannel{block: make(chan struct{})}
	d := NewDispatcher(fastConfig(), ch, logx.Nop())
	d.Start(context.Background())
	require.NoError(t, d.Deliver(notify.Notification{ID: "stuck"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	d.Stop(ctx)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, ch.sentIDs())
}

func TestDispatcherPermission(t *testing.T) {
	ch := &fakeChannel{perm: notify.PermissionGranted}
	d := NewDispatcher(fastConfig(), ch, logx.Nop())
	assert.Equal(t, notify.PermissionUndetermined, d.Permission())
	assert.Equal(t, notify.PermissionGranted, d.RequestPermission(context.Background()))
	assert.Equal(t, notify.PermissionGranted, d.Permission())
}

func TestRetryDelayBounds(t *testing.T) {
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}.withDefaults()
	for i := 0; i < 50; i++ {
		d := retryDelay(cfg, 1)
		assert.GreaterOrEqual(t, d, 70*time.Millisecond)
		assert.LessOrEqual(t, d, 130*time.Millisecond)
		assert.LessOrEqual(t, retryDelay(cfg, 10), time.Second)
	}
}

func TestEngineDeliversThroughDispatcher(t *testing.T) {
	ch := &fakeChannel{perm: notify.PermissionGranted}
	d := NewDispatcher(fastConfig(), ch, logx.Nop())
	d.Start(context.Background())

	cfg := notify.DefaultConfig()
	cfg.DisableProbes = true
	e := notify.New(cfg, notify.Deps{Sink: d, Logger: logx.Nop()})
	require.NoError(t, e.Initialize(context.Background()))

	n, err := e.Add(context.Background(), notify.KindLowStock, notify.Payload{"productId": "p1", "productName": "Aspirin"})
	require.NoError(t, err)
	require.NotNil(t, n)

	require.NoError(t, e.Shutdown(context.Background()))
	d.Stop(context.Background())
	assert.Equal(t, []string{n.ID}, ch.sentIDs())
}
