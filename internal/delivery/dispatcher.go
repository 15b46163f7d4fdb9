package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"rxalert/internal/eventbus"
	"rxalert/internal/notify"
	"rxalert/internal/runtime/supervisor"
	logx "rxalert/pkg/logx"
)

var (
	ErrQueueFull = errors.New("delivery queue full")
	ErrStopped   = errors.New("delivery stopped")
)

// Config controls the dispatcher.
type Config struct {
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Event types published on Dispatcher.Events.
const (
	EventSent    = "sent"
	EventFailed  = "failed"
	EventDropped = "dropped"
)

// Event reports the outcome of one delivery.
type Event struct {
	Type     string    `json:"type"`
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Channel  string    `json:"channel"`
	Attempts int       `json:"attempts,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type HistoryItem struct {
	At    time.Time `json:"at"`
	ID    string    `json:"id"`
	Kind  string    `json:"kind"`
	Error string    `json:"error,omitempty"`
}

const historySize = 100

// Dispatcher is an async delivery pipeline: queue, one worker, rate limit
// and retry. It is safe for concurrent use.
type Dispatcher struct {
	mu sync.Mutex

	log     logx.Logger
	ch      Channel
	cfg     Config
	limiter *rate.Limiter
	perm    notify.Permission

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan notify.Notification
	sup       *supervisor.Supervisor
	stopDone  chan struct{} // non-nil while stopping

	events *eventbus.Bus[Event]

	hmu     sync.Mutex
	history []HistoryItem
}

var _ notify.Sink = (*Dispatcher)(nil)

func NewDispatcher(cfg Config, ch Channel, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Component("delivery"), logx.String("channel", ch.Name()))
	d := &Dispatcher{
		log:    log,
		ch:     ch,
		perm:   notify.PermissionUndetermined,
		events: eventbus.New[Event](log),
	}
	d.applyLocked(cfg)
	return d
}

// Events carries one Event per finished or dropped delivery.
func (d *Dispatcher) Events() *eventbus.Bus[Event] { return d.events }

// Apply updates rate and retry settings. The queue size only changes on
// the next Start.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	cfg = cfg.withDefaults()
	d.cfg = cfg
	// Burst equals the per-second rate so short spikes pass unthrottled.
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (d *Dispatcher) Permission() notify.Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perm
}

// RequestPermission probes the channel and caches the answer.
func (d *Dispatcher) RequestPermission(ctx context.Context) notify.Permission {
	p := d.ch.Probe(ctx)
	d.mu.Lock()
	d.perm = p
	d.mu.Unlock()
	d.log.Info("delivery permission", logx.String("permission", string(p)))
	return p
}

// Start launches the worker. It is idempotent.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	if d.stopDone != nil {
		done := d.stopDone
		d.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		d.mu.Lock()
	}
	if d.queue != nil {
		d.mu.Unlock()
		return
	}
	d.queue = make(chan notify.Notification, d.cfg.QueueSize)
	d.accepting = true
	// Delivery failures must not take the process down.
	d.sup = supervisor.New(ctx, supervisor.WithLogger(d.log), supervisor.WithCancelOnError(false))
	sup, q := d.sup, d.queue
	d.mu.Unlock()

	sup.GoRestart("delivery.worker", func(c context.Context) error {
		d.workerLoop(c, q)
		d.mu.Lock()
		stopping := d.stopDone != nil
		d.mu.Unlock()
		if stopping {
			return context.Canceled
		}
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("delivery worker exited unexpectedly")
	})
}

// Stop refuses new deliveries and drains the queue until ctx ends. The
// channel is closed once the worker has finished.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	q, sup := d.queue, d.sup
	if q == nil {
		d.mu.Unlock()
		_ = d.ch.Close()
		return
	}
	if d.stopDone != nil {
		done := d.stopDone
		d.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	d.stopDone = done
	d.accepting = false
	d.mu.Unlock()

	go func() {
		defer close(done)
		d.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())
		sup.Cancel()
		if err := d.ch.Close(); err != nil {
			d.log.Warn("channel close failed", logx.Err(err))
		}

		d.mu.Lock()
		d.queue = nil
		d.sup = nil
		d.stopDone = nil
		d.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		<-done
	}
}

// Deliver queues n without blocking.
func (d *Dispatcher) Deliver(n notify.Notification) error {
	d.mu.Lock()
	if !d.accepting || d.queue == nil {
		d.mu.Unlock()
		return ErrStopped
	}
	q := d.queue
	d.sendWG.Add(1)
	d.mu.Unlock()
	defer d.sendWG.Done()

	select {
	case q <- n:
		return nil
	default:
		d.publish(EventDropped, n, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

// Pending reports how many deliveries are queued.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Dispatcher) History() []HistoryItem {
	d.hmu.Lock()
	defer d.hmu.Unlock()
	return append([]HistoryItem(nil), d.history...)
}

func (d *Dispatcher) workerLoop(ctx context.Context, q <-chan notify.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			d.sendWithRetry(ctx, n)
		}
	}
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, n notify.Notification) {
	d.mu.Lock()
	cfg, lim := d.cfg, d.limiter
	d.mu.Unlock()

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		err := d.ch.Send(callCtx, n)
		cancel()
		if err == nil {
			d.publish(EventSent, n, attempt, nil)
			return
		}
		lastErr = err
		d.log.Debug("send failed", logx.String("id", n.ID), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", attempts))
		if attempt == attempts {
			break
		}

		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	d.log.Warn("delivery failed", logx.String("id", n.ID), logx.String("kind", n.Kind),
		logx.Err(fmt.Errorf("%w: %w", notify.ErrDelivery, lastErr)), logx.Int("attempts", attempts))
	d.publish(EventFailed, n, attempts, lastErr)
}

func (d *Dispatcher) publish(typ string, n notify.Notification, attempts int, err error) {
	ev := Event{Type: typ, ID: n.ID, Kind: n.Kind, Channel: d.ch.Name(), Attempts: attempts, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	if typ != EventDropped {
		d.hmu.Lock()
		d.history = append(d.history, HistoryItem{At: ev.At, ID: ev.ID, Kind: ev.Kind, Error: ev.Error})
		if len(d.history) > historySize {
			d.history = d.history[len(d.history)-historySize:]
		}
		d.hmu.Unlock()
	}
	d.events.Publish(ev)
}

// retryDelay is the wait before attempt+1: exponential from RetryBase,
// capped at RetryMaxDelay, with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
