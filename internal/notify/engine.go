package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rxalert/internal/eventbus"
	"rxalert/internal/inventory"
	"rxalert/internal/runtime/supervisor"
	"rxalert/internal/scheduler"
	"rxalert/internal/storage"
	logx "rxalert/pkg/logx"
)

// Deps are the engine's collaborators. Every field is optional.
type Deps struct {
	Registry  *Registry
	Slot      storage.Slot
	Inventory inventory.Port
	Sink      Sink
	Recorder  Recorder
	Logger    logx.Logger
	Clock     func() time.Time
}

// Engine orchestrates the notification lifecycle. Construct it with New,
// call Initialize before use and Shutdown when done.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	kinds *Registry
	slot  storage.Slot
	inv   inventory.Port
	sink  Sink
	rec   Recorder
	log   logx.Logger
	clock func() time.Time

	store *store
	guard *dedupGuard
	subs  *eventbus.Bus[Event]
	fan   *turnstile

	initialized bool
	// epoch changes on every Initialize and Shutdown; probe results carrying
	// an older epoch are discarded.
	epoch       uint64
	version     uint64 // snapshot version
	lastCreated time.Time
	permAsked   bool

	persist *persister
	sched   *scheduler.Service
	sup     *supervisor.Supervisor
}

func New(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	if deps.Registry == nil {
		deps.Registry = DefaultRegistry()
	}
	if deps.Sink == nil {
		deps.Sink = nopSink{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Logger.IsZero() {
		deps.Logger = logx.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	log := deps.Logger.With(logx.Component("engine"))
	return &Engine{
		cfg:   cfg,
		kinds: deps.Registry,
		slot:  deps.Slot,
		inv:   deps.Inventory,
		sink:  deps.Sink,
		rec:   deps.Recorder,
		log:   log,
		clock: deps.Clock,
		store: newStore(),
		guard: newDedupGuard(cfg.DedupWindow),
		subs:  eventbus.New[Event](log),
		fan:   newTurnstile(),
	}
}

// Registry exposes the kind table.
func (e *Engine) Registry() *Registry { return e.kinds }

// Initialize restores the persisted snapshot, starts the background
// scheduler and asks the sink for permission once. Calling it again while
// initialized is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initialized {
		e.mu.Unlock()
		return nil
	}

	e.store.reset()
	e.guard.flush()
	e.lastCreated = time.Time{}
	e.sup = supervisor.New(context.Background(), supervisor.WithLogger(e.log))
	e.persist = nil
	if e.slot != nil {
		e.persist = newPersister(e.slot, e.log.With(logx.Component("persist")), e.rec, e.cfg.PersistTimeout)
		restored, err := e.persist.load(ctx)
		if err != nil {
			e.log.Warn("starting with empty store", logx.Err(err))
		}
		for _, n := range restored {
			if e.store.has(n.ID) {
				continue
			}
			e.store.insert(n)
			if n.CreatedAt.After(e.lastCreated) {
				e.lastCreated = n.CreatedAt
			}
		}
		e.persist.start(e.sup)
	}
	now := e.now()
	evicted := e.capLocked()
	e.guard.rebuild(e.store, now, e.cfg.DedupWindow)

	e.epoch++
	epoch := e.epoch
	sched := scheduler.New(e.log.With(logx.Component("scheduler")), scheduler.WithLocation(e.cfg.Location))
	if err := e.registerJobsLocked(sched, epoch, true); err != nil {
		e.sup.Cancel()
		e.persist = nil
		e.mu.Unlock()
		return fmt.Errorf("register background jobs: %w", err)
	}
	e.sched = sched
	e.initialized = true
	if len(evicted) > 0 {
		e.saveLocked()
	}
	total, unread := e.store.len(), e.store.unread()
	askPerm := !e.permAsked
	e.permAsked = true
	e.mu.Unlock()

	e.rec.StoreSize(total, unread)
	e.log.Info("engine initialized", logx.Int("restored", total), logx.Int("unread", unread))

	if askPerm && e.sink.Permission() == PermissionUndetermined {
		p := e.sink.RequestPermission(ctx)
		e.log.Info("delivery permission", logx.String("state", string(p)))
	}
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	e.mu.Lock()
	current := e.sched == sched
	e.mu.Unlock()
	if !current {
		// Shutdown ran while the scheduler was starting.
		sched.Stop(ctx)
	}
	return nil
}

// Shutdown stops ticks, drops observers, flushes the pending snapshot and
// marks the engine uninitialized. Safe to call repeatedly.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.initialized = false
	e.epoch++
	sched, p, sup := e.sched, e.persist, e.sup
	e.sched, e.persist, e.sup = nil, nil, nil
	e.mu.Unlock()

	e.subs.Reset()
	if sched != nil {
		sched.Stop(ctx)
	}
	var err error
	if p != nil {
		err = p.flush(ctx)
	}
	if sup != nil {
		if serr := sup.Stop(ctx); serr != nil && err == nil {
			err = serr
		}
	}
	e.log.Info("engine shut down")
	return err
}

// Add creates a notification of the given kind. It returns (nil, nil) when
// an equivalent notification is already live inside the dedup window.
func (e *Engine) Add(ctx context.Context, kind string, payload Payload) (*Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.add(0, kind, payload)
}

// add with epoch 0 is a caller add; any other epoch must match the current
// one or the result is dropped.
func (e *Engine) add(epoch uint64, kindID string, payload Payload) (*Notification, error) {
	e.mu.Lock()
	if epoch != 0 && (epoch != e.epoch || !e.initialized) {
		e.mu.Unlock()
		e.log.Debug("discarding stale probe result", logx.String("kind", kindID))
		return nil, nil
	}
	if !e.initialized {
		e.mu.Unlock()
		return nil, ErrNotInitialized
	}
	k, ok := e.kinds.Lookup(kindID)
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kindID)
	}

	p := normalizePayload(payload)
	subject := p.SubjectKey()
	now := e.now()
	if e.guard.duplicate(k.ID, subject, now, e.cfg.DedupWindow, e.store) {
		e.mu.Unlock()
		e.rec.Deduped(k.ID)
		e.log.Debug("duplicate suppressed", logx.String("kind", k.ID), logx.String("subject", subject))
		return nil, nil
	}

	created := e.nextCreatedAt(now)
	title, message := render(k.ID, p)
	n := Notification{
		ID:         newID(k.ID, subject, created),
		Kind:       k.ID,
		Title:      title,
		Message:    message,
		CreatedAt:  created,
		Tier:       k.Tier,
		Persistent: k.Persistent,
		Payload:    p,
		Render:     k.Render,
	}
	for e.store.has(n.ID) {
		n.ID = newID(k.ID, subject, created)
	}
	e.store.insert(n)
	e.guard.record(n, e.cfg.DedupWindow, e.store)
	evicted, kept := withoutID(e.capLocked(), n.ID)
	e.saveLocked()
	total, unread := e.store.len(), e.store.unread()
	turn := e.fan.ticket()
	e.mu.Unlock()

	e.rec.StoreSize(total, unread)
	if !kept {
		// A full store of more urgent notifications leaves no room.
		e.log.Debug("notification evicted on arrival", logx.String("kind", n.Kind), logx.Int("tier", n.Tier))
		e.fan.run(turn, func() { e.publishPruned(evicted) })
		return nil, nil
	}
	e.rec.Added(k.ID)
	e.log.Debug("notification added", logx.String("id", n.ID), logx.String("kind", n.Kind), logx.Int("tier", n.Tier))

	e.fan.run(turn, func() {
		e.publish(Event{Type: EventAdded, Notification: n.clone()})
		e.publishPruned(evicted)
	})
	e.deliver(n)
	out := n.clone()
	return &out, nil
}

// withoutID splits id out of an eviction list and reports whether it
// survived.
func withoutID(evicted []Notification, id string) ([]Notification, bool) {
	for i, n := range evicted {
		if n.ID == id {
			return append(evicted[:i:i], evicted[i+1:]...), false
		}
	}
	return evicted, true
}

// nextCreatedAt truncates to milliseconds and keeps creation times strictly
// increasing.
func (e *Engine) nextCreatedAt(now time.Time) time.Time {
	t := time.UnixMilli(now.UnixMilli())
	if !t.After(e.lastCreated) {
		t = e.lastCreated.Add(time.Millisecond)
	}
	e.lastCreated = t
	return t
}

func (e *Engine) deliver(n Notification) {
	if e.sink.Permission() != PermissionGranted {
		return
	}
	if err := e.sink.Deliver(n.clone()); err != nil {
		e.log.Warn("delivery not queued", logx.String("id", n.ID), logx.Err(fmt.Errorf("%w: %w", ErrDelivery, err)))
	}
}

// List returns matching notifications in display order.
func (e *Engine) List(f Filter) ([]Notification, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	return e.store.list(f), nil
}

func (e *Engine) Get(id string) (Notification, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return Notification{}, false, ErrNotInitialized
	}
	n := e.store.get(id)
	if n == nil {
		return Notification{}, false, nil
	}
	return n.clone(), true, nil
}

func (e *Engine) UnreadCount() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return 0, ErrNotInitialized
	}
	return e.store.unread(), nil
}

// MarkRead reports false for unknown ids. Marking an already read
// notification succeeds without an event.
func (e *Engine) MarkRead(id string) (bool, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return false, ErrNotInitialized
	}
	n := e.store.get(id)
	if n == nil {
		e.mu.Unlock()
		return false, nil
	}
	if n.Read {
		e.mu.Unlock()
		return true, nil
	}
	n.Read = true
	snap := n.clone()
	e.saveLocked()
	total, unread := e.store.len(), e.store.unread()
	turn := e.fan.ticket()
	e.mu.Unlock()

	e.rec.StoreSize(total, unread)
	e.fan.run(turn, func() { e.publish(Event{Type: EventRead, Notification: snap}) })
	return true, nil
}

// Dismiss hides a notification. It reports false for unknown or already
// dismissed ids.
func (e *Engine) Dismiss(id string) (bool, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return false, ErrNotInitialized
	}
	n := e.store.get(id)
	if n == nil || n.Dismissed {
		e.mu.Unlock()
		return false, nil
	}
	n.Dismissed = true
	snap := n.clone()
	e.saveLocked()
	total, unread := e.store.len(), e.store.unread()
	turn := e.fan.ticket()
	e.mu.Unlock()

	e.rec.StoreSize(total, unread)
	e.fan.run(turn, func() { e.publish(Event{Type: EventDismissed, Notification: snap}) })
	return true, nil
}

// MarkAllRead flips every unread live notification and emits one read event
// per flip. It returns how many changed.
func (e *Engine) MarkAllRead() (int, error) {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return 0, ErrNotInitialized
	}
	var flipped []Notification
	for _, n := range e.store.items {
		if n.Read || n.Dismissed {
			continue
		}
		n.Read = true
		flipped = append(flipped, n.clone())
	}
	if len(flipped) == 0 {
		e.mu.Unlock()
		return 0, nil
	}
	e.saveLocked()
	total := e.store.len()
	turn := e.fan.ticket()
	e.mu.Unlock()

	sortNotifications(flipped)
	e.rec.StoreSize(total, 0)
	e.fan.run(turn, func() {
		for _, n := range flipped {
			e.publish(Event{Type: EventRead, Notification: n})
		}
	})
	return len(flipped), nil
}

// ClearAll empties the store and the persisted snapshot, persistent
// notifications included.
func (e *Engine) ClearAll() error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	e.store.reset()
	e.guard.flush()
	e.saveLocked()
	turn := e.fan.ticket()
	e.mu.Unlock()

	e.rec.StoreSize(0, 0)
	e.fan.run(turn, func() { e.publish(Event{Type: EventCleared}) })
	return nil
}

// Subscribe registers an observer for every subsequent state change.
func (e *Engine) Subscribe(o Observer) (func(), error) {
	e.mu.Lock()
	ok := e.initialized
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotInitialized
	}
	return e.subs.Subscribe(eventbus.Handler[Event](o)), nil
}

// Apply swaps the engine config. Dedup, retention and cap changes take
// effect at once; schedule changes re-register the background jobs.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	old := e.cfg
	e.cfg = cfg
	if !e.initialized {
		e.mu.Unlock()
		return
	}
	if old.DedupWindow != cfg.DedupWindow {
		e.guard.rebuild(e.store, e.now(), cfg.DedupWindow)
	}
	evicted := e.capLocked()
	if len(evicted) > 0 {
		e.saveLocked()
	}
	var err error
	if old.ScanInterval != cfg.ScanInterval || old.SweepSchedule != cfg.SweepSchedule ||
		old.ProbeTimeout != cfg.ProbeTimeout || old.DisableProbes != cfg.DisableProbes {
		err = e.registerJobsLocked(e.sched, e.epoch, false)
	}
	turn := e.fan.ticket()
	e.mu.Unlock()

	if err != nil {
		e.log.Error("reschedule failed", logx.Err(err))
	}
	e.fan.run(turn, func() { e.publishPruned(evicted) })
	e.log.Info("engine config applied",
		logx.Duration("dedup_window", cfg.DedupWindow),
		logx.Int("max_retained", cfg.MaxRetained),
		logx.Duration("scan_interval", cfg.ScanInterval),
	)
}

// Stats is a point-in-time summary for status endpoints.
type Stats struct {
	Initialized bool                `json:"initialized"`
	Total       int                 `json:"total"`
	Unread      int                 `json:"unread"`
	ByTier      map[int]int         `json:"by_tier"`
	Permission  Permission          `json:"permission"`
	Jobs        []scheduler.JobInfo `json:"jobs"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	st := Stats{Initialized: e.initialized, Total: e.store.len(), Unread: e.store.unread(), ByTier: map[int]int{}}
	for _, n := range e.store.items {
		if !n.Dismissed {
			st.ByTier[n.Tier]++
		}
	}
	sched := e.sched
	e.mu.Unlock()
	st.Permission = e.sink.Permission()
	if sched != nil {
		st.Jobs = sched.Snapshot()
	}
	return st
}

func (e *Engine) now() time.Time { return e.clock() }

// saveLocked hands the current durable view to the persister.
func (e *Engine) saveLocked() {
	if e.persist == nil {
		return
	}
	e.version++
	e.persist.save(e.version, e.store.durable())
}

func (e *Engine) publish(ev Event) {
	if failed := e.subs.Publish(ev); failed > 0 {
		e.log.Warn("observers failed", logx.String("event", string(ev.Type)), logx.Int("failed", failed))
	}
}

func (e *Engine) publishPruned(ns []Notification) {
	if len(ns) == 0 {
		return
	}
	e.rec.Pruned(len(ns))
	for _, n := range ns {
		e.publish(Event{Type: EventPruned, Notification: n})
	}
}
