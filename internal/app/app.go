package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"rxalert/internal/config"
	"rxalert/internal/delivery"
	"rxalert/internal/inventory"
	"rxalert/internal/legacy"
	"rxalert/internal/metrics"
	"rxalert/internal/notify"
	"rxalert/internal/observability/debug"
	"rxalert/internal/runtime/supervisor"
	"rxalert/internal/storage"
	logx "rxalert/pkg/logx"
)

type options struct {
	logLevel      string
	disableProbes bool
	cfg           *config.Config
	clock         func() time.Time
}

type Option func(*options)

// WithLogLevel overrides logging.level from the file, also across reloads.
func WithLogLevel(level string) Option {
	return func(o *options) { o.logLevel = strings.TrimSpace(level) }
}

// WithoutProbes keeps the scheduled stock and expiry probes off. One-shot
// commands use it so opening the engine does not scan inventory.
func WithoutProbes() Option {
	return func(o *options) { o.disableProbes = true }
}

// WithConfig uses cfg instead of reading a file. Hot reload is off.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

type App struct {
	cfgPath string
	opts    options

	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	slot     storage.Slot
	inv      inventory.Port
	invClose func() error
	metrics  *metrics.Metrics
	disp     *delivery.Dispatcher
	engine   *notify.Engine
	legacy   *legacy.Shim
	debug    *debug.Service

	openMu sync.Mutex
	opened bool
}

// NewApp loads the config and builds every component without starting
// anything. An empty cfgPath uses config.Default.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	var (
		cfgm *config.ConfigManager
		cfg  *config.Config
		err  error
	)
	switch {
	case o.cfg != nil:
		cfg = o.cfg
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	case strings.TrimSpace(cfgPath) == "":
		cfg = config.Default()
	default:
		cfgm = config.NewConfigManager(cfgPath)
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}

	a := &App{cfgPath: cfgPath, opts: o, cfgm: cfgm, cfg: cfg}
	logs, root := logx.New(a.logConfig(cfg))
	a.logs = logs
	a.log = root.With(logx.Component("app"))

	if err := a.build(cfg, root); err != nil {
		_ = a.closeResources()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	a.metrics = metrics.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return err
	}
	if a.slot, err = storage.Open(sc, root.With(logx.Component("storage"))); err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if a.slot != nil {
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	} else {
		a.log.Warn("storage disabled; notifications will not survive a restart")
	}

	ic, err := mapInventoryConfig(cfg)
	if err != nil {
		return err
	}
	if a.inv, a.invClose, err = inventory.Open(ic, root.With(logx.Component("inventory"))); err != nil {
		return fmt.Errorf("open inventory: %w", err)
	}

	do, err := mapDeliveryOptions(cfg)
	if err != nil {
		return err
	}
	ch, err := delivery.OpenChannel(do, root)
	if err != nil {
		return fmt.Errorf("open delivery: %w", err)
	}
	var sink notify.Sink
	if ch != nil {
		dc, err := mapDispatcherConfig(cfg)
		if err != nil {
			_ = ch.Close()
			return err
		}
		a.disp = delivery.NewDispatcher(dc, ch, root)
		a.disp.Events().Subscribe(func(ev delivery.Event) { a.metrics.Delivered(ev.Type) })
		sink = a.disp
	}

	nc, err := mapEngineConfig(cfg)
	if err != nil {
		return err
	}
	if a.opts.disableProbes {
		nc.DisableProbes = true
	}
	a.engine = notify.New(nc, notify.Deps{
		Slot:      a.slot,
		Inventory: a.inv,
		Sink:      sink,
		Recorder:  a.metrics,
		Logger:    root,
		Clock:     a.opts.clock,
	})
	a.legacy = legacy.New(a.engine, root)

	dbg, err := mapDebugConfig(cfg)
	if err != nil {
		return err
	}
	a.debug = debug.New(dbg, debug.Sources{
		Health:  a.health,
		Status:  func() any { return a.Status() },
		Metrics: a.metrics.Handler(),
	}, root)
	return nil
}

func (a *App) logConfig(cfg *config.Config) logx.Config {
	lc := mapLogConfig(cfg)
	if a.opts.logLevel != "" {
		lc.Level = a.opts.logLevel
	}
	return lc
}

func (a *App) Engine() *notify.Engine { return a.engine }

func (a *App) Legacy() *legacy.Shim { return a.legacy }

func (a *App) Config() *config.Config {
	if a.cfgm != nil {
		if c := a.cfgm.Get(); c != nil {
			return c
		}
	}
	return a.cfg
}

func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Open starts delivery and initializes the engine. It is what one-shot
// commands need; Start adds the debug server and config watching on top.
func (a *App) Open(ctx context.Context) error {
	a.openMu.Lock()
	defer a.openMu.Unlock()
	if a.opened {
		return nil
	}
	if a.disp != nil {
		// Stop drains the queue explicitly, so the worker outlives ctx.
		a.disp.Start(context.WithoutCancel(ctx))
	}
	if err := a.engine.Initialize(ctx); err != nil {
		if a.disp != nil {
			a.disp.Stop(ctx)
		}
		return fmt.Errorf("initialize engine: %w", err)
	}
	a.opened = true
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.Open(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	dbg, err := mapDebugConfig(a.Config())
	if err != nil {
		return err
	}
	a.debug.Reconfigure(a.sup.Context(), dbg)

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.Component("config")))
		a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
			return validateMapped(cfg)
		})
		a.startReload()
		a.sup.Go("config.watch", func(c context.Context) error {
			return a.cfgm.Watch(c)
		})
	}

	st := a.engine.Stats()
	a.log.Info("app started",
		logx.Int("notifications", st.Total),
		logx.Int("unread", st.Unread),
		logx.String("permission", string(st.Permission)),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	if a.sup != nil {
		a.sup.Cancel()
	}

	a.step(ctx, "engine", 5*time.Second, func(c context.Context) error { return a.engine.Shutdown(c) })
	a.step(ctx, "delivery", 5*time.Second, func(c context.Context) error {
		if a.disp != nil {
			a.disp.Stop(c)
		}
		return nil
	})
	a.step(ctx, "debug", 1*time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "resources", 1*time.Second, func(context.Context) error { return a.closeResources() })
	if a.sup != nil {
		// Finally, wait for supervised goroutines (config watch/reload).
		a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}

	a.openMu.Lock()
	a.opened = false
	a.openMu.Unlock()

	a.log.Info("stopped")
	if a.logs != nil {
		return a.logs.Close()
	}
	return nil
}

func (a *App) closeResources() error {
	var errs *multierror.Error
	if a.slot != nil {
		if err := a.slot.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("storage: %w", err))
		}
		a.slot = nil
	}
	if a.invClose != nil {
		if err := a.invClose(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("inventory: %w", err))
		}
		a.invClose = nil
	}
	return errs.ErrorOrNil()
}

// step runs a shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	stepCtx := ctx
	if limit > 0 {
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < limit {
				limit = max(rem, 0)
			}
		}
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// fn must honor stepCtx; a late finish is logged as a leak signal.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline",
				logx.String("name", name),
				logx.Duration("took", time.Since(start)),
				logx.Bool("failed", err != nil),
			)
		}()
	}
}
