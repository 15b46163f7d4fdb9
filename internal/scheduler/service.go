package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "rxalert/pkg/logx"
)

type Job func(ctx context.Context) error

// JobOption tweaks a single registration.
type JobOption func(*job)

// RunOnStart fires the job once as soon as the scheduler starts, in addition
// to its regular ticks.
func RunOnStart() JobOption { return func(j *job) { j.runOnStart = true } }

type job struct {
	name       string
	spec       string
	timeout    time.Duration
	fn         Job
	runOnStart bool
	entryID    cron.EntryID

	running atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
	lastErr atomic.Value // string
}

// JobInfo describes a registered job for status output.
type JobInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Next    time.Time     `json:"next"`
	Prev    time.Time     `json:"prev"`
	Running bool          `json:"running"`
	Runs    uint64        `json:"runs"`
	Skipped uint64        `json:"skipped"`
	Failed  uint64        `json:"failed"`
	LastErr string        `json:"last_err,omitempty"`
}

type Option func(*Service)

func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// Service owns one cron instance. Jobs may be registered before or after
// Start; registration is an upsert by name.
type Service struct {
	mu     sync.Mutex
	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	jobs   map[string]*job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log: log,
		loc: time.Local,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		jobs:   map[string]*job{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddSchedule registers fn under a schedule string accepted by ParseSchedule.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, fn Job, opts ...JobOption) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	switch ps.Kind {
	case SpecCron:
		return s.AddCron(name, ps.Cron, timeout, fn, opts...)
	case SpecInterval:
		return s.AddInterval(name, ps.Every, timeout, fn, opts...)
	default:
		return fmt.Errorf("unsupported schedule kind")
	}
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, fn Job, opts ...JobOption) error {
	if every <= 0 {
		return fmt.Errorf("schedule %s: interval must be > 0", name)
	}
	return s.AddCron(name, "@every "+every.String(), timeout, fn, opts...)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, fn Job, opts ...JobOption) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if fn == nil {
		return errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	j := &job{name: name, spec: spec, timeout: timeout, fn: fn}
	for _, o := range opts {
		o(j)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.jobs[name] = j
	if s.c != nil {
		if err := s.registerLocked(j); err != nil {
			delete(s.jobs, name)
			return err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("spec", spec), logx.Duration("timeout", timeout))
	return nil
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	j, ok := s.jobs[name]
	if !ok {
		return false
	}
	if s.c != nil && j.entryID != 0 {
		s.c.Remove(j.entryID)
	}
	delete(s.jobs, name)
	return true
}

func (s *Service) registerLocked(j *job) error {
	id, err := s.c.AddFunc(j.spec, func() { s.trigger(j) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", j.name, err)
	}
	j.entryID = id
	return nil
}

// Start begins triggering. Jobs registered with RunOnStart fire right away.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for _, j := range s.jobs {
		if err := s.registerLocked(j); err != nil {
			s.c = nil
			s.cancel()
			return err
		}
	}
	s.c.Start()
	for _, j := range s.jobs {
		if j.runOnStart {
			go s.trigger(j)
		}
	}
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts future ticks at once, cancels running jobs and waits for them
// until ctx expires. Registrations survive for a later Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	for _, j := range s.jobs {
		j.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	c.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for running jobs")
	}
	s.log.Info("scheduler stopped")
}

// Trigger runs name now, subject to the same overlap rule as a tick.
func (s *Service) Trigger(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	started := s.c != nil
	s.mu.Unlock()
	if !ok || !started {
		return false
	}
	go s.trigger(j)
	return true
}

func (s *Service) trigger(j *job) {
	if !j.running.CompareAndSwap(false, true) {
		j.skipped.Add(1)
		s.log.Debug("schedule tick skipped; previous run in flight", logx.String("name", j.name))
		return
	}
	defer j.running.Store(false)

	s.mu.Lock()
	base := s.ctx
	live := s.c != nil
	if live {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	if !live {
		return
	}
	defer s.wg.Done()

	ctx := base
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(base, j.timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.run(ctx, j)
	j.runs.Add(1)
	if err != nil {
		j.failed.Add(1)
		j.lastErr.Store(err.Error())
		s.log.Warn("scheduled job failed", logx.String("name", j.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	j.lastErr.Store("")
	s.log.Debug("scheduled job done", logx.String("name", j.name), logx.Duration("took", time.Since(start)))
}

func (s *Service) run(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled job panicked", logx.String("name", j.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in %s: %v", j.name, r)
		}
	}()
	return j.fn(ctx)
}

// Snapshot lists registered jobs sorted by name.
func (s *Service) Snapshot() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		it := JobInfo{
			Name:    j.name,
			Spec:    j.spec,
			Timeout: j.timeout,
			Running: j.running.Load(),
			Runs:    j.runs.Load(),
			Skipped: j.skipped.Load(),
			Failed:  j.failed.Load(),
		}
		if v, ok := j.lastErr.Load().(string); ok {
			it.LastErr = v
		}
		if s.c != nil && j.entryID != 0 {
			e := s.c.Entry(j.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		out = append(out, it)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
