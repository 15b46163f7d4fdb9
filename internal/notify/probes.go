package notify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"rxalert/internal/inventory"
	"rxalert/internal/scheduler"
	logx "rxalert/pkg/logx"
)

// Background job names.
const (
	JobStockProbe     = "probe.stock"
	JobExpiryProbe    = "probe.expiry"
	JobRetentionSweep = "retention.sweep"
)

// registerJobsLocked (re)registers the probes and the retention sweep on
// sched for the given epoch. Probes fire once at start when initial is set.
func (e *Engine) registerJobsLocked(sched *scheduler.Service, epoch uint64, initial bool) error {
	if sched == nil {
		return nil
	}
	cfg := e.cfg
	var opts []scheduler.JobOption
	if initial {
		opts = append(opts, scheduler.RunOnStart())
	}

	if err := sched.AddSchedule(JobRetentionSweep, cfg.SweepSchedule, 0, func(ctx context.Context) error {
		e.Sweep()
		return nil
	}); err != nil {
		return err
	}

	if e.inv == nil || cfg.DisableProbes {
		sched.Remove(JobStockProbe)
		sched.Remove(JobExpiryProbe)
		return nil
	}
	if err := sched.AddInterval(JobStockProbe, cfg.ScanInterval, cfg.ProbeTimeout, func(ctx context.Context) error {
		return e.runStockProbe(ctx, epoch)
	}, opts...); err != nil {
		return err
	}
	return sched.AddInterval(JobExpiryProbe, cfg.ScanInterval, cfg.ProbeTimeout, func(ctx context.Context) error {
		return e.runExpiryProbe(ctx, epoch)
	}, opts...)
}

// RunChecks runs both probes once, concurrently, and returns the first
// failure. Each probe's failure is also logged on its own.
func (e *Engine) RunChecks(ctx context.Context) error {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return ErrNotInitialized
	}
	epoch := e.epoch
	timeout := e.cfg.ProbeTimeout
	e.mu.Unlock()
	if e.inv == nil {
		return fmt.Errorf("%w: no inventory source configured", ErrProbe)
	}

	var g errgroup.Group
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return e.runStockProbe(pctx, epoch)
	})
	g.Go(func() error {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return e.runExpiryProbe(pctx, epoch)
	})
	return g.Wait()
}

// runStockProbe raises CRITICAL_STOCK at or below max(floor(reorder/2), 5)
// and LOW_STOCK at or below the reorder level.
func (e *Engine) runStockProbe(ctx context.Context, epoch uint64) error {
	items, err := e.inv.ListLowStockCandidates(ctx)
	if err != nil {
		return e.probeFailed("stock", err)
	}
	raised := 0
	for _, it := range items {
		critical := inventory.CriticalThreshold(it.ReorderLevel)
		var (
			kind      string
			threshold int
		)
		switch {
		case it.CurrentStock <= critical:
			kind, threshold = KindCriticalStock, critical
		case it.CurrentStock <= it.ReorderLevel:
			kind, threshold = KindLowStock, it.ReorderLevel
		default:
			continue
		}
		n, err := e.add(epoch, kind, Payload{
			"productId":    it.ProductID,
			"productName":  it.ProductName,
			"currentStock": it.CurrentStock,
			"threshold":    threshold,
		})
		if err != nil {
			return e.probeFailed("stock", err)
		}
		if n != nil {
			raised++
		}
	}
	e.rec.ProbeRun("stock", nil)
	e.log.Debug("stock probe done", logx.Int("candidates", len(items)), logx.Int("raised", raised))
	return nil
}

// runExpiryProbe raises EXPIRY_URGENT for batches within UrgentExpiryDays
// (expired included) and EXPIRY_WARNING within ExpiryWindowDays.
func (e *Engine) runExpiryProbe(ctx context.Context, epoch uint64) error {
	e.mu.Lock()
	window, urgent := e.cfg.ExpiryWindowDays, e.cfg.UrgentExpiryDays
	e.mu.Unlock()

	batches, err := e.inv.ListExpiringBatches(ctx, window)
	if err != nil {
		return e.probeFailed("expiry", err)
	}
	now := e.now()
	raised := 0
	for _, b := range batches {
		days := inventory.DaysUntil(now, b.ExpiryDate)
		var kind string
		switch {
		case days <= urgent:
			kind = KindExpiryUrgent
		case days <= window:
			kind = KindExpiryWarning
		default:
			continue
		}
		n, err := e.add(epoch, kind, Payload{
			"productId":       b.ProductID,
			"productName":     b.ProductName,
			"batchId":         b.BatchID,
			"expiryDate":      b.ExpiryDate.In(now.Location()).Format(time.DateOnly),
			"daysUntilExpiry": days,
		})
		if err != nil {
			return e.probeFailed("expiry", err)
		}
		if n != nil {
			raised++
		}
	}
	e.rec.ProbeRun("expiry", nil)
	e.log.Debug("expiry probe done", logx.Int("batches", len(batches)), logx.Int("raised", raised))
	return nil
}

func (e *Engine) probeFailed(probe string, err error) error {
	err = fmt.Errorf("%w: %s: %w", ErrProbe, probe, err)
	e.rec.ProbeRun(probe, err)
	e.log.Warn("probe failed", logx.String("probe", probe), logx.Err(err))
	return err
}
