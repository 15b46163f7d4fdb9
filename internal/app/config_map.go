package app

import (
	"fmt"
	"strings"
	"time"

	"rxalert/internal/config"
	"rxalert/internal/delivery"
	"rxalert/internal/inventory"
	"rxalert/internal/notify"
	"rxalert/internal/observability/debug"
	"rxalert/internal/storage"
	logx "rxalert/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// mapEngineConfig converts the engine section. Zero values are left zero so
// the engine's own defaults apply.
func mapEngineConfig(cfg *config.Config) (notify.Config, error) {
	ec := cfg.Engine
	probeTimeout, err := config.ParseDurationField("engine.probe_timeout", ec.ProbeTimeout)
	if err != nil {
		return notify.Config{}, err
	}
	persistTimeout, err := config.ParseDurationField("engine.persist_timeout", ec.PersistTimeout)
	if err != nil {
		return notify.Config{}, err
	}
	var loc *time.Location
	if tz := strings.TrimSpace(ec.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return notify.Config{}, fmt.Errorf("engine.timezone: invalid %q: %w", tz, err)
		}
	}
	nc := notify.Config{
		DedupWindow:      seconds(ec.DedupWindowSeconds),
		MaxRetained:      ec.MaxRetained,
		RetentionAge:     seconds(ec.RetentionSeconds),
		ScanInterval:     seconds(ec.ScanIntervalSeconds),
		SweepSchedule:    strings.TrimSpace(ec.SweepSchedule),
		ProbeTimeout:     probeTimeout,
		PersistTimeout:   persistTimeout,
		ExpiryWindowDays: ec.ExpiryWindowDays,
		UrgentExpiryDays: ec.UrgentExpiryDays,
		DisableProbes:    ec.DisableProbes,
		Location:         loc,
	}
	if err := nc.Validate(); err != nil {
		return notify.Config{}, fmt.Errorf("engine: %w", err)
	}
	return nc, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		Key:         strings.TrimSpace(sc.Key),
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:     strings.TrimSpace(sc.Redis.Addr),
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		},
	}, nil
}

func mapInventoryConfig(cfg *config.Config) (inventory.Config, error) {
	ic := cfg.Inventory
	busy, err := config.ParseDurationOrDefault("inventory.busy_timeout", ic.BusyTimeout, time.Second)
	if err != nil {
		return inventory.Config{}, err
	}
	return inventory.Config{
		Driver:      strings.ToLower(strings.TrimSpace(ic.Driver)),
		Path:        strings.TrimSpace(ic.Path),
		Fixtures:    strings.TrimSpace(ic.Fixtures),
		BusyTimeout: busy,
	}, nil
}

func mapDeliveryOptions(cfg *config.Config) (delivery.Options, error) {
	dc := cfg.Delivery
	autoDismiss, err := config.ParseDurationOrDefault("delivery.auto_dismiss", dc.AutoDismiss, 5*time.Second)
	if err != nil {
		return delivery.Options{}, err
	}
	pollTimeout, err := config.ParseDurationOrDefault("delivery.telegram.poll_timeout", dc.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return delivery.Options{}, err
	}
	appName := strings.TrimSpace(dc.Desktop.AppName)
	if appName == "" {
		appName = "rxalert"
	}
	return delivery.Options{
		Sinks:       dc.Sinks,
		AutoDismiss: autoDismiss,
		Desktop:     delivery.DesktopConfig{AppName: appName},
		Telegram: delivery.TelegramConfig{
			Token:       strings.TrimSpace(dc.Telegram.Token),
			ChatID:      dc.Telegram.ChatID,
			ThreadID:    dc.Telegram.ThreadID,
			PollTimeout: pollTimeout,
		},
	}, nil
}

func mapDispatcherConfig(cfg *config.Config) (delivery.Config, error) {
	dc := cfg.Delivery
	base, err := config.ParseDurationField("delivery.retry_base", dc.RetryBase)
	if err != nil {
		return delivery.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("delivery.retry_max_delay", dc.RetryMaxDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	return delivery.Config{
		QueueSize:     dc.QueueSize,
		RatePerSec:    dc.RatePerSec,
		RetryMax:      dc.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func mapDebugConfig(cfg *config.Config) (debug.Config, error) {
	dc := cfg.Debug
	rt, err := config.ParseDurationOrDefault("debug.read_timeout", dc.ReadTimeout, 5*time.Second)
	if err != nil {
		return debug.Config{}, err
	}
	wt, err := config.ParseDurationOrDefault("debug.write_timeout", dc.WriteTimeout, 30*time.Second)
	if err != nil {
		return debug.Config{}, err
	}
	it, err := config.ParseDurationOrDefault("debug.idle_timeout", dc.IdleTimeout, 60*time.Second)
	if err != nil {
		return debug.Config{}, err
	}
	return debug.Config{
		Enabled:              dc.Enabled,
		Addr:                 strings.TrimSpace(dc.Addr),
		Token:                strings.TrimSpace(dc.Token),
		AllowInsecure:        dc.AllowInsecure,
		Pprof:                dc.Pprof,
		ReadTimeout:          rt,
		WriteTimeout:         wt,
		IdleTimeout:          it,
		MutexProfileFraction: dc.MutexProfileFraction,
		BlockProfileRate:     dc.BlockProfileRate,
	}, nil
}

// validateMapped runs every mapper so a reload that decodes cleanly but
// cannot be applied is rejected before commit.
func validateMapped(cfg *config.Config) error {
	if _, err := mapEngineConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapInventoryConfig(cfg); err != nil {
		return err
	}
	if _, err := mapDeliveryOptions(cfg); err != nil {
		return err
	}
	if _, err := mapDispatcherConfig(cfg); err != nil {
		return err
	}
	_, err := mapDebugConfig(cfg)
	return err
}
