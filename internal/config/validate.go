package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"rxalert/internal/scheduler"
)

var (
	storageDrivers   = []string{"", "none", "file", "sqlite", "sqlite3", "redis", "memory", "mem"}
	inventoryDrivers = []string{"", "none", "sqlite", "sqlite3", "memory", "mem"}
	sinkNames        = []string{"desktop", "telegram", "nop", "none"}
	logLevels        = []string{"", "trace", "debug", "info", "warn", "warning", "error"}
)

// Validate checks cfg and reports every problem found, not just the first.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	var errs *multierror.Error
	add := func(err error) {
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if !oneOf(cfg.Logging.Level, logLevels) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(fmt.Errorf("logging.file.path: required when file logging is enabled"))
	}

	e := cfg.Engine
	for name, v := range map[string]int{
		"engine.dedup_window_seconds":  e.DedupWindowSeconds,
		"engine.max_retained":          e.MaxRetained,
		"engine.retention_seconds":     e.RetentionSeconds,
		"engine.scan_interval_seconds": e.ScanIntervalSeconds,
		"engine.expiry_window_days":    e.ExpiryWindowDays,
		"engine.urgent_expiry_days":    e.UrgentExpiryDays,
	} {
		if v < 0 {
			add(fmt.Errorf("%s: must be >= 0", name))
		}
	}
	if e.UrgentExpiryDays > 0 && e.ExpiryWindowDays > 0 && e.UrgentExpiryDays > e.ExpiryWindowDays {
		add(fmt.Errorf("engine.urgent_expiry_days: must not exceed expiry_window_days"))
	}
	if s := strings.TrimSpace(e.SweepSchedule); s != "" {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			add(fmt.Errorf("engine.sweep_schedule: %w", err))
		}
	}
	if tz := strings.TrimSpace(e.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("engine.timezone: %w", err))
		}
	}
	_, err := ParseDurationField("engine.probe_timeout", e.ProbeTimeout)
	add(err)
	_, err = ParseDurationField("engine.persist_timeout", e.PersistTimeout)
	add(err)

	st := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(st.Driver))
	switch {
	case !oneOf(driver, storageDrivers):
		add(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
	case (driver == "file" || strings.HasPrefix(driver, "sqlite")) && strings.TrimSpace(st.Path) == "":
		add(fmt.Errorf("storage.path: required for driver %q", driver))
	case driver == "redis" && strings.TrimSpace(st.Redis.Addr) == "":
		add(fmt.Errorf("storage.redis.addr: required for driver redis"))
	}
	_, err = ParseDurationField("storage.busy_timeout", st.BusyTimeout)
	add(err)

	inv := cfg.Inventory
	driver = strings.ToLower(strings.TrimSpace(inv.Driver))
	switch {
	case !oneOf(driver, inventoryDrivers):
		add(fmt.Errorf("inventory.driver: unknown driver %q", inv.Driver))
	case strings.HasPrefix(driver, "sqlite") && strings.TrimSpace(inv.Path) == "":
		add(fmt.Errorf("inventory.path: required for driver %q", driver))
	}
	_, err = ParseDurationField("inventory.busy_timeout", inv.BusyTimeout)
	add(err)

	add(validateDelivery(cfg.Delivery))
	add(validateDebug(cfg.Debug))

	return errs.ErrorOrNil()
}

func validateDelivery(d DeliveryConfig) error {
	var errs *multierror.Error
	for _, s := range d.Sinks {
		if !oneOf(s, sinkNames) {
			errs = multierror.Append(errs, fmt.Errorf("delivery.sinks: unknown sink %q", s))
		}
		if strings.EqualFold(strings.TrimSpace(s), "telegram") {
			if strings.TrimSpace(d.Telegram.Token) == "" || d.Telegram.ChatID == 0 {
				errs = multierror.Append(errs, fmt.Errorf("delivery.telegram: token and chat_id required"))
			}
		}
	}
	if d.QueueSize < 0 || d.RatePerSec < 0 || d.RetryMax < 0 {
		errs = multierror.Append(errs, fmt.Errorf("delivery: queue_size, rate_per_sec and retry_max must be >= 0"))
	}
	for path, raw := range map[string]string{
		"delivery.retry_base":            d.RetryBase,
		"delivery.retry_max_delay":       d.RetryMaxDelay,
		"delivery.auto_dismiss":          d.AutoDismiss,
		"delivery.telegram.poll_timeout": d.Telegram.PollTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func validateDebug(d DebugConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs *multierror.Error
	addr := strings.TrimSpace(d.Addr)
	if addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("debug.addr: %w", err))
		} else if !IsLoopbackAddr(addr) && strings.TrimSpace(d.Token) == "" && !d.AllowInsecure {
			errs = multierror.Append(errs, fmt.Errorf("debug.addr: %q is not loopback; set debug.token or debug.allow_insecure", addr))
		}
	}
	for path, raw := range map[string]string{
		"debug.read_timeout":  d.ReadTimeout,
		"debug.write_timeout": d.WriteTimeout,
		"debug.idle_timeout":  d.IdleTimeout,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// IsLoopbackAddr reports whether a host:port listens on loopback only.
// "localhost" counts; an empty host (all interfaces) does not.
func IsLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}

func oneOf(v string, set []string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
