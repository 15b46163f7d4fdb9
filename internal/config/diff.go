package config

import (
	"reflect"
	"strings"

	logx "rxalert/pkg/logx"
)

// Change summarizes what differs between two configs.
type Change struct {
	// Sections lists changed top-level sections in file order.
	Sections []string
	// Attrs are safe log fields for the new values. Secrets never appear.
	Attrs []logx.Field
	// RestartRequired lists sections whose changes only apply on restart.
	RestartRequired []string
}

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares oldCfg and newCfg. Nil configs compare as
// empty ones.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
		ch.Attrs = append(ch.Attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		e := newCfg.Engine
		ch.Sections = append(ch.Sections, "engine")
		ch.Attrs = append(ch.Attrs,
			logx.Int("engine.dedup_window_seconds", e.DedupWindowSeconds),
			logx.Int("engine.max_retained", e.MaxRetained),
			logx.Int("engine.retention_seconds", e.RetentionSeconds),
			logx.Int("engine.scan_interval_seconds", e.ScanIntervalSeconds),
			logx.String("engine.sweep_schedule", strings.TrimSpace(e.SweepSchedule)),
		)
		if strings.TrimSpace(oldCfg.Engine.Timezone) != strings.TrimSpace(e.Timezone) {
			ch.RestartRequired = append(ch.RestartRequired, "engine.timezone")
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		ch.Sections = append(ch.Sections, "storage")
		ch.RestartRequired = append(ch.RestartRequired, "storage")
		ch.Attrs = append(ch.Attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.redis_password_set", newCfg.Storage.Redis.Password != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Inventory, newCfg.Inventory) {
		ch.Sections = append(ch.Sections, "inventory")
		ch.RestartRequired = append(ch.RestartRequired, "inventory")
		ch.Attrs = append(ch.Attrs, logx.String("inventory.driver", newCfg.Inventory.Driver))
	}

	if !reflect.DeepEqual(oldCfg.Delivery, newCfg.Delivery) {
		d := newCfg.Delivery
		ch.Sections = append(ch.Sections, "delivery")
		ch.Attrs = append(ch.Attrs,
			logx.Strs("delivery.sinks", d.Sinks),
			logx.Int("delivery.rate_per_sec", d.RatePerSec),
			logx.Bool("delivery.telegram_token_set", strings.TrimSpace(d.Telegram.Token) != ""),
		)
		o := oldCfg.Delivery
		if !reflect.DeepEqual(o.Sinks, d.Sinks) || o.QueueSize != d.QueueSize ||
			!reflect.DeepEqual(o.Desktop, d.Desktop) || !reflect.DeepEqual(o.Telegram, d.Telegram) {
			ch.RestartRequired = append(ch.RestartRequired, "delivery.sinks")
		}
	}

	if !reflect.DeepEqual(oldCfg.Debug, newCfg.Debug) {
		ch.Sections = append(ch.Sections, "debug")
		ch.Attrs = append(ch.Attrs,
			logx.Bool("debug.enabled", newCfg.Debug.Enabled),
			logx.String("debug.addr", strings.TrimSpace(newCfg.Debug.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
		)
	}

	return ch
}
