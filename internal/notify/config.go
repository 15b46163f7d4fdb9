package notify

import (
	"fmt"
	"time"

	"rxalert/internal/scheduler"
)

type Config struct {
	DedupWindow   time.Duration
	MaxRetained   int
	RetentionAge  time.Duration
	ScanInterval  time.Duration
	SweepSchedule string
	ProbeTimeout  time.Duration
	// PersistTimeout bounds each snapshot read or write.
	PersistTimeout time.Duration
	// ExpiryWindowDays is how far ahead the expiry probe looks;
	// UrgentExpiryDays is where a warning becomes urgent.
	ExpiryWindowDays int
	UrgentExpiryDays int
	DisableProbes    bool
	// Location is the scheduler's timezone for cron specs. Nil means local.
	Location *time.Location
}

func DefaultConfig() Config {
	return Config{
		DedupWindow:      300 * time.Second,
		MaxRetained:      50,
		RetentionAge:     604800 * time.Second,
		ScanInterval:     900 * time.Second,
		SweepSchedule:    "@daily",
		ProbeTimeout:     30 * time.Second,
		PersistTimeout:   5 * time.Second,
		ExpiryWindowDays: 30,
		UrgentExpiryDays: 7,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DedupWindow <= 0 {
		c.DedupWindow = d.DedupWindow
	}
	if c.MaxRetained <= 0 {
		c.MaxRetained = d.MaxRetained
	}
	if c.RetentionAge <= 0 {
		c.RetentionAge = d.RetentionAge
	}
	if c.ScanInterval <= 0 {
		c.ScanInterval = d.ScanInterval
	}
	if c.SweepSchedule == "" {
		c.SweepSchedule = d.SweepSchedule
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = d.PersistTimeout
	}
	if c.ExpiryWindowDays <= 0 {
		c.ExpiryWindowDays = d.ExpiryWindowDays
	}
	if c.UrgentExpiryDays <= 0 {
		c.UrgentExpiryDays = d.UrgentExpiryDays
	}
	return c
}

func (c Config) Validate() error {
	c = c.withDefaults()
	if c.UrgentExpiryDays > c.ExpiryWindowDays {
		return fmt.Errorf("urgent expiry days (%d) exceed expiry window (%d)", c.UrgentExpiryDays, c.ExpiryWindowDays)
	}
	if _, err := scheduler.ParseSchedule(c.SweepSchedule); err != nil {
		return fmt.Errorf("sweep schedule: %w", err)
	}
	return nil
}
