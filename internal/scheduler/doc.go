// Package scheduler triggers named background jobs on cron or interval
// schedules (robfig/cron). A job that is still running when its next tick
// arrives is skipped, never queued.
package scheduler
