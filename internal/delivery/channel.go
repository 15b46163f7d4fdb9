package delivery

import (
	"context"

	"rxalert/internal/notify"
)

// Channel is one delivery target.
type Channel interface {
	Name() string
	// Probe checks whether the target can currently accept notifications.
	Probe(ctx context.Context) notify.Permission
	Send(ctx context.Context, n notify.Notification) error
	Close() error
}

// prefixForTier marks message text with the urgency of its tier.
func prefixForTier(tier int) string {
	switch tier {
	case notify.TierCritical:
		return "🚨 "
	case notify.TierHigh:
		return "⚠️ "
	case notify.TierMedium:
		return "ℹ️ "
	default:
		return ""
	}
}
