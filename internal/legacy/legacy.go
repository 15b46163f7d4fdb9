// Package legacy keeps old notification call sites working. Every call is
// translated onto the engine's public API; nothing here touches engine
// state directly.
package legacy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rxalert/internal/inventory"
	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

// Engine is the part of *notify.Engine the shim calls.
type Engine interface {
	Add(ctx context.Context, kind string, payload notify.Payload) (*notify.Notification, error)
	List(f notify.Filter) ([]notify.Notification, error)
	MarkRead(id string) (bool, error)
	ClearAll() error
	UnreadCount() (int, error)
}

// DefaultUrgentDays splits AddExpiryAlert between urgent and warning.
const DefaultUrgentDays = 7

// oldTypes maps the lowercase type names of the old API onto kinds.
var oldTypes = map[string]string{
	"critical_stock": notify.KindCriticalStock,
	"critical":       notify.KindCriticalStock,
	"low_stock":      notify.KindLowStock,
	"stock":          notify.KindLowStock,
	"expiry_urgent":  notify.KindExpiryUrgent,
	"expired":        notify.KindExpiryUrgent,
	"expiry_warning": notify.KindExpiryWarning,
	"expiry":         notify.KindExpiryWarning,
	"expiring":       notify.KindExpiryWarning,
	"sale":           notify.KindSaleCompleted,
	"sale_completed": notify.KindSaleCompleted,
	"error":          notify.KindSystemError,
	"system_error":   notify.KindSystemError,
	"info":           notify.KindSystemInfo,
	"success":        notify.KindSystemInfo,
	"warning":        notify.KindSystemInfo,
	"system_info":    notify.KindSystemInfo,
	"test":           notify.KindTest,
}

// KindFor resolves an old type name. Current kind ids pass through.
func KindFor(oldType string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(oldType))
	if k, ok := oldTypes[t]; ok {
		return k, true
	}
	if _, ok := notify.DefaultRegistry().Lookup(t); ok {
		return strings.ToUpper(t), true
	}
	return "", false
}

// Notification is the shape old callers read.
type Notification struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
	Priority  string `json:"priority"`
}

type Shim struct {
	e          Engine
	log        logx.Logger
	urgentDays int
	now        func() time.Time
}

func New(e Engine, log logx.Logger) *Shim {
	return &Shim{e: e, log: log.With(logx.Component("legacy")), urgentDays: DefaultUrgentDays, now: time.Now}
}

// ShowNotification posts a free-form notification. The title doubles as
// the dedup subject.
func (s *Shim) ShowNotification(ctx context.Context, oldType, title, message string) (*notify.Notification, error) {
	kind, ok := KindFor(oldType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", notify.ErrUnknownKind, oldType)
	}
	s.log.Debug("legacy call", logx.String("call", "ShowNotification"), logx.String("type", oldType))
	p := notify.Payload{"title": title, "message": message}
	if t := strings.TrimSpace(title); t != "" {
		p["subjectKey"] = t
	}
	return s.e.Add(ctx, kind, p)
}

// AddLowStockAlert raises CRITICAL_STOCK or LOW_STOCK with the same
// thresholds as the stock probe. Stock above the reorder level is a no-op.
func (s *Shim) AddLowStockAlert(ctx context.Context, productID, productName string, currentStock, reorderLevel int) (*notify.Notification, error) {
	critical := inventory.CriticalThreshold(reorderLevel)
	var (
		kind      string
		threshold int
	)
	switch {
	case currentStock <= critical:
		kind, threshold = notify.KindCriticalStock, critical
	case currentStock <= reorderLevel:
		kind, threshold = notify.KindLowStock, reorderLevel
	default:
		return nil, nil
	}
	return s.e.Add(ctx, kind, notify.Payload{
		"productId":    productID,
		"productName":  productName,
		"currentStock": currentStock,
		"threshold":    threshold,
	})
}

// AddExpiryAlert raises EXPIRY_URGENT within the urgent window (expired
// included) and EXPIRY_WARNING otherwise.
func (s *Shim) AddExpiryAlert(ctx context.Context, productID, productName string, expiry time.Time) (*notify.Notification, error) {
	now := s.now()
	days := inventory.DaysUntil(now, expiry)
	kind := notify.KindExpiryWarning
	if days <= s.urgentDays {
		kind = notify.KindExpiryUrgent
	}
	return s.e.Add(ctx, kind, notify.Payload{
		"productId":       productID,
		"productName":     productName,
		"expiryDate":      expiry.In(now.Location()).Format(time.DateOnly),
		"daysUntilExpiry": days,
	})
}

func (s *Shim) AddSaleNotification(ctx context.Context, saleID string, total float64, itemCount int, customerName string) (*notify.Notification, error) {
	p := notify.Payload{"saleId": saleID, "total": total, "itemCount": itemCount}
	if customerName != "" {
		p["customerName"] = customerName
	}
	return s.e.Add(ctx, notify.KindSaleCompleted, p)
}

// GetNotifications lists live notifications in display order.
func (s *Shim) GetNotifications(unreadOnly bool) ([]Notification, error) {
	ns, err := s.e.List(notify.Filter{UnreadOnly: unreadOnly})
	if err != nil {
		return nil, err
	}
	out := make([]Notification, 0, len(ns))
	for _, n := range ns {
		out = append(out, toLegacy(n))
	}
	return out, nil
}

func (s *Shim) MarkAsRead(id string) (bool, error) { return s.e.MarkRead(id) }

func (s *Shim) ClearAll() error { return s.e.ClearAll() }

func (s *Shim) GetUnreadCount() (int, error) { return s.e.UnreadCount() }

func toLegacy(n notify.Notification) Notification {
	return Notification{
		ID:        n.ID,
		Type:      strings.ToLower(n.Kind),
		Title:     n.Title,
		Message:   n.Message,
		Timestamp: n.CreatedAt.UnixMilli(),
		Read:      n.Read,
		Priority:  priorityName(n.Tier),
	}
}

func priorityName(tier int) string {
	switch tier {
	case notify.TierCritical:
		return "critical"
	case notify.TierHigh:
		return "high"
	case notify.TierMedium:
		return "medium"
	default:
		return "low"
	}
}
