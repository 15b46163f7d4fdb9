package notify

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification is one alert. Values handed out by the engine are copies.
type Notification struct {
	ID         string      `json:"id"`
	Kind       string      `json:"kind"`
	Title      string      `json:"title"`
	Message    string      `json:"message"`
	CreatedAt  time.Time   `json:"createdAt"`
	Tier       int         `json:"priorityTier"`
	Persistent bool        `json:"persistent"`
	Read       bool        `json:"isRead"`
	Dismissed  bool        `json:"isDismissed"`
	Payload    Payload     `json:"payload"`
	Render     RenderHints `json:"renderHints"`
}

// SubjectKey is the dedup subject of n.
func (n Notification) SubjectKey() string { return n.Payload.SubjectKey() }

func (n Notification) clone() Notification {
	cp := n
	if n.Payload != nil {
		cp.Payload = make(Payload, len(n.Payload))
		for k, v := range n.Payload {
			cp.Payload[k] = v
		}
	}
	if n.Render.Action != nil {
		a := *n.Render.Action
		cp.Render.Action = &a
	}
	return cp
}

// newID builds <kind>_<subject>_<unix ms>_<random>.
func newID(kind, subject string, created time.Time) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(kind))
	b.WriteByte('_')
	b.WriteString(idSafe(subject))
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(created.UnixMilli(), 10))
	b.WriteByte('_')
	b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return b.String()
}

func idSafe(s string) string {
	if s == "" {
		return "general"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, s)
}

// less is the display order: tier ascending, newest first, then id.
func less(a, b Notification) bool {
	if a.Tier != b.Tier {
		return a.Tier < b.Tier
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortNotifications(ns []Notification) {
	sort.Slice(ns, func(i, j int) bool { return less(ns[i], ns[j]) })
}

// Filter narrows List. The zero value lists every non-dismissed notification.
type Filter struct {
	Kind             string
	UnreadOnly       bool
	MaxTier          int // 0 means no limit
	IncludeDismissed bool
}

func (f Filter) match(n Notification) bool {
	if n.Dismissed && !f.IncludeDismissed {
		return false
	}
	if f.UnreadOnly && n.Read {
		return false
	}
	if f.Kind != "" && !strings.EqualFold(f.Kind, n.Kind) {
		return false
	}
	if f.MaxTier > 0 && n.Tier > f.MaxTier {
		return false
	}
	return true
}

type EventType string

const (
	EventAdded     EventType = "added"
	EventRead      EventType = "read"
	EventDismissed EventType = "dismissed"
	EventCleared   EventType = "cleared"
	// EventPruned reports a notification removed by retention or the cap.
	EventPruned EventType = "pruned"
)

// Event is what observers receive. Notification is empty for EventCleared.
type Event struct {
	Type         EventType
	Notification Notification
}

type Observer func(Event)
