package notify

import (
	"sort"
	"strings"
)

// Kind identifiers.
const (
	KindCriticalStock = "CRITICAL_STOCK"
	KindExpiryUrgent  = "EXPIRY_URGENT"
	KindSystemError   = "SYSTEM_ERROR"
	KindLowStock      = "LOW_STOCK"
	KindExpiryWarning = "EXPIRY_WARNING"
	KindSaleCompleted = "SALE_COMPLETED"
	KindSystemInfo    = "SYSTEM_INFO"
	KindTest          = "TEST"
)

// Tiers, 1 is most urgent.
const (
	TierCritical = 1
	TierHigh     = 2
	TierMedium   = 3
	TierLow      = 4
)

type Action struct {
	Label  string `json:"label"`
	Target string `json:"target"`
}

// RenderHints are presentation metadata copied onto each notification.
type RenderHints struct {
	Icon   string  `json:"icon"`
	Color  string  `json:"color"`
	Action *Action `json:"action,omitempty"`
}

// Kind is a registry entry.
type Kind struct {
	ID         string
	Tier       int
	Persistent bool
	Render     RenderHints
}

// Registry is the immutable kind table.
type Registry struct {
	kinds map[string]Kind
}

func NewRegistry(kinds ...Kind) *Registry {
	r := &Registry{kinds: make(map[string]Kind, len(kinds))}
	for _, k := range kinds {
		r.kinds[k.ID] = k
	}
	return r
}

// DefaultRegistry holds the pharmacy kinds.
func DefaultRegistry() *Registry {
	inventory := &Action{Label: "View inventory", Target: "/inventory"}
	expiring := &Action{Label: "View batches", Target: "/inventory/expiring"}
	return NewRegistry(
		Kind{ID: KindCriticalStock, Tier: TierCritical, Persistent: true, Render: RenderHints{Icon: "alert-triangle", Color: "red", Action: inventory}},
		Kind{ID: KindExpiryUrgent, Tier: TierCritical, Persistent: true, Render: RenderHints{Icon: "clock", Color: "red", Action: expiring}},
		Kind{ID: KindSystemError, Tier: TierCritical, Persistent: true, Render: RenderHints{Icon: "x-circle", Color: "red"}},
		Kind{ID: KindLowStock, Tier: TierHigh, Persistent: true, Render: RenderHints{Icon: "package", Color: "orange", Action: &Action{Label: "Reorder", Target: "/inventory"}}},
		Kind{ID: KindExpiryWarning, Tier: TierMedium, Persistent: true, Render: RenderHints{Icon: "calendar", Color: "yellow", Action: expiring}},
		Kind{ID: KindSaleCompleted, Tier: TierLow, Persistent: false, Render: RenderHints{Icon: "shopping-cart", Color: "green", Action: &Action{Label: "View sale", Target: "/sales"}}},
		Kind{ID: KindSystemInfo, Tier: TierLow, Persistent: false, Render: RenderHints{Icon: "info", Color: "blue"}},
		Kind{ID: KindTest, Tier: TierLow, Persistent: false, Render: RenderHints{Icon: "bell", Color: "gray"}},
	)
}

// Lookup is case-insensitive on the kind id.
func (r *Registry) Lookup(id string) (Kind, bool) {
	k, ok := r.kinds[strings.ToUpper(strings.TrimSpace(id))]
	return k, ok
}

// IDs lists registered kinds by tier, then id.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.kinds))
	for id := range r.kinds {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := r.kinds[out[i]], r.kinds[out[j]]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.ID < b.ID
	})
	return out
}
