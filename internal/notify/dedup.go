package notify

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// dedupGuard indexes recent notification ids by (kind, subject). The index
// only narrows the search: the store is the source of truth for whether a
// candidate still exists, is live and is inside the window.
type dedupGuard struct {
	idx *cache.Cache
}

func newDedupGuard(window time.Duration) *dedupGuard {
	return &dedupGuard{idx: cache.New(window, cleanupInterval(window))}
}

func cleanupInterval(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	return 2 * window
}

func dedupKey(kind, subject string) string { return kind + "\x00" + subject }

// duplicate reports whether a live notification with the same kind and
// subject was created in [now-window, now].
func (g *dedupGuard) duplicate(kind, subject string, now time.Time, window time.Duration, st *store) bool {
	v, ok := g.idx.Get(dedupKey(kind, subject))
	if !ok {
		return false
	}
	for _, id := range v.([]string) {
		n := st.get(id)
		if n == nil || n.Dismissed {
			continue
		}
		if !n.CreatedAt.Before(now.Add(-window)) {
			return true
		}
	}
	return false
}

// record adds n to the index, dropping ids that no longer matter.
func (g *dedupGuard) record(n Notification, window time.Duration, st *store) {
	key := dedupKey(n.Kind, n.SubjectKey())
	ids := []string{n.ID}
	if v, ok := g.idx.Get(key); ok {
		for _, id := range v.([]string) {
			if old := st.get(id); old != nil && !old.Dismissed && id != n.ID {
				ids = append(ids, id)
			}
		}
	}
	g.idx.Set(key, ids, window)
}

// rebuild reindexes every live notification still inside the window.
func (g *dedupGuard) rebuild(st *store, now time.Time, window time.Duration) {
	g.idx.Flush()
	for _, n := range st.items {
		if n.Dismissed {
			continue
		}
		left := window - now.Sub(n.CreatedAt)
		if left <= 0 {
			continue
		}
		key := dedupKey(n.Kind, n.SubjectKey())
		ids := []string{n.ID}
		if v, ok := g.idx.Get(key); ok {
			ids = append(ids, v.([]string)...)
		}
		g.idx.Set(key, ids, window)
	}
}

func (g *dedupGuard) flush() { g.idx.Flush() }
