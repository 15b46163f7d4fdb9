package notify

import "sort"

// store is the id-addressed collection. It does no I/O and no locking; the
// engine serializes access.
type store struct {
	items map[string]*Notification
}

func newStore() *store { return &store{items: map[string]*Notification{}} }

func (s *store) insert(n Notification) {
	cp := n.clone()
	s.items[n.ID] = &cp
}

func (s *store) get(id string) *Notification { return s.items[id] }

func (s *store) has(id string) bool {
	_, ok := s.items[id]
	return ok
}

func (s *store) remove(id string) (Notification, bool) {
	n, ok := s.items[id]
	if !ok {
		return Notification{}, false
	}
	delete(s.items, id)
	return *n, true
}

func (s *store) reset() { s.items = map[string]*Notification{} }

func (s *store) len() int { return len(s.items) }

// list returns sorted copies of the notifications matching f.
func (s *store) list(f Filter) []Notification {
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if f.match(*n) {
			out = append(out, n.clone())
		}
	}
	sortNotifications(out)
	return out
}

func (s *store) unread() int {
	c := 0
	for _, n := range s.items {
		if !n.Read && !n.Dismissed {
			c++
		}
	}
	return c
}

// durable returns what belongs in the persisted snapshot: everything except
// dismissed transient notifications, in display order.
func (s *store) durable() []Notification {
	out := make([]Notification, 0, len(s.items))
	for _, n := range s.items {
		if n.Dismissed && !n.Persistent {
			continue
		}
		out = append(out, n.clone())
	}
	sortNotifications(out)
	return out
}

// evictionOrder sorts the first entries to drop to the front: dismissed
// before live, lowest priority (highest tier) first, then oldest, then id.
func (s *store) evictionOrder() []*Notification {
	out := make([]*Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Dismissed != b.Dismissed {
			return a.Dismissed
		}
		if a.Tier != b.Tier {
			return a.Tier > b.Tier
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
