package notify

import logx "rxalert/pkg/logx"

// Sweep applies the retention rules now and returns how many notifications
// were removed. It is a no-op before Initialize.
//
// Rules, in order:
//   - dismissed transient notifications go immediately
//   - dismissed persistent ones go once older than the retention age
//   - the store is then capped at MaxRetained (see capLocked)
func (e *Engine) Sweep() int {
	e.mu.Lock()
	if !e.initialized {
		e.mu.Unlock()
		return 0
	}
	now := e.now()
	var removed []Notification
	for id, n := range e.store.items {
		if !n.Dismissed {
			continue
		}
		if !n.Persistent || now.Sub(n.CreatedAt) >= e.cfg.RetentionAge {
			removed = append(removed, *n)
			delete(e.store.items, id)
		}
	}
	removed = append(removed, e.capLocked()...)
	if len(removed) > 0 {
		e.saveLocked()
	}
	total, unread := e.store.len(), e.store.unread()
	turn := e.fan.ticket()
	e.mu.Unlock()

	sortNotifications(removed)
	e.rec.StoreSize(total, unread)
	e.fan.run(turn, func() { e.publishPruned(removed) })
	if len(removed) > 0 {
		e.log.Info("retention sweep", logx.Int("removed", len(removed)), logx.Int("remaining", total))
	}
	return len(removed)
}

// capLocked evicts down to MaxRetained: dismissed first, then the lowest
// priority, then the oldest.
func (e *Engine) capLocked() []Notification {
	over := e.store.len() - e.cfg.MaxRetained
	if over <= 0 {
		return nil
	}
	order := e.store.evictionOrder()
	out := make([]Notification, 0, over)
	for _, n := range order[:over] {
		if gone, ok := e.store.remove(n.ID); ok {
			out = append(out, gone)
		}
	}
	return out
}
