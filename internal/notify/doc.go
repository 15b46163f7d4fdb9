// Package notify is the pharmacy notification engine.
//
// The Engine accepts notifications from callers and from its own health
// probes, drops duplicates inside a trailing window, keeps them ordered by
// priority tier, persists a bounded snapshot to a storage slot and fans
// every state change out to observers. Delivery to the desktop or chat is
// best effort and never affects engine state.
//
// All engine state sits behind one mutex. Observers run synchronously once
// the mutex is released, one operation at a time and in commit order. They
// may call the read methods (List, Get, UnreadCount, Stats) but must not
// mutate the engine from inside a callback.
package notify
