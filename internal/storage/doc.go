// Package storage provides key-scoped persistence slots.
//
// A Slot holds one opaque blob under a fixed key. The notification engine
// writes its whole snapshot to a slot on every change and reads it back on
// start. Drivers:
//   - "file": one JSON file, replaced atomically (tmp + rename)
//   - "sqlite": a row in the slots table of a SQLite database
//   - "redis": a string key
//   - "memory": process-local, for tests and dry runs
//
// "none" (or empty) disables persistence.
package storage
