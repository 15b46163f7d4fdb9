package storage

import (
	"context"
	"sync"
)

// Memory is a process-local Slot. Saves counts successful writes.
type Memory struct {
	mu     sync.Mutex
	data   []byte
	saves  int
	closed bool

	// FailSave, when set, is returned by Save instead of storing.
	FailSave error
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) ([]byte, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.data == nil {
		return nil, nil
	}
	return append([]byte(nil), m.data...), nil
}

func (m *Memory) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.FailSave != nil {
		return m.FailSave
	}
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	_ = ctx
	m.mu.Lock()
	m.data = nil
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Saves reports how many writes reached the slot.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Set replaces the stored blob directly.
func (m *Memory) Set(data []byte) {
	m.mu.Lock()
	m.data = data
	m.mu.Unlock()
}
