package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage slot closed")
)

// DefaultKey is the slot key used when none is configured.
const DefaultKey = "pharmacy_notifications"

// Config configures the persistence slot.
type Config struct {
	Driver      string
	Path        string        // file and sqlite
	Key         string        // slot key; DefaultKey when empty
	BusyTimeout time.Duration // sqlite only; 0 means default
	Redis       RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Slot stores a single blob. Load returns (nil, nil) when nothing has been
// saved yet.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Clear(ctx context.Context) error
	Close() error
}
