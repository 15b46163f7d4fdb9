package storage

import (
	"fmt"
	"strings"

	logx "rxalert/pkg/logx"
)

// Open initializes the configured slot. It returns (nil, nil) when
// persistence is disabled.
func Open(cfg Config, log logx.Logger) (Slot, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = DefaultKey
	}
	log = log.With(logx.String("driver", driver), logx.String("key", cfg.Key))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
