// Package inventory is the read-only port the health probes use to look at
// the host application's stock and batch data.
package inventory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	logx "rxalert/pkg/logx"
)

// MinCriticalStock is the floor of the critical stock threshold. Products
// at or below it are candidates regardless of their reorder level.
const MinCriticalStock = 5

// StockLevel is one product's current stock against its reorder level.
type StockLevel struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	CurrentStock int    `json:"currentStock"`
	ReorderLevel int    `json:"reorderLevel"`
}

// Batch is a received lot of a product with an expiry date.
type Batch struct {
	BatchID     string    `json:"batchId"`
	ProductID   string    `json:"productId"`
	ProductName string    `json:"productName"`
	ExpiryDate  time.Time `json:"expiryDate"`
	Quantity    int       `json:"quantity"`
}

type Port interface {
	// ListLowStockCandidates returns products whose stock is at or below
	// max(reorder level, MinCriticalStock).
	ListLowStockCandidates(ctx context.Context) ([]StockLevel, error)
	// ListExpiringBatches returns in-stock batches expiring within the given
	// number of calendar days, including already expired ones.
	ListExpiringBatches(ctx context.Context, withinDays int) ([]Batch, error)
}

// CriticalThreshold is max(floor(reorder*0.5), MinCriticalStock).
func CriticalThreshold(reorderLevel int) int {
	return max(reorderLevel/2, MinCriticalStock)
}

// DaysUntil counts whole calendar days from now to expiry, comparing local
// midnights. Negative values mean the batch has already expired.
func DaysUntil(now, expiry time.Time) int {
	loc := now.Location()
	a := midnight(now)
	b := midnight(expiry.In(loc))
	// Round to absorb DST shifts of one hour.
	return int(math.Round(b.Sub(a).Hours() / 24))
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

type Config struct {
	Driver      string // "sqlite", "memory" or "none"
	Path        string // sqlite database of the host application
	Fixtures    string // memory driver: optional JSON fixtures file
	BusyTimeout time.Duration
}

// Open builds the configured port. It returns (nil, nil) when probes have
// no inventory to read.
func Open(cfg Config, log logx.Logger) (Port, func() error, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return nil, func() error { return nil }, nil
	case "sqlite", "sqlite3":
		p, err := OpenSQLite(cfg.Path, cfg.BusyTimeout)
		if err != nil {
			return nil, nil, err
		}
		log.Info("inventory opened", logx.String("driver", "sqlite"), logx.String("path", cfg.Path))
		return p, p.Close, nil
	case "memory", "mem":
		m := NewMemory()
		if strings.TrimSpace(cfg.Fixtures) != "" {
			if err := m.LoadFixtures(cfg.Fixtures); err != nil {
				return nil, nil, err
			}
		}
		log.Info("inventory opened", logx.String("driver", "memory"), logx.Int("products", m.Len()))
		return m, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown inventory driver: %s", cfg.Driver)
	}
}
