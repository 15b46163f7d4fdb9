package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Port backed by fixtures.
type Memory struct {
	mu       sync.Mutex
	products map[string]StockLevel
	batches  []Batch
	now      func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

func NewMemory() *Memory {
	return &Memory{products: map[string]StockLevel{}, now: time.Now}
}

// WithClock replaces the clock used for expiry windows.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

func (m *Memory) SetStock(s StockLevel) {
	m.mu.Lock()
	m.products[s.ProductID] = s
	m.mu.Unlock()
}

func (m *Memory) AddBatch(b Batch) {
	m.mu.Lock()
	m.batches = append(m.batches, b)
	m.mu.Unlock()
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.products)
}

type fixtures struct {
	Products []StockLevel `json:"products"`
	Batches  []struct {
		BatchID     string `json:"batchId"`
		ProductID   string `json:"productId"`
		ProductName string `json:"productName"`
		ExpiryDate  string `json:"expiryDate"`
		Quantity    int    `json:"quantity"`
	} `json:"batches"`
}

// LoadFixtures reads products and batches from a JSON file. Expiry dates use
// the YYYY-MM-DD layout.
func (m *Memory) LoadFixtures(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("inventory fixtures: %w", err)
	}
	var fx fixtures
	if err := json.Unmarshal(b, &fx); err != nil {
		return fmt.Errorf("inventory fixtures %s: %w", path, err)
	}
	for _, p := range fx.Products {
		m.SetStock(p)
	}
	for i, raw := range fx.Batches {
		exp, err := time.ParseInLocation(time.DateOnly, raw.ExpiryDate, time.Local)
		if err != nil {
			return fmt.Errorf("inventory fixtures %s: batches[%d].expiryDate: %w", path, i, err)
		}
		m.AddBatch(Batch{BatchID: raw.BatchID, ProductID: raw.ProductID, ProductName: raw.ProductName, ExpiryDate: exp, Quantity: raw.Quantity})
	}
	return nil
}

func (m *Memory) ListLowStockCandidates(ctx context.Context) ([]StockLevel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]StockLevel, 0)
	for _, p := range m.products {
		if p.CurrentStock <= max(p.ReorderLevel, MinCriticalStock) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (m *Memory) ListExpiringBatches(ctx context.Context, withinDays int) ([]Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	now := m.now()
	out := make([]Batch, 0)
	for _, b := range m.batches {
		if b.Quantity <= 0 {
			continue
		}
		if DaysUntil(now, b.ExpiryDate) <= withinDays {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiryDate.Before(out[j].ExpiryDate) })
	return out, nil
}
