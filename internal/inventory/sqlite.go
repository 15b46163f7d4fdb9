package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rxalert/internal/storage"
)

// SQLite reads the host application's products and batches tables:
//
//	products(id, name, stock, reorder_level)
//	batches(id, product_id, expiry_date TEXT 'YYYY-MM-DD', quantity)
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLite(path string, busyTimeout time.Duration) (*SQLite, error) {
	db, err := storage.OpenSQLiteDB(path, busyTimeout)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}
	return NewSQLite(db), nil
}

func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) ListLowStockCandidates(ctx context.Context) ([]StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(id AS TEXT), name, stock, reorder_level
		FROM products
		WHERE stock <= MAX(reorder_level, ?)
		ORDER BY id`, MinCriticalStock)
	if err != nil {
		return nil, fmt.Errorf("query low stock: %w", err)
	}
	defer rows.Close()

	var out []StockLevel
	for rows.Next() {
		var p StockLevel
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.CurrentStock, &p.ReorderLevel); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) ListExpiringBatches(ctx context.Context, withinDays int) ([]Batch, error) {
	now := s.now()
	cutoff := midnight(now).AddDate(0, 0, withinDays).Format(time.DateOnly)
	rows, err := s.db.QueryContext(ctx, `
		SELECT CAST(b.id AS TEXT), CAST(b.product_id AS TEXT), p.name, b.expiry_date, b.quantity
		FROM batches b
		JOIN products p ON p.id = b.product_id
		WHERE b.quantity > 0 AND b.expiry_date <= ?
		ORDER BY b.expiry_date, b.id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query expiring batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b   Batch
			raw string
		)
		if err := rows.Scan(&b.BatchID, &b.ProductID, &b.ProductName, &raw, &b.Quantity); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		// Tolerate full timestamps; only the date part matters.
		if len(raw) > len(time.DateOnly) {
			raw = raw[:len(time.DateOnly)]
		}
		exp, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(raw), now.Location())
		if err != nil {
			return nil, fmt.Errorf("batch %s: expiry_date %q: %w", b.BatchID, raw, err)
		}
		b.ExpiryDate = exp
		out = append(out, b)
	}
	return out, rows.Err()
}
