package inventory

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxalert/internal/storage"
	logx "rxalert/pkg/logx"
)

func TestCriticalThreshold(t *testing.T) {
	tests := []struct {
		reorder int
		want    int
	}{
		{reorder: 0, want: 5},
		{reorder: 9, want: 5},
		{reorder: 10, want: 5},
		{reorder: 13, want: 6},
		{reorder: 40, want: 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CriticalThreshold(tt.reorder), "reorder=%d", tt.reorder)
	}
}

func TestDaysUntilCalendarDays(t *testing.T) {
	now := time.Date(2026, 3, 10, 23, 30, 0, 0, time.Local)
	assert.Equal(t, 0, DaysUntil(now, time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)))
	assert.Equal(t, 1, DaysUntil(now, time.Date(2026, 3, 11, 0, 5, 0, 0, time.Local)))
	assert.Equal(t, 5, DaysUntil(now, time.Date(2026, 3, 15, 12, 0, 0, 0, time.Local)))
	assert.Equal(t, -2, DaysUntil(now, time.Date(2026, 3, 8, 0, 0, 0, 0, time.Local)))
	assert.Equal(t, 31, DaysUntil(now, time.Date(2026, 4, 10, 0, 0, 0, 0, time.Local)))
}

func TestMemoryPort(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	m := NewMemory().WithClock(func() time.Time { return now })
	m.SetStock(StockLevel{ProductID: "p1", ProductName: "Amoxicillin", CurrentStock: 8, ReorderLevel: 10})
	m.SetStock(StockLevel{ProductID: "p2", ProductName: "Ibuprofen", CurrentStock: 50, ReorderLevel: 10})
	m.SetStock(StockLevel{ProductID: "p3", ProductName: "Saline", CurrentStock: 4, ReorderLevel: 0})
	m.AddBatch(Batch{BatchID: "b1", ProductID: "p1", ExpiryDate: now.AddDate(0, 0, 5), Quantity: 3})
	m.AddBatch(Batch{BatchID: "b2", ProductID: "p2", ExpiryDate: now.AddDate(0, 0, 45), Quantity: 3})
	m.AddBatch(Batch{BatchID: "b3", ProductID: "p2", ExpiryDate: now.AddDate(0, 0, 2), Quantity: 0})

	low, err := m.ListLowStockCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, "p1", low[0].ProductID)
	assert.Equal(t, "p3", low[1].ProductID)

	exp, err := m.ListExpiringBatches(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, exp, 1)
	assert.Equal(t, "b1", exp[0].BatchID)
}

func TestMemoryFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fx.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	  "products": [{"productId":"p1","productName":"Aspirin","currentStock":2,"reorderLevel":10}],
	  "batches": [{"batchId":"b1","productId":"p1","productName":"Aspirin","expiryDate":"2026-03-12","quantity":4}]
	}`), 0o600))

	m := NewMemory()
	require.NoError(t, m.LoadFixtures(path))
	assert.Equal(t, 1, m.Len())

	require.NoError(t, os.WriteFile(path, []byte(`{"batches":[{"expiryDate":"12/03/2026"}]}`), 0o600))
	assert.Error(t, NewMemory().LoadFixtures(path))
}

func seedSQLite(t *testing.T, db *sql.DB, today time.Time) {
	t.Helper()
	_, err := db.Exec(`
		CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT, stock INTEGER, reorder_level INTEGER);
		CREATE TABLE batches (id INTEGER PRIMARY KEY, product_id INTEGER, expiry_date TEXT, quantity INTEGER);`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO products VALUES (1,'Amoxicillin',8,10),(2,'Ibuprofen',50,10),(3,'Insulin',4,10)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO batches VALUES (1,1,?,10),(2,2,?,10),(3,3,?,0)`,
		today.AddDate(0, 0, 5).Format(time.DateOnly),
		today.AddDate(0, 0, 45).Format(time.DateOnly),
		today.AddDate(0, 0, 1).Format(time.DateOnly))
	require.NoError(t, err)
}

func TestSQLitePort(t *testing.T) {
	db, err := storage.OpenSQLiteDB(filepath.Join(t.TempDir(), "pharmacy.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	today := time.Date(2026, 3, 10, 14, 0, 0, 0, time.Local)
	seedSQLite(t, db, today)
	p := NewSQLite(db)
	p.now = func() time.Time { return today }

	low, err := p.ListLowStockCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, low, 2)
	assert.Equal(t, StockLevel{ProductID: "1", ProductName: "Amoxicillin", CurrentStock: 8, ReorderLevel: 10}, low[0])
	assert.Equal(t, "3", low[1].ProductID)

	exp, err := p.ListExpiringBatches(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, exp, 1)
	assert.Equal(t, "Amoxicillin", exp[0].ProductName)
	assert.Equal(t, 5, DaysUntil(today, exp[0].ExpiryDate))
}

func TestOpen(t *testing.T) {
	p, closeFn, err := Open(Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.NoError(t, closeFn())

	_, _, err = Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
}
