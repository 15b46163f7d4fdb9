package legacy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

func newShim(t *testing.T) (*Shim, *notify.Engine) {
	t.Helper()
	cfg := notify.DefaultConfig()
	cfg.DisableProbes = true
	e := notify.New(cfg, notify.Deps{Logger: logx.Nop()})
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return New(e, logx.Nop()), e
}

func TestKindFor(t *testing.T) {
	for old, want := range map[string]string{
		"low_stock":     notify.KindLowStock,
		"Expired":       notify.KindExpiryUrgent,
		"success":       notify.KindSystemInfo,
		"error":         notify.KindSystemError,
		"EXPIRY_URGENT": notify.KindExpiryUrgent,
		"test":          notify.KindTest,
	} {
		got, ok := KindFor(old)
		assert.True(t, ok, old)
		assert.Equal(t, want, got, old)
	}
	_, ok := KindFor("confetti")
	assert.False(t, ok)
}

func TestShowNotification(t *testing.T) {
	s, _ := newShim(t)
	ctx := context.Background()

	n, err := s.ShowNotification(ctx, "success", "Backup finished", "All data saved.")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, notify.KindSystemInfo, n.Kind)
	assert.Equal(t, "Backup finished", n.Title)
	assert.Equal(t, "All data saved.", n.Message)

	other, err := s.ShowNotification(ctx, "success", "Sync finished", "Done.")
	require.NoError(t, err)
	assert.NotNil(t, other, "different titles are different subjects")

	_, err = s.ShowNotification(ctx, "confetti", "x", "y")
	assert.ErrorIs(t, err, notify.ErrUnknownKind)
}

func TestAddLowStockAlert(t *testing.T) {
	s, _ := newShim(t)
	ctx := context.Background()

	n, err := s.AddLowStockAlert(ctx, "p1", "Aspirin", 8, 10)
	require.NoError(t, err)
	assert.Equal(t, notify.KindLowStock, n.Kind)

	n, err = s.AddLowStockAlert(ctx, "p1", "Aspirin", 4, 10)
	require.NoError(t, err)
	assert.Equal(t, notify.KindCriticalStock, n.Kind)

	n, err = s.AddLowStockAlert(ctx, "p2", "Saline", 50, 10)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestAddExpiryAlert(t *testing.T) {
	s, _ := newShim(t)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	n, err := s.AddExpiryAlert(ctx, "p1", "Insulin", now.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, notify.KindExpiryUrgent, n.Kind)
	assert.Equal(t, "2026-03-15", n.Payload["expiryDate"])

	n, err = s.AddExpiryAlert(ctx, "p2", "Saline", now.AddDate(0, 0, 20))
	require.NoError(t, err)
	assert.Equal(t, notify.KindExpiryWarning, n.Kind)
}

func TestReadShapeAndCounters(t *testing.T) {
	s, _ := newShim(t)
	ctx := context.Background()

	sale, err := s.AddSaleNotification(ctx, "S-9", 42.5, 2, "")
	require.NoError(t, err)
	_, err = s.AddLowStockAlert(ctx, "p1", "Aspirin", 2, 10)
	require.NoError(t, err)

	list, err := s.GetNotifications(false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "critical_stock", list[0].Type)
	assert.Equal(t, "critical", list[0].Priority)
	assert.Equal(t, "sale_completed", list[1].Type)
	assert.Equal(t, "low", list[1].Priority)
	assert.Equal(t, sale.CreatedAt.UnixMilli(), list[1].Timestamp)

	ok, err := s.MarkAsRead(sale.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	count, err := s.GetUnreadCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unread, err := s.GetNotifications(true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	require.NoError(t, s.ClearAll())
	count, err = s.GetUnreadCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}
