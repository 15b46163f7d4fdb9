package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxalert/internal/inventory"
	"rxalert/internal/storage"
	logx "rxalert/pkg/logx"
)

func kindsOf(t *testing.T, e *Engine) map[string]Notification {
	t.Helper()
	list, err := e.List(Filter{})
	require.NoError(t, err)
	out := map[string]Notification{}
	for _, n := range list {
		out[n.Kind+"/"+n.SubjectKey()] = n
	}
	return out
}

func TestStockProbeScenario(t *testing.T) {
	env := newTestEnv(t, noProbes())
	ctx := context.Background()
	env.inv.SetStock(inventory.StockLevel{ProductID: "p1", ProductName: "Amoxicillin", CurrentStock: 8, ReorderLevel: 10})
	env.inv.SetStock(inventory.StockLevel{ProductID: "p2", ProductName: "Ibuprofen", CurrentStock: 40, ReorderLevel: 10})

	require.NoError(t, env.engine.RunChecks(ctx))
	got := kindsOf(t, env.engine)
	require.Len(t, got, 1)
	low := got[KindLowStock+"/p1"]
	assert.Equal(t, float64(10), low.Payload["threshold"])
	assert.Equal(t, float64(8), low.Payload["currentStock"])
	assert.Equal(t, "Amoxicillin", low.Payload["productName"])

	// A repeated scan inside the window adds nothing.
	require.NoError(t, env.engine.RunChecks(ctx))
	assert.Len(t, kindsOf(t, env.engine), 1)

	env.inv.SetStock(inventory.StockLevel{ProductID: "p1", ProductName: "Amoxicillin", CurrentStock: 4, ReorderLevel: 10})
	require.NoError(t, env.engine.RunChecks(ctx))
	got = kindsOf(t, env.engine)
	crit, ok := got[KindCriticalStock+"/p1"]
	require.True(t, ok)
	assert.Equal(t, float64(5), crit.Payload["threshold"])
	assert.Equal(t, "Critical stock: Amoxicillin", crit.Title)
}

func TestExpiryProbeScenario(t *testing.T) {
	env := newTestEnv(t, noProbes())
	now := env.clock.Now()
	env.inv.AddBatch(inventory.Batch{BatchID: "b1", ProductID: "p1", ProductName: "Insulin", ExpiryDate: now.AddDate(0, 0, 5), Quantity: 3})
	env.inv.AddBatch(inventory.Batch{BatchID: "b2", ProductID: "p2", ProductName: "Saline", ExpiryDate: now.AddDate(0, 0, 20), Quantity: 3})
	env.inv.AddBatch(inventory.Batch{BatchID: "b3", ProductID: "p3", ProductName: "Aspirin", ExpiryDate: now.AddDate(0, 0, 45), Quantity: 3})
	env.inv.AddBatch(inventory.Batch{BatchID: "b4", ProductID: "p4", ProductName: "Vitamin C", ExpiryDate: now.AddDate(0, 0, -1), Quantity: 3})

	require.NoError(t, env.engine.RunChecks(context.Background()))
	got := kindsOf(t, env.engine)
	require.Len(t, got, 3)

	urgent := got[KindExpiryUrgent+"/p1"]
	assert.Equal(t, float64(5), urgent.Payload["daysUntilExpiry"])
	assert.Equal(t, now.AddDate(0, 0, 5).Format(time.DateOnly), urgent.Payload["expiryDate"])
	assert.Equal(t, "A batch of Insulin expires in 5 days ("+now.AddDate(0, 0, 5).Format(time.DateOnly)+").", urgent.Message)

	warn := got[KindExpiryWarning+"/p2"]
	assert.Equal(t, float64(20), warn.Payload["daysUntilExpiry"])

	expired := got[KindExpiryUrgent+"/p4"]
	assert.Equal(t, float64(-1), expired.Payload["daysUntilExpiry"])

	_, found := got[KindExpiryWarning+"/p3"]
	assert.False(t, found)
}

func TestProbeFailureIsReported(t *testing.T) {
	env := newTestEnv(t, noProbes())
	env.inv.Err = errors.New("database is locked")

	err := env.engine.RunChecks(context.Background())
	assert.ErrorIs(t, err, ErrProbe)
	assert.ErrorContains(t, err, "database is locked")

	list, lerr := env.engine.List(Filter{})
	require.NoError(t, lerr)
	assert.Empty(t, list)
}

func TestRunChecksWithoutInventory(t *testing.T) {
	e := New(noProbes(), Deps{Logger: logx.Nop()})
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	assert.ErrorIs(t, e.RunChecks(context.Background()), ErrProbe)
}

func TestStaleProbeResultsAreDiscarded(t *testing.T) {
	env := newTestEnv(t, noProbes())
	ctx := context.Background()
	env.inv.SetStock(inventory.StockLevel{ProductID: "p1", CurrentStock: 1, ReorderLevel: 10})

	env.engine.mu.Lock()
	stale := env.engine.epoch
	env.engine.mu.Unlock()

	require.NoError(t, env.engine.Shutdown(ctx))
	require.NoError(t, env.engine.runStockProbe(ctx, stale), "discarded after shutdown")

	require.NoError(t, env.engine.Initialize(ctx))
	require.NoError(t, env.engine.runStockProbe(ctx, stale), "discarded after re-initialize")
	list, err := env.engine.List(Filter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestScheduledProbesFireOnStart(t *testing.T) {
	clock := newFakeClock()
	inv := inventory.NewMemory().WithClock(clock.Now)
	inv.SetStock(inventory.StockLevel{ProductID: "p1", ProductName: "Insulin", CurrentStock: 2, ReorderLevel: 10})
	inv.AddBatch(inventory.Batch{BatchID: "b1", ProductID: "p2", ExpiryDate: clock.Now().AddDate(0, 0, 3), Quantity: 1})

	e := New(DefaultConfig(), Deps{Slot: storage.NewMemory(), Inventory: inv, Clock: clock.Now, Logger: logx.Nop()})
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	assert.Eventually(t, func() bool {
		n, err := e.UnreadCount()
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	jobs := e.Stats().Jobs
	require.Len(t, jobs, 3)
	assert.Equal(t, JobExpiryProbe, jobs[0].Name)
	assert.Equal(t, "@every 15m0s", jobs[0].Spec)
	assert.Equal(t, JobStockProbe, jobs[1].Name)
	assert.Equal(t, JobRetentionSweep, jobs[2].Name)
	assert.Equal(t, "@daily", jobs[2].Spec)
}
