package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxalert/internal/config"
	"rxalert/internal/notify"
	"rxalert/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Logging: config.LoggingConfig{Level: "error"},
		Engine:  config.EngineConfig{DisableProbes: true},
		Storage: config.StorageConfig{Driver: "file", Path: t.TempDir()},
	}
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))
}

func TestOpenPersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := NewApp("", WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, a.Open(ctx))

	n, err := a.Engine().Add(ctx, notify.KindLowStock, notify.Payload{
		"productId": "p1", "productName": "Amoxicillin", "currentStock": 8, "reorderLevel": 10,
	})
	require.NoError(t, err)
	require.NotNil(t, n)
	stopApp(t, a)

	b, err := NewApp("", WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, b.Open(ctx))
	defer stopApp(t, b)

	got, ok, err := b.Engine().Get(n.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, notify.KindLowStock, got.Kind)
	assert.Equal(t, n.Title, got.Title)
}

func TestHealthAndStatus(t *testing.T) {
	a, err := NewApp("", WithConfig(testConfig(t)))
	require.NoError(t, err)

	assert.ErrorIs(t, a.health(context.Background()), errNotReady)

	require.NoError(t, a.Open(context.Background()))
	defer stopApp(t, a)

	assert.NoError(t, a.health(context.Background()))
	st := a.Status()
	assert.True(t, st.Engine.Initialized)
	assert.Nil(t, st.Delivery, "no sinks configured")
	assert.Equal(t, notify.PermissionDenied, st.Engine.Permission)
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.ExpiryWindowDays = 10
	cfg.Engine.UrgentExpiryDays = 20
	_, err := NewApp("", WithConfig(cfg))
	require.Error(t, err)

	cfg = testConfig(t)
	cfg.Delivery.Sinks = []string{"pager"}
	_, err = NewApp("", WithConfig(cfg))
	require.Error(t, err)
}

func TestNewAppFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rxalert.yaml")
	body := "logging:\n  level: warn\nengine:\n  max_retained: 20\n  disable_probes: true\nstorage:\n  driver: memory\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	a, err := NewApp(path)
	require.NoError(t, err)
	defer stopApp(t, a)
	assert.Equal(t, 20, a.Config().Engine.MaxRetained)
	assert.Equal(t, "memory", a.Config().Storage.Driver)
}

func TestApplyConfigShrinksRetention(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	a, err := NewApp("", WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, a.Open(ctx))
	defer stopApp(t, a)

	for _, subject := range []string{"backup", "sync", "report"} {
		_, err := a.Engine().Add(ctx, notify.KindSystemInfo, notify.Payload{"subjectKey": subject, "message": subject + " done"})
		require.NoError(t, err)
	}

	next := *cfg
	next.Engine.MaxRetained = 2
	a.applyConfig(ctx, cfg, &next)

	list, err := a.Engine().List(notify.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestWithoutProbesSurvivesReload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.DisableProbes = false
	a, err := NewApp("", WithConfig(cfg), WithoutProbes())
	require.NoError(t, err)
	require.NoError(t, a.Open(context.Background()))
	defer stopApp(t, a)

	for _, j := range a.Engine().Stats().Jobs {
		assert.NotContains(t, j.Name, "probe.")
	}

	next := *cfg
	next.Engine.ScanIntervalSeconds = 60
	a.applyConfig(context.Background(), cfg, &next)
	for _, j := range a.Engine().Stats().Jobs {
		assert.NotContains(t, j.Name, "probe.")
	}
}

func TestMapEngineConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine = config.EngineConfig{
		DedupWindowSeconds: 60,
		RetentionSeconds:   3600,
		ProbeTimeout:       "10s",
		Timezone:           "UTC",
	}
	nc, err := mapEngineConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, nc.DedupWindow)
	assert.Equal(t, time.Hour, nc.RetentionAge)
	assert.Equal(t, 10*time.Second, nc.ProbeTimeout)
	assert.Equal(t, time.UTC, nc.Location)

	cfg.Engine.ProbeTimeout = "soon"
	_, err = mapEngineConfig(cfg)
	require.Error(t, err)
}

type stuckSlot struct{ *storage.Memory }

func (stuckSlot) Close() error { return errors.New("disk busy") }

func TestCloseResourcesReportsEveryFailure(t *testing.T) {
	a := &App{
		slot:     stuckSlot{storage.NewMemory()},
		invClose: func() error { return errors.New("db locked") },
	}
	err := a.closeResources()
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
	assert.ErrorContains(t, err, "storage: disk busy")
	assert.ErrorContains(t, err, "inventory: db locked")

	assert.NoError(t, a.closeResources(), "resources are released once")
}
