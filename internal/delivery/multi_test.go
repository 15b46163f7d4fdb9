package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxalert/internal/notify"
	logx "rxalert/pkg/logx"
)

func TestMultiSend(t *testing.T) {
	a := &fakeChannel{name: "a"}
	b := &fakeChannel{name: "b", failAll: true}
	m := NewMulti(logx.Nop(), a, b)
	assert.Equal(t, "a+b", m.Name())

	require.NoError(t, m.Send(context.Background(), notify.Notification{ID: "x"}), "partial success")
	assert.Equal(t, []string{"x"}, a.sentIDs())

	a.failAll = true
	err := m.Send(context.Background(), notify.Notification{ID: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 errors occurred")

	require.NoError(t, m.Close())
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
}

func TestMultiProbe(t *testing.T) {
	g := &fakeChannel{perm: notify.PermissionGranted}
	d := &fakeChannel{perm: notify.PermissionDenied}
	u := &fakeChannel{perm: notify.PermissionUndetermined}
	ctx := context.Background()
	assert.Equal(t, notify.PermissionGranted, NewMulti(logx.Nop(), d, g).Probe(ctx))
	assert.Equal(t, notify.PermissionDenied, NewMulti(logx.Nop(), d, d).Probe(ctx))
	assert.Equal(t, notify.PermissionUndetermined, NewMulti(logx.Nop(), d, u).Probe(ctx))
	assert.Equal(t, notify.PermissionDenied, NewMulti(logx.Nop()).Probe(ctx))
}

func TestOpenChannel(t *testing.T) {
	ch, err := OpenChannel(Options{}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, ch)

	ch, err = OpenChannel(Options{Sinks: []string{"Desktop", "desktop"}, AutoDismiss: 3 * time.Second}, logx.Nop())
	require.NoError(t, err)
	desk, ok := ch.(*Desktop)
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, desk.cfg.AutoDismiss)

	_, err = OpenChannel(Options{Sinks: []string{"pager"}}, logx.Nop())
	assert.ErrorContains(t, err, `unknown sink "pager"`)

	_, err = OpenChannel(Options{Sinks: []string{"desktop", "telegram"}}, logx.Nop())
	assert.ErrorContains(t, err, "telegram sink")
}
