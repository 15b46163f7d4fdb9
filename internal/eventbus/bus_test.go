package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "rxalert/pkg/logx"
)

func TestPublishInRegistrationOrder(t *testing.T) {
	b := New[int](logx.Nop())
	var got []string
	b.Subscribe(func(v int) { got = append(got, "a") })
	b.Subscribe(func(v int) { got = append(got, "b") })
	b.Subscribe(func(v int) { got = append(got, "c") })

	b.Publish(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	b := New[string](logx.Nop())
	var after int
	b.Subscribe(func(string) { panic("observer bug") })
	b.Subscribe(func(string) { after++ })

	failed := b.Publish("x")
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, after)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New[int](logx.Nop())
	var calls int
	unsub := b.Subscribe(func(int) { calls++ })
	other := b.Subscribe(func(int) {})
	require.Equal(t, 2, b.Len())

	unsub()
	unsub()
	assert.Equal(t, 1, b.Len())
	b.Publish(0)
	assert.Zero(t, calls)

	other()
	assert.Zero(t, b.Len())
}

func TestSubscribeDuringPublishAppliesNextTime(t *testing.T) {
	b := New[int](logx.Nop())
	var late int
	b.Subscribe(func(int) {
		b.Subscribe(func(int) { late++ })
	})

	b.Publish(1)
	assert.Zero(t, late)
	b.Publish(2)
	assert.Equal(t, 1, late)
}

func TestReset(t *testing.T) {
	b := New[int](logx.Nop())
	b.Subscribe(func(int) {})
	b.Reset()
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Publish(1))
}
