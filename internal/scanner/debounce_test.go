package scanner

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_SingleTimerPerWindow(t *testing.T) {
	mock := clock.NewMock()
	d := NewDebouncer(mock, 100*time.Millisecond)
	tokens := make(chan uint64, 8)

	for range 5 {
		d.Schedule(func(token uint64) { tokens <- token })
	}
	assert.True(t, d.Armed())
	assert.True(t, d.Pending())

	mock.Add(100 * time.Millisecond)

	var token uint64
	select {
	case token = <-tokens:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	require.True(t, d.Fired(token))
	assert.False(t, d.Armed())
	assert.False(t, d.Pending())

	mock.Add(time.Second)
	select {
	case <-tokens:
		t.Fatal("timer fired twice")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestDebouncer_ClearLeavesNoopFire(t *testing.T) {
	mock := clock.NewMock()
	d := NewDebouncer(mock, 0)
	tokens := make(chan uint64, 1)

	d.Schedule(func(token uint64) { tokens <- token })
	d.Clear()
	mock.Add(DefaultDebounce)

	token := <-tokens
	assert.False(t, d.Fired(token), "cleared work does not publish")
	assert.False(t, d.Armed())
}

func TestDebouncer_StopInvalidatesToken(t *testing.T) {
	mock := clock.NewMock()
	d := NewDebouncer(mock, DefaultDebounce)

	var captured uint64
	d.Schedule(func(token uint64) {})
	captured = d.seq
	d.Stop()

	assert.False(t, d.Fired(captured))
	assert.False(t, d.Pending())
	assert.False(t, d.Armed())
}
