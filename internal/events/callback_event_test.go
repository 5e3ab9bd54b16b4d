package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackEvent_ListenAndNotify(t *testing.T) {
	event := NewCallbackEvent[string](false)

	var got []string
	unregister := event.Listen(func(v string) { got = append(got, v) })
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("a")
	event.Notify("b")
	assert.Equal(t, []string{"a", "b"}, got)

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("c")
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCallbackEvent_ReplayLast(t *testing.T) {
	event := NewCallbackEvent[int](true)
	event.Notify(99)

	var got []int
	unregister := event.Listen(func(v int) { got = append(got, v) })
	defer unregister()

	assert.Equal(t, []int{99}, got)
}

func TestCallbackEvent_NoReplayBeforeFirstNotify(t *testing.T) {
	event := NewCallbackEvent[int](true)

	called := false
	unregister := event.Listen(func(int) { called = true })
	defer unregister()

	assert.False(t, called)
}

func TestCallbackEvent_UnregisterTwice(t *testing.T) {
	event := NewCallbackEvent[int](false)
	unregister := event.Listen(func(int) {})

	unregister()
	unregister()
	assert.Equal(t, 0, event.ListenerCount())
}

func TestCallbackEvent_NilCallbackPanics(t *testing.T) {
	event := NewCallbackEvent[int](false)
	assert.Panics(t, func() { event.Listen(nil) })
}
