package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelEvent_ListenAndNotify(t *testing.T) {
	event := NewChannelEvent[string](false)

	ch := make(chan string, 10)
	unregister := event.Listen(ch)
	assert.Equal(t, 1, event.ListenerCount())

	event.Notify("first")
	event.Notify("second")

	received := make([]string, 0, 2)
	for len(received) < 2 {
		select {
		case v := <-ch:
			received = append(received, v)
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for events")
		}
	}
	assert.Equal(t, []string{"first", "second"}, received)

	unregister()
	assert.Equal(t, 0, event.ListenerCount())

	event.Notify("third")
	select {
	case v := <-ch:
		t.Errorf("unexpected value after unregister: %s", v)
	default:
	}
}

func TestChannelEvent_MultipleListeners(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch1 := make(chan int, 10)
	ch2 := make(chan int, 10)
	unregister1 := event.Listen(ch1)
	unregister2 := event.Listen(ch2)
	assert.Equal(t, 2, event.ListenerCount())

	event.Notify(42)

	require.Equal(t, 42, <-ch1)
	require.Equal(t, 42, <-ch2)

	unregister1()
	unregister2()
	assert.Equal(t, 0, event.ListenerCount())
}

func TestChannelEvent_ReplayLast(t *testing.T) {
	event := NewChannelEvent[int](true)
	event.Notify(7)

	ch := make(chan int, 1)
	unregister := event.Listen(ch)
	defer unregister()

	select {
	case v := <-ch:
		assert.Equal(t, 7, v)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected replay of last event")
	}
}

func TestChannelEvent_NoReplayBeforeFirstNotify(t *testing.T) {
	event := NewChannelEvent[int](true)

	ch := make(chan int, 1)
	unregister := event.Listen(ch)
	defer unregister()

	select {
	case v := <-ch:
		t.Errorf("unexpected replay before any Notify: %d", v)
	default:
	}
}

func TestChannelEvent_FullChannelDoesNotBlock(t *testing.T) {
	event := NewChannelEvent[int](false)

	ch := make(chan int) // unbuffered, nobody reading
	unregister := event.Listen(ch)
	defer unregister()

	done := make(chan struct{})
	go func() {
		event.Notify(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full channel")
	}
}

func TestChannelEvent_NilChannelPanics(t *testing.T) {
	event := NewChannelEvent[int](false)
	assert.Panics(t, func() { event.Listen(nil) })
}
