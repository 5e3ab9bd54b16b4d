package events

import (
	"sync"
)

// CallbackEvent fans a value out to a set of subscriber callbacks.
// Unlike ChannelEvent, delivery is synchronous in the notifier's goroutine.
type CallbackEvent[T any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]func(T)
	nextID     uint64
	replayLast bool
	lastEvent  *T
}

// NewCallbackEvent creates a CallbackEvent.
// replayLast: if true, a newly registered callback is invoked immediately
// with the most recent notified value.
func NewCallbackEvent[T any](replayLast bool) *CallbackEvent[T] {
	return &CallbackEvent[T]{
		listeners:  make(map[uint64]func(T)),
		replayLast: replayLast,
	}
}

// Listen registers a callback to run on every Notify.
// Returns a deregistration function.
func (e *CallbackEvent[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("callback cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = callback
	var replay *T
	if e.replayLast && e.lastEvent != nil {
		copied := *e.lastEvent
		replay = &copied
	}
	e.mu.Unlock()

	// Invoke outside the lock so a callback that re-enters Listen/Notify
	// cannot deadlock
	if replay != nil {
		callback(*replay)
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify invokes all registered callbacks with value.
func (e *CallbackEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		if e.lastEvent == nil {
			e.lastEvent = new(T)
		}
		*e.lastEvent = value
	}
	targets := make([]func(T), 0, len(e.listeners))
	for _, callback := range e.listeners {
		targets = append(targets, callback)
	}
	e.mu.Unlock()

	for _, callback := range targets {
		callback(value)
	}
}

// ListenerCount returns the number of registered listeners.
func (e *CallbackEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
