// Package events carries pipeline notifications to the web and CLI layers.
// The event set is fixed and typed; consumers switch on the concrete type
// instead of inspecting string keys.
package events

import (
	"sync"

	"talkback/pkg/models"
)

// Type names an event kind. The names double as the SSE event field.
type Type string

const (
	TypeLogAdded      Type = "log-added"
	TypeStatusChanged Type = "status-changed"
	TypeConfigError   Type = "config-error"
)

// Event is implemented by every published payload.
type Event interface {
	EventType() Type
}

// LogAdded is published after a record is persisted, for both roles.
type LogAdded struct {
	Record models.QueueRecord `json:"record"`
}

// EventType implements Event.
func (LogAdded) EventType() Type { return TypeLogAdded }

// StatusChanged is published when playback starts or finishes. PlayingID is
// set while Playing is true; PlayedID identifies the record that just
// finished when Playing is false.
type StatusChanged struct {
	Playing   bool   `json:"playing"`
	PlayingID *int64 `json:"playingId,omitempty"`
	PlayedID  *int64 `json:"playedId,omitempty"`
}

// EventType implements Event.
func (StatusChanged) EventType() Type { return TypeStatusChanged }

// ConfigError is published when a configuration reload fails. The pipeline
// keeps running on the last good configuration.
type ConfigError struct {
	Message string `json:"message"`
}

// EventType implements Event.
func (ConfigError) EventType() Type { return TypeConfigError }

type subscriber struct {
	ch    chan Event
	types map[Type]bool // nil means all types
}

// Bus is a non-blocking publish/subscribe fan-out. Events are delivered
// asynchronously via buffered channels; a subscriber that falls behind loses
// events rather than stalling the pipeline.
type Bus struct {
	mu         sync.RWMutex
	subs       []*subscriber
	bufferSize int
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe registers a handler, optionally restricted to the given types.
// The handler runs on its own goroutine. Returns an unsubscribe function.
func (b *Bus) Subscribe(fn func(Event), types ...Type) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan Event, b.bufferSize)}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	go func() {
		for event := range sub.ch {
			// Recover so a consumer panic can't take the bus down.
			func() {
				defer func() { _ = recover() }()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(sub.ch)
				break
			}
		}
	}
}

// Publish sends an event to every matching subscriber without blocking.
// A full subscriber channel drops the event for that subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.types != nil && !sub.types[evt.EventType()] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
