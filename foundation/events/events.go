// Package events allows for the registering and receiving of events.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Event represents a change in the ledger that clients can be told about.
type Event struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Parse converts an event line of the form "<prefix> <kind>: <json>" into
// an event. It reports false when the line isn't an event.
func Parse(prefix string, line string) (Event, bool) {
	rest, ok := strings.CutPrefix(line, prefix)
	if !ok {
		return Event{}, false
	}

	kind, data, ok := strings.Cut(strings.TrimSpace(rest), ":")
	if !ok || kind == "" {
		return Event{}, false
	}

	raw := json.RawMessage(strings.TrimSpace(data))
	if !json.Valid(raw) {
		return Event{}, false
	}

	return Event{Kind: kind, Data: raw}, true
}

// =============================================================================

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]chan Event
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) <-chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// Since an event will be dropped if the websocket receiver is
	// not ready to receive, this arbitrary buffer should give the receiver
	// enough time to not lose an event. Websocket send could take long.
	const eventBuffer = 100

	evt.m[id] = make(chan Event, eventBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Subscribers returns the number of registered channels.
func (evt *Events) Subscribers() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.m)
}

// Send signals an event to every registered channel. Send will not block
// waiting for a receiver on any given channel.
func (evt *Events) Send(e Event) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- e:
		default:
		}
	}
}
