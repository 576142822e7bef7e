// Package hooks implements the streaming core's external-notification
// system: pluggable handlers fired on mount lifecycle and stats-publish
// events, run through a bounded concurrent execution pool so a slow or
// hung hook can never stall a source task. Adapted from the teacher's
// RTMP event-hook system (internal/rtmp/server/hooks), generalized from
// connection/stream/codec events to mount-registry events.
package hooks

import "time"

// EventType identifies the kind of streaming-core event that occurred.
type EventType string

const (
	// Source lifecycle events.
	EventSourceConnected    EventType = "source_connected"
	EventSourceDisconnected EventType = "source_disconnected"
	EventSourceFallback     EventType = "source_fallback"

	// Listener lifecycle events.
	EventListenerConnected    EventType = "listener_connected"
	EventListenerDisconnected EventType = "listener_disconnected"

	// Stats events.
	EventStatsPublish EventType = "stats_publish"
)

// Event represents a single streaming-core occurrence that can trigger
// hooks.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Mount     string                 `json:"mount,omitempty"`
	ConnID    string                 `json:"conn_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates a new event stamped with the current time.
func NewEvent(eventType EventType) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().Unix(),
		Data:      make(map[string]interface{}),
	}
}

// WithMount sets the event's mount path.
func (e *Event) WithMount(mount string) *Event {
	e.Mount = mount
	return e
}

// WithConnID sets the event's connection identifier.
func (e *Event) WithConnID(connID string) *Event {
	e.ConnID = connID
	return e
}

// WithData adds a data field to the event.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// String returns a human-readable representation of the event.
func (e *Event) String() string {
	if e.Mount != "" {
		return string(e.Type) + ":" + e.Mount
	}
	if e.ConnID != "" {
		return string(e.Type) + ":" + e.ConnID
	}
	return string(e.Type)
}
