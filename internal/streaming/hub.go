// Package streaming fans analysis events out to live subscribers such as
// the panel's SSE endpoint.
package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time event emitted while a session is analysed.
type StreamEvent struct {
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id,omitempty"`
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Zero values match everything.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for analysis events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
