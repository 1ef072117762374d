// Package history records agent lifecycle events for later inspection.
package history

import (
	"context"
	"errors"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventStartFailed EventType = "start_failed"
	EventStop        EventType = "stop"
	EventStale       EventType = "stale"
)

// Event is one lifecycle transition of an agent. RunID ties the events of a
// single launch together.
type Event struct {
	Type       EventType `json:"type"`
	Agent      string    `json:"agent"`
	PID        int       `json:"pid,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Reader returns recorded events, newest first.
type Reader interface {
	Recent(ctx context.Context, agent string, limit int) ([]Event, error)
}

// Store is a sink that can also be queried.
type Store interface {
	Sink
	Reader
}

// ErrDisabled is returned by queries when no history store is configured.
var ErrDisabled = errors.New("history is not enabled")

// Nop discards events; Recent always fails with ErrDisabled.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }
func (Nop) Close() error                      { return nil }
func (Nop) Recent(context.Context, string, int) ([]Event, error) {
	return nil, ErrDisabled
}

// DefaultLimit applies when callers pass a non-positive limit.
const DefaultLimit = 20

// ClampLimit bounds limit to (0, 1000].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}
