package history

import (
	"context"
	"time"
)

// EventType defines the kind of supervision event.
type EventType string

const (
	EventLaunch         EventType = "launch"
	EventLaunchFailed   EventType = "launch_failed"
	EventCycleCompleted EventType = "cycle_completed"
)

// Event is one supervision outcome exported to external systems.
// Name and Path are empty for cycle events; Launched is zero for program events.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Name       string    `json:"name,omitempty"`
	Path       string    `json:"path,omitempty"`
	Error      string    `json:"error,omitempty"`
	Launched   int       `json:"launched,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
