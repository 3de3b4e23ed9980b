package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart      EventType = "start"
	EventStop       EventType = "stop"
	EventReconcile  EventType = "reconcile"
	EventOrphanKill EventType = "orphan_kill"
)

// Event is one lifecycle occurrence exported to external systems.
type Event struct {
	Type        EventType `json:"type"`
	OccurredAt  time.Time `json:"occurred_at"`
	WorkspaceID string    `json:"workspace_id"`
	PID         int       `json:"pid"`
	Detail      string    `json:"detail"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use; send failures never block a lifecycle operation.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
