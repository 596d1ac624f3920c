package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventJobUpdated    EventType = "job_updated"    // A job record mutated (state, progress or stage)
	EventJobTerminal   EventType = "job_terminal"   // A job record reached a terminal state
	EventBatchStarted  EventType = "batch_started"  // A batch was created and its pollers armed
	EventBatchComplete EventType = "batch_complete" // Every member of a batch is terminal
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus. This is the subscribe/observe
// mechanism the UI surface uses to re-render on every job record mutation.
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
