// Package events is the in-process event bus. Pipeline workers publish
// stage outcomes through it and the driver attaches audit and retry
// subscribers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every published event.
type Event interface {
	// EventName is the subscription key, e.g. "leads.stage.finished".
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the identity and time of an event. Embed it in concrete
// events.
type BaseEvent struct {
	ID        uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a fresh id and the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{ID: uuid.New(), Timestamp: time.Now().UTC()}
}

// Handler reacts to one event. Returned errors are logged by the bus and
// never reach the publisher of an async event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to the handlers subscribed by name.
type Bus interface {
	// Publish runs handlers in the background with a context that is not
	// cancelled when ctx is, so an outcome recorded during shutdown still
	// reaches its subscribers.
	Publish(ctx context.Context, event Event)
	// PublishSync runs handlers in order and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}

// DrainingBus is a Bus whose owner can wait for background handlers before
// releasing the resources they use.
type DrainingBus interface {
	Bus
	// Wait blocks until every handler started by Publish has returned.
	Wait()
}

var _ DrainingBus = (*InMemoryBus)(nil)
