package transport

import "context"

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscription delivers events for one session until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, sessionID string) (Subscription, error)
}

type Broadcaster interface {
	Publisher
	Subscriber
}

// Connection is one client-facing event stream.
type Connection interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, Event) error { return nil }
