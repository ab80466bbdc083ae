package events

import (
	"context"
	"fmt"
)

// Bus defines the update-notification bus contract the core consumes:
// Publish/PublishAsync for emitting container-changed and lifecycle
// signals, Subscribe/Unsubscribe for in-process listeners. The bundled
// session registry (internal/session) is not a bus subscriber.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	PublishAsync(event Event) error
	Subscribe(filter EventFilter, handler EventHandler) (*Subscription, error)
	Unsubscribe(subscriptionID string) error
	Recent(limit int) []Event
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ErrNotRunning is returned by Publish/PublishAsync before Start or after
// Stop.
var ErrNotRunning = fmt.Errorf("event bus is not running")
