package events

import "github.com/asaskevich/EventBus"

// Topics published on a Bus. Transfer topics carry the task (and for
// after-transfer, the error or nil) so observers can report progress.
const (
	EventBeforeTransfer = "transfer:before"
	EventAfterTransfer  = "transfer:after"

	EventConfigLoaded  = "config:loaded"
	EventServiceClosed = "service:closed"
)

// Bus wraps an EventBus instance. It is passed explicitly to the
// components that publish or subscribe, one bus per process.
type Bus struct {
	bus EventBus.Bus
}

// NewBus creates an independent event bus.
func NewBus() *Bus {
	return &Bus{bus: EventBus.New()}
}

// Subscribe registers fn for topic. fn's signature must match the
// arguments published on that topic.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a previously registered handler.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// Publish delivers args to every subscriber of topic synchronously.
func (b *Bus) Publish(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}
