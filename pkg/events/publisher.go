package events

import "context"

// EventPublisher publishes channel lifecycle events.
type EventPublisher interface {
	PublishConnected(ctx context.Context, event *ChannelConnectedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishConnected is a no-op.
func (p *NoOpPublisher) PublishConnected(_ context.Context, _ *ChannelConnectedEvent) error {
	return nil
}

// CallbackPublisher hands every event to a function.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ChannelConnectedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ChannelConnectedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishConnected calls the callback.
func (p *CallbackPublisher) PublishConnected(ctx context.Context, event *ChannelConnectedEvent) error {
	return p.callback(ctx, event)
}
