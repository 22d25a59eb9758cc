package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/frame-channel/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// ConnectedSubject overrides the connected event subject (CHANNEL_CONNECTED_SUBJECT).
	ConnectedSubject string
}

// CommsPublisher publishes channel events to COMMS subjects.
type CommsPublisher struct {
	nc               *comms.Conn
	connectedSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectConnected
	if opts != nil && opts.ConnectedSubject != "" {
		subject = opts.ConnectedSubject
	}
	return &CommsPublisher{nc: nc, connectedSubject: subject}
}

// PublishConnected publishes event to the per-source subject and then the global one.
func (p *CommsPublisher) PublishConnected(_ context.Context, event *ChannelConnectedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	granular := commsutil.BuildConnectedSubject(p.connectedSubject, event.Source)
	for _, subject := range []string{granular, p.connectedSubject} {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return err
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published connected event for %s", commsPublisherLogPrefix, event.Source))
	return nil
}
