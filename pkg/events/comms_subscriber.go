package events

import (
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/frame-channel/pkg/commsutil"
)

const commsSubscriberLogPrefix = "events:comms_subscriber"

// SubscribeConnected delivers connected events for source, published by CommsPublisher on
// the granular subject under base. Empty base uses the default connected subject.
// Undecodable messages are logged and skipped.
func SubscribeConnected(nc *comms.Conn, base, source string, fn func(*ChannelConnectedEvent)) (*comms.Subscription, error) {
	subject := commsutil.BuildConnectedSubject(base, source)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		event, err := commsutil.DecodeMsg[ChannelConnectedEvent](msg)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - %v", commsSubscriberLogPrefix, err))
			return
		}
		fn(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsSubscriberLogPrefix, subject, err)
	}
	return sub, nil
}
