// Package transport carries encoded envelopes between addressable contexts.
//
// Delivery is best effort and unordered across senders. Every arriving message is
// broadcast to all listeners subscribed on the receiving context, one message at a
// time, in subscription order.
package transport

import "errors"

var (
	ErrClosed        = errors.New("transport: closed")
	ErrUnknownTarget = errors.New("transport: unknown target")
)

// Listener receives one encoded envelope. It must not retain data after returning.
type Listener func(data []byte)

// Subscription detaches a listener.
type Subscription interface {
	Unsubscribe() error
}

// Transport posts envelopes to a target address and delivers inbound ones to listeners.
type Transport interface {
	Post(target string, data []byte) error
	Subscribe(fn Listener) (Subscription, error)
}
