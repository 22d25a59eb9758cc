package transport

import (
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"
)

const natsLogPrefix = "transport:nats"

// NATS maps a receiving context onto one COMMS subject. Targets are subjects too.
// A single COMMS subscription feeds all local listeners, so messages reach them one
// at a time on the subscription's delivery goroutine.
type NATS struct {
	nc    *comms.Conn
	inbox string
	out   fanout

	mu  sync.Mutex
	sub *comms.Subscription
}

// NewNATS subscribes to inbox and returns the adapter.
func NewNATS(nc *comms.Conn, inbox string) (*NATS, error) {
	t := &NATS{nc: nc, inbox: inbox}
	sub, err := nc.Subscribe(inbox, func(msg *comms.Msg) {
		t.out.deliver(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", natsLogPrefix, inbox, err)
	}
	t.sub = sub
	slog.Info(fmt.Sprintf("%s - Listening on %s", natsLogPrefix, inbox))
	return t, nil
}

// Inbox returns the subject this context receives on.
func (t *NATS) Inbox() string {
	return t.inbox
}

// Post publishes data on the target subject.
func (t *NATS) Post(target string, data []byte) error {
	t.mu.Lock()
	closed := t.sub == nil
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := t.nc.Publish(target, data); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", natsLogPrefix, target, err)
	}
	return nil
}

// Subscribe registers fn for every message arriving on the inbox.
func (t *NATS) Subscribe(fn Listener) (Subscription, error) {
	return t.out.add(fn)
}

// Flush waits until the server has processed everything published so far.
func (t *NATS) Flush() error {
	return t.nc.Flush()
}

// Close drops the COMMS subscription and every local listener. The connection stays open.
func (t *NATS) Close() error {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	if sub == nil {
		return nil
	}
	t.out.close()
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("%s - failed to unsubscribe from %s: %w", natsLogPrefix, t.inbox, err)
	}
	return nil
}
