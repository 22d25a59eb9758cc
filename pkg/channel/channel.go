// Package channel implements a bidirectional RPC link to one remote context over a
// broadcast transport.
//
// A Channel numbers its outgoing calls, keeps a future per outstanding call, and routes
// every inbound envelope either to the handlers registered for its method or to the
// future waiting on its id. Handshake (see Connect) produces a Channel once the remote
// side announces itself.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-metrics"

	"github.com/morezero/frame-channel/pkg/envelope"
	"github.com/morezero/frame-channel/pkg/future"
	"github.com/morezero/frame-channel/pkg/signal"
	"github.com/morezero/frame-channel/pkg/transport"
)

const logPrefix = "channel:channel"

// Handler observes an inbound call. It runs on the transport's delivery goroutine.
type Handler func(params []json.RawMessage)

// Responder answers an inbound call. A nil error sends {id, result}; an error sends
// {id, error}. A *future.RejectedError forwards its raw payload, any other error is
// sent as its message string.
type Responder func(ctx context.Context, params []json.RawMessage) (interface{}, error)

// Opts configures New. Nil uses defaults.
type Opts struct {
	// MetricSink receives channel counters. Defaults to the go-metrics global.
	MetricSink metrics.MetricSink
	// MetricLabels are added to every metric the channel emits.
	MetricLabels []metrics.Label
}

// Channel is one endpoint's view of the link to a specific remote context.
type Channel struct {
	t      transport.Transport
	sub    transport.Subscription
	msink  metrics.MetricSink
	labels []metrics.Label

	mu       sync.Mutex
	out      *sender
	pending  *pendingTable
	handlers map[string]*signal.Signal[*envelope.Call]
	closed   bool
}

// New binds a channel to target, stamping outgoing calls with source, and starts
// listening on t.
func New(t transport.Transport, target, source string, opts *Opts) (*Channel, error) {
	c := &Channel{
		t:        t,
		out:      newSender(t, target, source),
		pending:  newPendingTable(),
		handlers: make(map[string]*signal.Signal[*envelope.Call]),
	}
	if opts != nil && opts.MetricSink != nil {
		c.msink = opts.MetricSink
	} else {
		c.msink = metrics.Default()
	}
	if opts != nil {
		c.labels = opts.MetricLabels
	}

	sub, err := t.Subscribe(c.onMessage)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe: %w", logPrefix, err)
	}
	c.sub = sub
	slog.Debug(fmt.Sprintf("%s - Channel %s bound to %s", logPrefix, source, target))
	return c, nil
}

// Source returns the identity stamped on outgoing calls.
func (c *Channel) Source() string {
	return c.out.source
}

// Target returns the address outgoing envelopes are posted to.
func (c *Channel) Target() string {
	return c.out.target
}

// Call invokes method on the remote side and returns a future for its response.
// The future settles only when a matching response arrives; there is no timeout.
func (c *Channel) Call(method string, params ...interface{}) (*future.Future, error) {
	raw, err := envelope.EncodeParams(params)
	if err != nil {
		return nil, err
	}

	f := future.New()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	id := c.out.reserve()
	c.pending.add(id, f)
	pending := c.pending.len()
	c.mu.Unlock()

	if err := c.out.emit(id, method, raw); err != nil {
		c.mu.Lock()
		c.pending.take(id)
		pending = c.pending.len()
		c.mu.Unlock()
		c.msink.SetGaugeWithLabels(MetricPendingCalls, float32(pending), c.labels)
		return nil, err
	}

	c.msink.IncrCounterWithLabels(MetricCallsIssued, 1, c.labelsWith(LabelMethod.M(method)))
	c.msink.SetGaugeWithLabels(MetricPendingCalls, float32(pending), c.labels)
	return f, nil
}

// Send invokes method without waiting for a response. A response addressed to its id
// is later dropped as unknown.
func (c *Channel) Send(method string, params ...interface{}) error {
	raw, err := envelope.EncodeParams(params)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	id := c.out.reserve()
	c.mu.Unlock()

	if err := c.out.emit(id, method, raw); err != nil {
		return err
	}
	c.msink.IncrCounterWithLabels(MetricSendsIssued, 1, c.labelsWith(LabelMethod.M(method)))
	return nil
}

// AddHandler subscribes h to inbound calls named method. The returned token removes
// exactly this subscription.
func (c *Channel) AddHandler(method string, h Handler) signal.Detach {
	return c.attach(method, func(call *envelope.Call) {
		h(call.Params)
	})
}

// AddResponder subscribes r to inbound calls named method and posts its outcome back
// to the target under the call's id.
func (c *Channel) AddResponder(method string, r Responder) signal.Detach {
	return c.attach(method, func(call *envelope.Call) {
		result, err := r(context.Background(), call.Params)
		if err != nil {
			err = c.RespondError(call.ID, errorPayload(err))
		} else {
			err = c.Respond(call.ID, result)
		}
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to answer %s (id=%d): %v", logPrefix, call.Method, call.ID, err))
		}
	})
}

func (c *Channel) attach(method string, fn func(*envelope.Call)) signal.Detach {
	c.mu.Lock()
	sig, ok := c.handlers[method]
	if !ok {
		sig = &signal.Signal[*envelope.Call]{}
		c.handlers[method] = sig
	}
	c.mu.Unlock()
	return sig.Attach(fn)
}

// Respond fulfils the remote call id with result.
func (c *Channel) Respond(id uint64, result interface{}) error {
	raw, err := marshalPayload(result)
	if err != nil {
		return err
	}
	return c.reply(envelope.Result(id, raw))
}

// RespondError rejects the remote call id with payload.
func (c *Channel) RespondError(id uint64, payload interface{}) error {
	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}
	return c.reply(envelope.Error(id, raw))
}

func (c *Channel) reply(resp *envelope.Response) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := c.out.reply(resp); err != nil {
		return err
	}
	c.msink.IncrCounterWithLabels(MetricResponsesSent, 1, c.labelsWith(LabelOutcome.M(resp.Outcome.String())))
	return nil
}

// Pending returns the number of calls still waiting for a response.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.len()
}

// Close stops listening on the transport. Futures still pending never settle.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.sub.Unsubscribe()
}

func (c *Channel) labelsWith(extra ...metrics.Label) []metrics.Label {
	out := make([]metrics.Label, 0, len(c.labels)+len(extra))
	out = append(out, c.labels...)
	return append(out, extra...)
}

func marshalPayload(v interface{}) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode payload: %w", logPrefix, err)
	}
	return data, nil
}

func errorPayload(err error) interface{} {
	var rejected *future.RejectedError
	if errors.As(err, &rejected) {
		return rejected.Payload
	}
	return err.Error()
}
