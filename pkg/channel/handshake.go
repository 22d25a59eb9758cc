package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/frame-channel/pkg/envelope"
	"github.com/morezero/frame-channel/pkg/transport"
)

const handshakeLogPrefix = "channel:handshake"

// ProtocolVersion is announced by Announce when the caller leaves Identity.Version empty.
const ProtocolVersion = "1.0.0"

// Identity is the first connect param: who the listening side is and where it replies.
type Identity struct {
	// ID is the source token the listening side stamps on its calls.
	ID string `json:"id"`
	// Target overrides the reply address given to Connect.
	Target  string `json:"target,omitempty"`
	Version string `json:"version,omitempty"`
}

// ConnectParams is what a connect announcement carried.
type ConnectParams struct {
	Identity Identity
	// Init holds the params after the identity, undecoded.
	Init []json.RawMessage
}

// Handshake waits for a single connect announcement.
type Handshake struct {
	onConnect func(ConnectParams)

	mu    sync.Mutex
	sub   transport.Subscription
	fired bool
}

// WaitForConnect listens on t until the first connect call arrives, stops listening and
// invokes onConnect with its params. Later connect messages are ignored. There is no
// timeout.
func WaitForConnect(t transport.Transport, onConnect func(ConnectParams)) (*Handshake, error) {
	h := &Handshake{onConnect: onConnect}
	sub, err := t.Subscribe(h.listen)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe: %w", handshakeLogPrefix, err)
	}

	h.mu.Lock()
	h.sub = sub
	fired := h.fired
	h.mu.Unlock()
	if fired {
		sub.Unsubscribe()
	}
	return h, nil
}

func (h *Handshake) listen(data []byte) {
	env, err := envelope.Parse(data)
	if err != nil {
		return
	}
	call, ok := env.(*envelope.Call)
	if !ok || call.Method != envelope.ConnectMethod {
		return
	}

	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return
	}
	h.fired = true
	sub := h.sub
	h.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}

	params := ConnectParams{}
	if len(call.Params) > 0 {
		if err := json.Unmarshal(call.Params[0], &params.Identity); err != nil {
			slog.Warn(fmt.Sprintf("%s - connect identity is not an object: %v", handshakeLogPrefix, err))
		}
		params.Init = call.Params[1:]
	}
	slog.Info(fmt.Sprintf("%s - Connect received (id=%s version=%s)", handshakeLogPrefix, params.Identity.ID, params.Identity.Version))
	h.onConnect(params)
}

// Done reports whether the handshake has stopped listening, by connecting or by Stop.
func (h *Handshake) Done() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Stop abandons the wait. It reports whether it prevented the announcement from being
// accepted; false means a connect already won and its callback runs or has run.
func (h *Handshake) Stop() (bool, error) {
	h.mu.Lock()
	if h.fired {
		h.mu.Unlock()
		return false, nil
	}
	h.fired = true
	sub := h.sub
	h.mu.Unlock()
	if sub == nil {
		return true, nil
	}
	return true, sub.Unsubscribe()
}

// Connect waits for the connect announcement on t and hands onConnect a Channel bound to
// the announced target (or target when none was announced) and the announced identity.
// onConnect runs on the delivery goroutine before the next envelope is processed, so
// handlers it registers see every later call.
func Connect(t transport.Transport, target string, onConnect func(*Channel, ConnectParams), opts *Opts) (*Handshake, error) {
	return connect(t, target, opts, func(ch *Channel, p ConnectParams, err error) {
		if err != nil {
			slog.Error(fmt.Sprintf("%s - %v", handshakeLogPrefix, err))
			return
		}
		onConnect(ch, p)
	})
}

func connect(t transport.Transport, target string, opts *Opts, onConnect func(*Channel, ConnectParams, error)) (*Handshake, error) {
	return WaitForConnect(t, func(p ConnectParams) {
		dest := target
		if p.Identity.Target != "" {
			dest = p.Identity.Target
		}
		ch, err := New(t, dest, p.Identity.ID, opts)
		if err != nil {
			onConnect(nil, p, fmt.Errorf("failed to open channel to %s: %w", dest, err))
			return
		}
		ch.msink.IncrCounterWithLabels(MetricHandshakeAccepted, 1, ch.labelsWith(LabelSource.M(p.Identity.ID)))
		onConnect(ch, p, nil)
	})
}

// Await blocks until the announcement arrives, then returns the channel. Ending ctx stops
// the wait. setup runs before any later envelope is dispatched; it may be nil.
func Await(ctx context.Context, t transport.Transport, target string, setup func(*Channel, ConnectParams), opts *Opts) (*Channel, ConnectParams, error) {
	type connected struct {
		ch     *Channel
		params ConnectParams
		err    error
	}
	done := make(chan connected, 1)

	h, err := connect(t, target, opts, func(ch *Channel, p ConnectParams, err error) {
		if err == nil && setup != nil {
			setup(ch, p)
		}
		done <- connected{ch, p, err}
	})
	if err != nil {
		return nil, ConnectParams{}, err
	}

	select {
	case c := <-done:
		return c.ch, c.params, c.err
	case <-ctx.Done():
		if stopped, _ := h.Stop(); stopped {
			return nil, ConnectParams{}, ctx.Err()
		}
		// The announcement won the race with ctx; finish accepting it.
		c := <-done
		return c.ch, c.params, c.err
	}
}

// Announce posts the connect message {method: "connect", params: [identity, ...init]}
// to target. The initiating side sends it exactly once.
func Announce(t transport.Transport, target string, id Identity, init ...interface{}) error {
	if id.Version == "" {
		id.Version = ProtocolVersion
	}
	params, err := envelope.EncodeParams(append([]interface{}{id}, init...))
	if err != nil {
		return err
	}
	data, err := json.Marshal(struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}{envelope.ConnectMethod, params})
	if err != nil {
		return fmt.Errorf("%s - failed to encode connect: %w", handshakeLogPrefix, err)
	}
	if err := t.Post(target, data); err != nil {
		return fmt.Errorf("%s - failed to announce to %s: %w", handshakeLogPrefix, target, err)
	}
	slog.Info(fmt.Sprintf("%s - Announced %s to %s", handshakeLogPrefix, id.ID, target))
	return nil
}
