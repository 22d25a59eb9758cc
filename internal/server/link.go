package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/frame-channel/pkg/bootstrap"
	"github.com/morezero/frame-channel/pkg/channel"
	"github.com/morezero/frame-channel/pkg/events"
	"github.com/morezero/frame-channel/pkg/semver"
	"github.com/morezero/frame-channel/pkg/transport"
)

const linkLogPrefix = "server:link"

// Role selects which side of the channel this process plays.
type Role string

const (
	// RoleFrame waits for the connect announcement.
	RoleFrame Role = "frame"
	// RoleHost announces and drives the first call.
	RoleHost Role = "host"
)

// link tracks the channel once established, for readiness and shutdown.
type link struct {
	mu        sync.Mutex
	ch        *channel.Channel
	peer      string
	version   string
	connected bool
	err       error
}

// linkStatus is the /ready body.
type linkStatus struct {
	Connected bool   `json:"connected"`
	Source    string `json:"source,omitempty"`
	Target    string `json:"target,omitempty"`
	Peer      string `json:"peer,omitempty"`
	Version   string `json:"version,omitempty"`
	Pending   int    `json:"pending"`
	Error     string `json:"error,omitempty"`
}

func (l *link) established(ch *channel.Channel, peer, version string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ch, l.peer, l.version, l.connected, l.err = ch, peer, version, true, nil
}

func (l *link) failed(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	l.err = err
}

func (l *link) status() linkStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := linkStatus{Connected: l.connected, Peer: l.peer, Version: l.version}
	if l.ch != nil {
		st.Source = l.ch.Source()
		st.Target = l.ch.Target()
		st.Pending = l.ch.Pending()
	}
	if l.err != nil {
		st.Error = l.err.Error()
	}
	return st
}

func (l *link) close() error {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()
	if ch == nil {
		return nil
	}
	return ch.Close()
}

// frameParams configures startFrame.
type frameParams struct {
	Transport   transport.Transport
	HostSubject string
	// Constraint is checked against the announced protocol version. Empty accepts all.
	Constraint string
	Publisher  events.EventPublisher
	Opts       *channel.Opts
}

// startFrame waits for the host's announcement. On accept it checks the protocol
// version, registers the responders and publishes the connected event. An incompatible
// version closes the channel; the handshake does not re-arm.
func startFrame(ctx context.Context, p frameParams, l *link) (*channel.Handshake, error) {
	return channel.Connect(p.Transport, p.HostSubject, func(ch *channel.Channel, cp channel.ConnectParams) {
		if err := semver.CheckProtocol(cp.Identity.Version, p.Constraint); err != nil {
			slog.Error(fmt.Sprintf("%s - rejecting host on %s: %v", linkLogPrefix, ch.Target(), err))
			ch.Close()
			l.failed(err)
			return
		}

		registerResponders(ch, RoleFrame)
		l.established(ch, ch.Target(), cp.Identity.Version)
		slog.Info(fmt.Sprintf("%s - Frame %s connected to %s with %d init params", linkLogPrefix, ch.Source(), ch.Target(), len(cp.Init)))

		if p.Publisher == nil {
			return
		}
		event := events.NewChannelConnectedEvent(string(RoleFrame), ch.Source(), ch.Target(), cp.Identity.Version)
		if err := p.Publisher.PublishConnected(ctx, event); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to publish connected event: %v", linkLogPrefix, err))
		}
	}, p.Opts)
}

// hostParams configures startHost and announce.
type hostParams struct {
	Transport    transport.Transport
	FrameSubject string
	HostSubject  string
	Init         *bootstrap.InitConfig
	Opts         *channel.Opts
	// RetryInterval is how long to wait for a pong before announcing again.
	RetryInterval time.Duration
}

// startHost opens the host side of the channel with freshly minted identities.
func startHost(p hostParams) (*channel.Channel, string, error) {
	frameID := "frame-" + uuid.NewString()
	ch, err := channel.New(p.Transport, p.FrameSubject, "host-"+uuid.NewString(), p.Opts)
	if err != nil {
		return nil, "", fmt.Errorf("%s - failed to open host channel: %w", linkLogPrefix, err)
	}
	registerResponders(ch, RoleHost)
	return ch, frameID, nil
}

// announce sends the connect message and pings until the frame answers or ctx ends.
// Announcements are broadcast, so one sent before the frame subscribed is lost; the
// frame ignores repeats once connected. A late answer to any earlier ping also counts.
func announce(ctx context.Context, ch *channel.Channel, frameID string, p hostParams, l *link) error {
	id := channel.Identity{ID: frameID, Target: p.HostSubject}
	var init []interface{}
	if p.Init != nil {
		init = p.Init.Params()
	}

	type answer struct {
		value json.RawMessage
		err   error
	}
	answered := make(chan answer, 1)

	for attempt := 1; ; attempt++ {
		if err := channel.Announce(p.Transport, p.FrameSubject, id, init...); err != nil {
			return err
		}
		f, err := ch.Call("ping")
		if err != nil {
			return err
		}
		f.OnSettle(func(value json.RawMessage, err error) {
			select {
			case answered <- answer{value, err}:
			default:
			}
		})

		timer := time.NewTimer(p.RetryInterval)
		select {
		case a := <-answered:
			timer.Stop()
			if a.err != nil {
				l.failed(a.err)
				return fmt.Errorf("%s - ping failed: %w", linkLogPrefix, a.err)
			}
			var pong string
			json.Unmarshal(a.value, &pong)
			l.established(ch, frameID, channel.ProtocolVersion)
			slog.Info(fmt.Sprintf("%s - Frame %s answered %q after %d announcement(s)", linkLogPrefix, frameID, pong, attempt))
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		slog.Info(fmt.Sprintf("%s - No answer from %s, announcing again", linkLogPrefix, p.FrameSubject))
	}
}
