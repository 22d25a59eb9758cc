package transport

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const journalLogPrefix = "transport:journal"

// Direction of a journaled envelope relative to this context.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// JournalEntry is one envelope seen by a Journal.
type JournalEntry struct {
	Direction string
	// Peer is the target subject for outbound entries and the local address for inbound ones.
	Peer       string
	Body       []byte
	RecordedAt time.Time
}

// Recorder persists journal entries.
type Recorder interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// Journal wraps a Transport and records every envelope it posts or receives.
// Recording failures are logged and never block traffic.
type Journal struct {
	inner   Transport
	rec     Recorder
	address string
	timeout time.Duration
	sub     Subscription
}

// JournalOpts configures NewJournal. Nil uses defaults.
type JournalOpts struct {
	// Timeout bounds each Record call. Defaults to 5s.
	Timeout time.Duration
}

// NewJournal subscribes a recording listener on inner and returns the wrapper.
// address labels inbound entries.
func NewJournal(inner Transport, rec Recorder, address string, opts *JournalOpts) (*Journal, error) {
	j := &Journal{inner: inner, rec: rec, address: address, timeout: 5 * time.Second}
	if opts != nil && opts.Timeout > 0 {
		j.timeout = opts.Timeout
	}
	sub, err := inner.Subscribe(func(data []byte) {
		j.record(DirectionIn, address, data)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe recorder: %w", journalLogPrefix, err)
	}
	j.sub = sub
	return j, nil
}

// Post forwards to the wrapped transport and records the envelope once it is handed off.
func (j *Journal) Post(target string, data []byte) error {
	if err := j.inner.Post(target, data); err != nil {
		return err
	}
	j.record(DirectionOut, target, data)
	return nil
}

// Subscribe forwards to the wrapped transport.
func (j *Journal) Subscribe(fn Listener) (Subscription, error) {
	return j.inner.Subscribe(fn)
}

// Close detaches the recording listener.
func (j *Journal) Close() error {
	return j.sub.Unsubscribe()
}

func (j *Journal) record(direction, peer string, data []byte) {
	body := make([]byte, len(data))
	copy(body, data)

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	err := j.rec.Record(ctx, JournalEntry{
		Direction:  direction,
		Peer:       peer,
		Body:       body,
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to record %s envelope for %s: %v", journalLogPrefix, direction, peer, err))
	}
}
