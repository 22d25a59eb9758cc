// Package future provides a one-shot asynchronous result settled from outside.
package future

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// RejectedError carries the raw error payload of a rejected future.
type RejectedError struct {
	Payload json.RawMessage
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("future: rejected with %s", string(e.Payload))
}

// Future is settled at most once, by Fulfil or Reject. There is no cancellation.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value json.RawMessage
	err   *RejectedError

	mu    sync.Mutex
	conts []func(json.RawMessage, error)
}

// New returns a pending future.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// Fulfil settles the future with value. It reports false if already settled.
func (f *Future) Fulfil(value json.RawMessage) bool {
	return f.settle(value, nil)
}

// Reject settles the future with the raw payload. It reports false if already settled.
func (f *Future) Reject(payload json.RawMessage) bool {
	return f.settle(nil, &RejectedError{Payload: payload})
}

func (f *Future) settle(value json.RawMessage, rejected *RejectedError) bool {
	var conts []func(json.RawMessage, error)
	settled := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value = value
		f.err = rejected
		close(f.done)
		conts = f.conts
		f.conts = nil
		f.mu.Unlock()
		settled = true
	})
	if settled {
		value, err := f.outcome()
		for _, fn := range conts {
			fn(value, err)
		}
	}
	return settled
}

// Done is closed once the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether Fulfil or Reject has run.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future settles or ctx ends. Ending ctx only stops this waiter;
// the future itself stays pending.
func (f *Future) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AwaitInto awaits the result and decodes it into v.
func (f *Future) AwaitInto(ctx context.Context, v interface{}) error {
	value, err := f.Await(ctx)
	if err != nil {
		return err
	}
	return json.Unmarshal(value, v)
}

// OnSettle runs fn once the future settles, on the goroutine that settles it, or right
// away when it already has. Continuations run in attach order and must not block.
func (f *Future) OnSettle(fn func(value json.RawMessage, err error)) {
	f.mu.Lock()
	if !f.Settled() {
		f.conts = append(f.conts, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f.outcome())
}

func (f *Future) outcome() (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}
