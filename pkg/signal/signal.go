// Package signal is an ordered multicast list whose subscribers detach independently.
package signal

import "sync"

// Detach removes the subscription it was returned for. Calling it again is a no-op.
type Detach func()

type subscriber[T any] struct {
	gen uint64
	fn  func(T)
}

// Signal dispatches values to its subscribers in attach order.
// The zero value is ready to use.
type Signal[T any] struct {
	mu   sync.Mutex
	gen  uint64
	subs []subscriber[T]
}

// Attach appends fn and returns its detach token.
func (s *Signal[T]) Attach(fn func(T)) Detach {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.subs = append(s.subs, subscriber[T]{gen: gen, fn: fn})
	s.mu.Unlock()

	return func() { s.remove(gen) }
}

func (s *Signal[T]) remove(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.gen == gen {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Dispatch calls every current subscriber with v and returns how many were called.
// Subscribers attached or detached during a dispatch take effect on the next one.
func (s *Signal[T]) Dispatch(v T) int {
	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
	return len(subs)
}
