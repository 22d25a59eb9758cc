package transport

import "sync"

// fanout is the local listener list of one receiving context.
type fanout struct {
	mu        sync.Mutex
	next      uint64
	listeners []registered
	closed    bool
}

type registered struct {
	id uint64
	fn Listener
}

type fanoutSub struct {
	f  *fanout
	id uint64
}

func (s *fanoutSub) Unsubscribe() error {
	s.f.remove(s.id)
	return nil
}

func (f *fanout) add(fn Listener) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	f.next++
	f.listeners = append(f.listeners, registered{id: f.next, fn: fn})
	return &fanoutSub{f: f, id: f.next}, nil
}

func (f *fanout) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range f.listeners {
		if l.id == id {
			f.listeners = append(f.listeners[:i:i], f.listeners[i+1:]...)
			return
		}
	}
}

// deliver hands data to every listener registered when delivery starts.
// A listener removed by an earlier listener in the same pass is skipped.
func (f *fanout) deliver(data []byte) {
	f.mu.Lock()
	snapshot := f.listeners
	f.mu.Unlock()

	for _, l := range snapshot {
		if !f.has(l.id) {
			continue
		}
		l.fn(data)
	}
}

func (f *fanout) has(id uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listeners {
		if l.id == id {
			return true
		}
	}
	return false
}

func (f *fanout) close() {
	f.mu.Lock()
	f.closed = true
	f.listeners = nil
	f.mu.Unlock()
}
