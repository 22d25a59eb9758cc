package transport

import (
	"fmt"
	"log/slog"
	"sync"
)

const memoryLogPrefix = "transport:memory"

// Bus is an in-process broadcast medium joining named endpoints.
type Bus struct {
	mu        sync.Mutex
	endpoints map[string]*Endpoint
	closed    bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{endpoints: make(map[string]*Endpoint)}
}

// Endpoint returns the endpoint at address, creating and starting it on first use.
func (b *Bus) Endpoint(address string) *Endpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ep, ok := b.endpoints[address]; ok {
		return ep
	}
	ep := &Endpoint{
		bus:     b,
		address: address,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	if b.closed {
		ep.out.close()
		close(ep.stop)
		return ep
	}
	b.endpoints[address] = ep
	ep.wg.Add(1)
	go ep.run()
	return ep
}

func (b *Bus) lookup(address string) (*Endpoint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ep, ok := b.endpoints[address]
	return ep, ok
}

// Close stops every endpoint. Queued messages are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	eps := make([]*Endpoint, 0, len(b.endpoints))
	for _, ep := range b.endpoints {
		eps = append(eps, ep)
	}
	b.mu.Unlock()

	for _, ep := range eps {
		ep.close()
	}
}

// Endpoint is one receiving context on a Bus. It implements Transport.
// Its inbound queue is unbounded, so Post never waits on a slow receiver, including
// when a listener posts back to the endpoint currently delivering to it.
type Endpoint struct {
	bus     *Bus
	address string

	qmu   sync.Mutex
	queue [][]byte
	wake  chan struct{}

	out     fanout
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// Address returns the address other endpoints post to.
func (e *Endpoint) Address() string {
	return e.address
}

// Post queues a copy of data on the target endpoint. Posting to an address nobody
// listens on is not an error, mirroring a broadcast medium.
func (e *Endpoint) Post(target string, data []byte) error {
	select {
	case <-e.stop:
		return ErrClosed
	default:
	}

	dst, ok := e.bus.lookup(target)
	if !ok {
		slog.Debug(fmt.Sprintf("%s - no endpoint at %s, dropping %d bytes", memoryLogPrefix, target, len(data)))
		return nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	dst.enqueue(buf)
	return nil
}

func (e *Endpoint) enqueue(data []byte) {
	select {
	case <-e.stop:
		return
	default:
	}
	e.qmu.Lock()
	e.queue = append(e.queue, data)
	e.qmu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// drain takes everything queued so far, in arrival order.
func (e *Endpoint) drain() [][]byte {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	batch := e.queue
	e.queue = nil
	return batch
}

// Subscribe registers fn for every message arriving at this endpoint.
func (e *Endpoint) Subscribe(fn Listener) (Subscription, error) {
	return e.out.add(fn)
}

func (e *Endpoint) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.wake:
		case <-e.stop:
			return
		}
		for batch := e.drain(); len(batch) > 0; batch = e.drain() {
			for _, data := range batch {
				select {
				case <-e.stop:
					return
				default:
				}
				e.out.deliver(data)
			}
		}
	}
}

func (e *Endpoint) close() {
	e.once.Do(func() {
		e.out.close()
		close(e.stop)
		e.wg.Wait()
		e.drain()
	})
}
