package channel

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"

	"github.com/morezero/frame-channel/pkg/envelope"
	"github.com/morezero/frame-channel/pkg/transport"
)

// post is one envelope handed to fakeTransport.Post.
type post struct {
	target string
	data   []byte
}

// fakeTransport records posts and lets tests deliver inbound bytes synchronously.
type fakeTransport struct {
	mu        sync.Mutex
	posts     []post
	listeners map[int]transport.Listener
	order     []int
	next      int
	postErr   error
	subErr    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{listeners: make(map[int]transport.Listener)}
}

type fakeSub struct {
	t  *fakeTransport
	id int
}

func (s *fakeSub) Unsubscribe() error {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	delete(s.t.listeners, s.id)
	return nil
}

func (f *fakeTransport) Post(target string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, post{target: target, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeTransport) Subscribe(fn transport.Listener) (transport.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.next++
	f.listeners[f.next] = fn
	f.order = append(f.order, f.next)
	return &fakeSub{t: f, id: f.next}, nil
}

// deliver feeds data to every listener subscribed when delivery starts.
func (f *fakeTransport) deliver(data string) {
	f.mu.Lock()
	var fns []transport.Listener
	for _, id := range f.order {
		if fn, ok := f.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn([]byte(data))
	}
}

func (f *fakeTransport) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func (f *fakeTransport) sent(t *testing.T) []*envelope.Call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var calls []*envelope.Call
	for _, p := range f.posts {
		env, err := envelope.Parse(p.data)
		if err != nil {
			t.Fatalf("channel:helpers_test - posted undecodable envelope %s: %v", p.data, err)
		}
		if call, ok := env.(*envelope.Call); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

func (f *fakeTransport) lastPost(t *testing.T) post {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.posts) == 0 {
		t.Fatal("channel:helpers_test - nothing posted")
	}
	return f.posts[len(f.posts)-1]
}

func newInmemSink() *metrics.InmemSink {
	return metrics.NewInmemSink(time.Minute, time.Minute)
}

// counterSum adds up every sample of the counter named key, across labels.
func counterSum(sink *metrics.InmemSink, key []string) float64 {
	name := strings.Join(key, ".")
	var total float64
	for _, interval := range sink.Data() {
		interval.RLock()
		for _, v := range interval.Counters {
			if v.Name == name {
				total += v.Sum
			}
		}
		interval.RUnlock()
	}
	return total
}

func newTestChannel(t *testing.T) (*Channel, *fakeTransport, *metrics.InmemSink) {
	t.Helper()
	tr := newFakeTransport()
	sink := newInmemSink()
	ch, err := New(tr, "host", "frame-1", &Opts{MetricSink: sink})
	if err != nil {
		t.Fatalf("channel:helpers_test - New failed: %v", err)
	}
	return ch, tr, sink
}

func rawParams(params []json.RawMessage) string {
	data, _ := json.Marshal(params)
	return string(data)
}
