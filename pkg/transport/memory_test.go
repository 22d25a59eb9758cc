package transport

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

const memoryTestPrefix = "transport:memory_test"

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - timeout waiting for delivery", memoryTestPrefix)
		return ""
	}
}

func TestBus_PostDeliversToTarget(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	host := bus.Endpoint("host")
	frame := bus.Endpoint("frame")

	got := make(chan string, 1)
	if _, err := frame.Subscribe(func(data []byte) { got <- string(data) }); err != nil {
		t.Fatalf("%s - subscribe failed: %v", memoryTestPrefix, err)
	}

	if err := host.Post("frame", []byte(`{"id":1}`)); err != nil {
		t.Fatalf("%s - post failed: %v", memoryTestPrefix, err)
	}
	if v := waitFor(t, got); v != `{"id":1}` {
		t.Errorf("%s - delivered %q", memoryTestPrefix, v)
	}
}

func TestBus_BroadcastInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	frame := bus.Endpoint("frame")
	var mu sync.Mutex
	var order []string
	done := make(chan string, 1)

	frame.Subscribe(func([]byte) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	frame.Subscribe(func([]byte) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		done <- "ok"
	})

	bus.Endpoint("host").Post("frame", []byte("x"))
	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(order, []string{"first", "second"}) {
		t.Errorf("%s - order = %v", memoryTestPrefix, order)
	}
}

func TestBus_MessagesProcessedSerially(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	frame := bus.Endpoint("frame")
	got := make(chan string, 3)
	frame.Subscribe(func(data []byte) { got <- string(data) })

	host := bus.Endpoint("host")
	for _, m := range []string{"a", "b", "c"} {
		host.Post("frame", []byte(m))
	}
	for _, want := range []string{"a", "b", "c"} {
		if v := waitFor(t, got); v != want {
			t.Errorf("%s - got %q, want %q", memoryTestPrefix, v, want)
		}
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	frame := bus.Endpoint("frame")
	removed := make(chan string, 1)
	kept := make(chan string, 2)

	sub, _ := frame.Subscribe(func(data []byte) { removed <- string(data) })
	frame.Subscribe(func(data []byte) { kept <- string(data) })
	sub.Unsubscribe()

	bus.Endpoint("host").Post("frame", []byte("x"))
	waitFor(t, kept)

	select {
	case <-removed:
		t.Errorf("%s - unsubscribed listener was called", memoryTestPrefix)
	default:
	}
}

func TestBus_UnsubscribeInsideListenerSkipsLaterRemoved(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	frame := bus.Endpoint("frame")
	calls := make(chan string, 4)
	var second Subscription

	frame.Subscribe(func([]byte) {
		second.Unsubscribe()
		calls <- "first"
	})
	second, _ = frame.Subscribe(func([]byte) { calls <- "second" })
	frame.Subscribe(func([]byte) { calls <- "third" })

	bus.Endpoint("host").Post("frame", []byte("x"))
	if v := waitFor(t, calls); v != "first" {
		t.Fatalf("%s - got %q, want first", memoryTestPrefix, v)
	}
	if v := waitFor(t, calls); v != "third" {
		t.Errorf("%s - got %q, want third", memoryTestPrefix, v)
	}
}

func TestBus_PostToUnknownTargetIsDropped(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	if err := bus.Endpoint("host").Post("nobody", []byte("x")); err != nil {
		t.Errorf("%s - unexpected error: %v", memoryTestPrefix, err)
	}
}

func TestBus_ClosedEndpoint(t *testing.T) {
	bus := NewBus()
	host := bus.Endpoint("host")
	bus.Close()

	if err := host.Post("frame", []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("%s - Post err = %v, want ErrClosed", memoryTestPrefix, err)
	}
	if _, err := host.Subscribe(func([]byte) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("%s - Subscribe err = %v, want ErrClosed", memoryTestPrefix, err)
	}
}

func TestBus_ListenersPostingToEachOtherDoNotStall(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	host := bus.Endpoint("host")
	frame := bus.Endpoint("frame")

	// Each side answers every request from its listener, so both delivery goroutines
	// post into each other's queue while the test floods both with requests.
	const n = 4000
	answered := make(chan struct{}, 2*n)
	reply := func(self *Endpoint, peer string) Listener {
		return func(data []byte) {
			if string(data) == "req" {
				if err := self.Post(peer, []byte("resp")); err != nil {
					t.Errorf("%s - reply post failed: %v", memoryTestPrefix, err)
				}
				return
			}
			answered <- struct{}{}
		}
	}
	host.Subscribe(reply(host, "frame"))
	frame.Subscribe(reply(frame, "host"))

	posted := make(chan struct{})
	go func() {
		defer close(posted)
		for i := 0; i < n; i++ {
			host.Post("frame", []byte("req"))
			frame.Post("host", []byte("req"))
		}
	}()

	select {
	case <-posted:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s - Post blocked", memoryTestPrefix)
	}
	for i := 0; i < 2*n; i++ {
		select {
		case <-answered:
		case <-time.After(5 * time.Second):
			t.Fatalf("%s - only %d of %d responses delivered", memoryTestPrefix, i, 2*n)
		}
	}
}
