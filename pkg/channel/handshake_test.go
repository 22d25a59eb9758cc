package channel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const handshakeTestPrefix = "channel:handshake_test"

func TestWaitForConnect_FiresOnce(t *testing.T) {
	tr := newFakeTransport()
	var got []ConnectParams

	h, err := WaitForConnect(tr, func(p ConnectParams) { got = append(got, p) })
	if err != nil {
		t.Fatalf("%s - WaitForConnect failed: %v", handshakeTestPrefix, err)
	}

	tr.deliver(`{"method":"connect","params":[{"id":"frame-1"},{"locale":"en"}]}`)
	tr.deliver(`{"method":"connect","params":[{"id":"frame-2"}]}`)

	if len(got) != 1 {
		t.Fatalf("%s - callback fired %d times, want 1", handshakeTestPrefix, len(got))
	}
	if got[0].Identity.ID != "frame-1" {
		t.Errorf("%s - Identity.ID = %q, want frame-1", handshakeTestPrefix, got[0].Identity.ID)
	}
	if len(got[0].Init) != 1 || string(got[0].Init[0]) != `{"locale":"en"}` {
		t.Errorf("%s - Init = %s", handshakeTestPrefix, got[0].Init)
	}
	if !h.Done() {
		t.Errorf("%s - Done = false after connect", handshakeTestPrefix)
	}
	if tr.listenerCount() != 0 {
		t.Errorf("%s - handshake still subscribed after connect", handshakeTestPrefix)
	}
}

func TestWaitForConnect_SecondConnectInSamePassIgnored(t *testing.T) {
	tr := newFakeTransport()
	count := 0
	WaitForConnect(tr, func(ConnectParams) { count++ })

	// Grab the listener before it unsubscribes, as a transport that already
	// snapshotted its listeners would.
	tr.mu.Lock()
	listen := tr.listeners[1]
	tr.mu.Unlock()

	listen([]byte(`{"method":"connect","params":[{"id":"a"}]}`))
	listen([]byte(`{"method":"connect","params":[{"id":"b"}]}`))
	if count != 1 {
		t.Errorf("%s - callback fired %d times, want 1", handshakeTestPrefix, count)
	}
}

func TestWaitForConnect_IgnoresOtherTraffic(t *testing.T) {
	tr := newFakeTransport()
	fired := false
	h, _ := WaitForConnect(tr, func(ConnectParams) { fired = true })

	for _, data := range []string{
		`garbage`,
		`{"id":0,"result":"connect"}`,
		`{"id":0,"method":"ping","params":[]}`,
		`{"id":0,"method":"Connect","params":[]}`,
	} {
		tr.deliver(data)
	}
	if fired || h.Done() {
		t.Errorf("%s - handshake accepted a non-connect envelope", handshakeTestPrefix)
	}
	if tr.listenerCount() != 1 {
		t.Errorf("%s - handshake should keep listening", handshakeTestPrefix)
	}
}

func TestWaitForConnect_NoParams(t *testing.T) {
	tr := newFakeTransport()
	var got *ConnectParams
	WaitForConnect(tr, func(p ConnectParams) { got = &p })

	tr.deliver(`{"method":"connect"}`)
	if got == nil {
		t.Fatalf("%s - connect without params not accepted", handshakeTestPrefix)
	}
	if got.Identity.ID != "" || got.Init != nil {
		t.Errorf("%s - unexpected params %+v", handshakeTestPrefix, got)
	}
}

func TestWaitForConnect_Stop(t *testing.T) {
	tr := newFakeTransport()
	fired := false
	h, _ := WaitForConnect(tr, func(ConnectParams) { fired = true })

	stopped, err := h.Stop()
	if err != nil || !stopped {
		t.Fatalf("%s - Stop = %v, %v; want true, nil", handshakeTestPrefix, stopped, err)
	}
	tr.deliver(`{"method":"connect","params":[{"id":"late"}]}`)
	if fired {
		t.Errorf("%s - stopped handshake still fired", handshakeTestPrefix)
	}
}

func TestWaitForConnect_StopAfterConnect(t *testing.T) {
	tr := newFakeTransport()
	h, _ := WaitForConnect(tr, func(ConnectParams) {})
	tr.deliver(`{"method":"connect","params":[{"id":"first"}]}`)

	if stopped, err := h.Stop(); err != nil || stopped {
		t.Errorf("%s - Stop after connect = %v, %v; want false, nil", handshakeTestPrefix, stopped, err)
	}
}

func TestWaitForConnect_SubscribeFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.subErr = errors.New("closed")
	if _, err := WaitForConnect(tr, func(ConnectParams) {}); err == nil {
		t.Fatalf("%s - expected error", handshakeTestPrefix)
	}
}

func TestConnect_BuildsChannel(t *testing.T) {
	tests := []struct {
		name       string
		connect    string
		wantTarget string
	}{
		{"default target", `{"method":"connect","params":[{"id":"frame-1"}]}`, "host"},
		{"announced target", `{"method":"connect","params":[{"id":"frame-1","target":"host-7"}]}`, "host-7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTransport()
			var ch *Channel
			_, err := Connect(tr, "host", func(c *Channel, _ ConnectParams) { ch = c }, &Opts{MetricSink: newInmemSink()})
			if err != nil {
				t.Fatalf("%s - Connect failed: %v", handshakeTestPrefix, err)
			}

			tr.deliver(tt.connect)
			if ch == nil {
				t.Fatalf("%s - no channel produced", handshakeTestPrefix)
			}
			if ch.Target() != tt.wantTarget || ch.Source() != "frame-1" {
				t.Errorf("%s - channel bound to %q as %q", handshakeTestPrefix, ch.Target(), ch.Source())
			}

			ch.Send("ready")
			calls := tr.sent(t)
			if len(calls) != 1 || calls[0].Source != "frame-1" || calls[0].ID != 0 {
				t.Errorf("%s - unexpected first emission %+v", handshakeTestPrefix, calls)
			}
		})
	}
}

func TestConnect_HandlersRegisteredInCallbackSeeNextCall(t *testing.T) {
	tr := newFakeTransport()
	var got []string
	Connect(tr, "host", func(c *Channel, _ ConnectParams) {
		c.AddHandler("hello", func(p []json.RawMessage) { got = append(got, rawParams(p)) })
	}, &Opts{MetricSink: newInmemSink()})

	tr.deliver(`{"method":"connect","params":[{"id":"f"}]}`)
	tr.deliver(`{"source":"h","id":0,"method":"hello","params":["world"]}`)

	if len(got) != 1 || got[0] != `["world"]` {
		t.Errorf("%s - handler saw %v", handshakeTestPrefix, got)
	}
}

func TestAnnounce(t *testing.T) {
	tr := newFakeTransport()
	err := Announce(tr, "frame", Identity{ID: "frame-1", Target: "host"}, map[string]string{"locale": "en"})
	if err != nil {
		t.Fatalf("%s - Announce failed: %v", handshakeTestPrefix, err)
	}

	p := tr.lastPost(t)
	if p.target != "frame" {
		t.Errorf("%s - announced to %q", handshakeTestPrefix, p.target)
	}
	want := `{"method":"connect","params":[{"id":"frame-1","target":"host","version":"1.0.0"},{"locale":"en"}]}`
	if string(p.data) != want {
		t.Errorf("%s - connect = %s, want %s", handshakeTestPrefix, p.data, want)
	}
}

func TestAnnounce_PostFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.postErr = errors.New("down")
	if err := Announce(tr, "frame", Identity{ID: "x"}); err == nil {
		t.Fatalf("%s - expected error", handshakeTestPrefix)
	}
}

func TestAwait_ReturnsChannel(t *testing.T) {
	tr := newFakeTransport()
	go func() {
		for tr.listenerCount() == 0 {
			time.Sleep(time.Millisecond)
		}
		tr.deliver(`{"method":"connect","params":[{"id":"frame-9"}]}`)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	setupRan := false
	ch, params, err := Await(ctx, tr, "host", func(*Channel, ConnectParams) { setupRan = true }, &Opts{MetricSink: newInmemSink()})
	if err != nil {
		t.Fatalf("%s - Await failed: %v", handshakeTestPrefix, err)
	}
	if !setupRan {
		t.Errorf("%s - setup did not run", handshakeTestPrefix)
	}
	if ch.Source() != "frame-9" || params.Identity.ID != "frame-9" {
		t.Errorf("%s - channel source %q, params %+v", handshakeTestPrefix, ch.Source(), params)
	}
}

func TestAwait_ContextEndsWait(t *testing.T) {
	tr := newFakeTransport()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, _, err := Await(ctx, tr, "host", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("%s - err = %v, want deadline exceeded", handshakeTestPrefix, err)
	}
	if tr.listenerCount() != 0 {
		t.Errorf("%s - handshake still subscribed after ctx ended", handshakeTestPrefix)
	}
}
