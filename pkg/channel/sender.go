package channel

import (
	"encoding/json"
	"fmt"

	"github.com/morezero/frame-channel/pkg/envelope"
	"github.com/morezero/frame-channel/pkg/transport"
)

const senderLogPrefix = "channel:sender"

// sender numbers and emits call envelopes for one channel.
// The counter is guarded by the owning Channel's mutex.
type sender struct {
	source string
	target string
	t      transport.Transport
	next   uint64
}

func newSender(t transport.Transport, target, source string) *sender {
	return &sender{t: t, target: target, source: source}
}

// reserve hands out the next request id. Ids are never reused, even when emission fails.
func (s *sender) reserve() uint64 {
	id := s.next
	s.next++
	return id
}

// emit posts {source, id, method, params} to the target exactly once.
func (s *sender) emit(id uint64, method string, params []json.RawMessage) error {
	data, err := envelope.Encode(&envelope.Call{
		Source: s.source,
		ID:     id,
		Method: method,
		Params: params,
		HasID:  true,
	})
	if err != nil {
		return err
	}
	if err := s.t.Post(s.target, data); err != nil {
		return fmt.Errorf("%s - failed to post %s (id=%d): %w", senderLogPrefix, method, id, err)
	}
	return nil
}

// reply posts a response envelope to the target.
func (s *sender) reply(resp *envelope.Response) error {
	data, err := envelope.Encode(resp)
	if err != nil {
		return err
	}
	if err := s.t.Post(s.target, data); err != nil {
		return fmt.Errorf("%s - failed to post response (id=%d): %w", senderLogPrefix, resp.ID, err)
	}
	return nil
}
