package commsutil

import (
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes an event body for publishing.
func EncodePayload(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode %T: %w", codecLogPrefix, v, err)
	}
	return data, nil
}

// DecodeMsg decodes the body of a COMMS message into a T.
func DecodeMsg[T any](msg *comms.Msg) (T, error) {
	var out T
	if err := json.Unmarshal(msg.Data, &out); err != nil {
		return out, fmt.Errorf("%s - failed to decode message on %s: %w", codecLogPrefix, msg.Subject, err)
	}
	return out, nil
}
