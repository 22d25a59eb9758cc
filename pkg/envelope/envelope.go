// Package envelope defines the wire shapes exchanged between two channel endpoints.
//
// A call carries {source, id, method, params}; a response carries {id, result} or
// {id, error}. Field presence, not a type tag, tells them apart, so inbound bytes are
// parsed once into either a *Call or a *Response before anything routes them.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

const logPrefix = "envelope:envelope"

// ConnectMethod is the reserved method name of the handshake announcement.
const ConnectMethod = "connect"

var (
	ErrNotObject     = errors.New("envelope: payload is not a JSON object")
	ErrInvalidMethod = errors.New("envelope: method is not a string")
	ErrInvalidID     = errors.New("envelope: id is not a non-negative integer")
	ErrInvalidParams = errors.New("envelope: params is not an array")
)

// Envelope is either a *Call or a *Response.
type Envelope interface {
	envelope()
}

// Call is an inbound or outbound method invocation.
type Call struct {
	Source string            `json:"source,omitempty"`
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	// HasID is false for a parsed call that carried no id, such as a connect announcement.
	HasID bool `json:"-"`
}

func (*Call) envelope() {}

// Outcome says which of result or error a response carries.
type Outcome int

const (
	// OutcomeNone is a degenerate response with neither field.
	OutcomeNone Outcome = iota
	OutcomeResult
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeResult:
		return "result"
	case OutcomeError:
		return "error"
	default:
		return "none"
	}
}

// Response settles an earlier call with the same ID.
type Response struct {
	ID      uint64
	Outcome Outcome
	// Payload holds the raw result or error value, untouched.
	Payload json.RawMessage
}

func (*Response) envelope() {}

// Result builds a response fulfilling call id with value.
func Result(id uint64, value json.RawMessage) *Response {
	return &Response{ID: id, Outcome: OutcomeResult, Payload: value}
}

// Error builds a response rejecting call id with payload.
func Error(id uint64, payload json.RawMessage) *Response {
	return &Response{ID: id, Outcome: OutcomeError, Payload: payload}
}

// MarshalJSON writes {id, result} or {id, error}.
func (r *Response) MarshalJSON() ([]byte, error) {
	payload := r.Payload
	if payload == nil {
		payload = json.RawMessage("null")
	}
	switch r.Outcome {
	case OutcomeResult:
		return json.Marshal(struct {
			ID     uint64          `json:"id"`
			Result json.RawMessage `json:"result"`
		}{r.ID, payload})
	case OutcomeError:
		return json.Marshal(struct {
			ID    uint64          `json:"id"`
			Error json.RawMessage `json:"error"`
		}{r.ID, payload})
	default:
		return json.Marshal(struct {
			ID uint64 `json:"id"`
		}{r.ID})
	}
}

// Encode serializes a call or response for the transport.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode envelope: %w", logPrefix, err)
	}
	return data, nil
}

// NewCall builds a call, encoding every param to JSON.
func NewCall(source string, id uint64, method string, params ...interface{}) (*Call, error) {
	raw, err := EncodeParams(params)
	if err != nil {
		return nil, err
	}
	return &Call{Source: source, ID: id, Method: method, Params: raw, HasID: true}, nil
}

// EncodeParams converts arbitrary values into raw JSON params. Values that already are
// json.RawMessage pass through unchanged.
func EncodeParams(params []interface{}) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, 0, len(params))
	for i, p := range params {
		if r, ok := p.(json.RawMessage); ok {
			raw = append(raw, r)
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to encode param %d: %w", logPrefix, i, err)
		}
		raw = append(raw, data)
	}
	return raw, nil
}

// Parse classifies raw bytes. A non-empty string method makes a call; anything else is a
// response, whose outcome is decided by the presence of "result" then "error".
func Parse(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, ErrNotObject
	}

	method, err := parseMethod(fields["method"])
	if err != nil {
		return nil, err
	}

	if method != "" {
		call := &Call{Method: method}
		if raw, ok := fields["id"]; ok {
			if call.ID, err = parseID(raw); err != nil {
				return nil, err
			}
			call.HasID = true
		}
		if raw, ok := fields["source"]; ok && !isNull(raw) {
			if err := json.Unmarshal(raw, &call.Source); err != nil {
				return nil, fmt.Errorf("%s - source: %w", logPrefix, err)
			}
		}
		if raw, ok := fields["params"]; ok && !isNull(raw) {
			if err := json.Unmarshal(raw, &call.Params); err != nil {
				return nil, ErrInvalidParams
			}
		}
		return call, nil
	}

	raw, ok := fields["id"]
	if !ok {
		return nil, ErrInvalidID
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, err
	}
	resp := &Response{ID: id}
	if v, ok := fields["result"]; ok {
		resp.Outcome = OutcomeResult
		resp.Payload = v
	} else if v, ok := fields["error"]; ok {
		resp.Outcome = OutcomeError
		resp.Payload = v
	}
	return resp, nil
}

func parseMethod(raw json.RawMessage) (string, error) {
	if raw == nil || isNull(raw) {
		return "", nil
	}
	var method string
	if err := json.Unmarshal(raw, &method); err != nil {
		return "", ErrInvalidMethod
	}
	return method, nil
}

func parseID(raw json.RawMessage) (uint64, error) {
	var id uint64
	if err := json.Unmarshal(raw, &id); err != nil {
		return 0, ErrInvalidID
	}
	return id, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
