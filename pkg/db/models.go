package db

import "time"

// Envelope kinds stored in the journal.
const (
	KindCall      = "call"
	KindResponse  = "response"
	KindMalformed = "malformed"
)

// JournalRecord is a row of envelope_journal.
type JournalRecord struct {
	ID         int64     `json:"id"`
	Direction  string    `json:"direction"`
	Peer       string    `json:"peer"`
	Kind       string    `json:"kind"`
	Method     *string   `json:"method,omitempty"`
	EnvelopeID *int64    `json:"envelope_id,omitempty"`
	Source     *string   `json:"source,omitempty"`
	Outcome    *string   `json:"outcome,omitempty"`
	Body       string    `json:"body"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ListEnvelopesParams filters ListEnvelopes. Empty fields match everything.
type ListEnvelopesParams struct {
	Peer      string
	Direction string
	Method    string
	Limit     int
}
