// Package events defines channel lifecycle events and the publishers that emit them.
package events

import "time"

// ChannelConnectedEvent is emitted by the listening side once a handshake completes.
type ChannelConnectedEvent struct {
	// Source is the identity the connected channel stamps on its calls.
	Source    string `json:"source"`
	Target    string `json:"target"`
	Version   string `json:"version,omitempty"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

// NewChannelConnectedEvent fills the timestamp with the current UTC time.
func NewChannelConnectedEvent(role, source, target, version string) *ChannelConnectedEvent {
	return &ChannelConnectedEvent{
		Source:    source,
		Target:    target,
		Version:   version,
		Role:      role,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
