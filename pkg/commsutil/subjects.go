package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	DefaultSubjectPrefix = "chan"
	SubjectConnected     = "channel.connected"
)

// BuildInboxSubject builds the subject a named channel endpoint receives on. Dots in
// name are flattened so an endpoint is always exactly one token below prefix.
func BuildInboxSubject(prefix, name string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	safe := strings.ReplaceAll(name, ".", "_")
	return fmt.Sprintf("%s.%s", prefix, safe)
}

// BuildConnectedSubject builds the granular connected-event subject for one source.
func BuildConnectedSubject(base, source string) string {
	if base == "" {
		base = SubjectConnected
	}
	return fmt.Sprintf("%s.%s", base, strings.ReplaceAll(source, ".", "_"))
}
