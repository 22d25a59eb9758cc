package channel

import (
	"log/slog"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricCallsIssued       = []string{"channel", "call", "issued", "count"}
	MetricSendsIssued       = []string{"channel", "send", "issued", "count"}
	MetricResponsesSettled  = []string{"channel", "response", "settled", "count"}
	MetricResponsesSent     = []string{"channel", "response", "sent", "count"}
	MetricHandlersInvoked   = []string{"channel", "handler", "invoked", "count"}
	MetricEnvelopesDropped  = []string{"channel", "envelope", "dropped", "count"}
	MetricPendingCalls      = []string{"channel", "call", "pending"}
	MetricHandshakeAccepted = []string{"channel", "handshake", "accepted", "count"}
)

type TelemetryLabel string

var (
	LabelMethod  TelemetryLabel = "method"
	LabelOutcome TelemetryLabel = "outcome"
	LabelReason  TelemetryLabel = "reason"
	LabelSource  TelemetryLabel = "source"
)

// Drop reasons.
const (
	ReasonNoHandler = "no_handler"
	ReasonUnknownID = "unknown_id"
	ReasonMalformed = "malformed"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}
