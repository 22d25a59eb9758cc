package channel

import (
	"fmt"
	"log/slog"

	"github.com/morezero/frame-channel/pkg/envelope"
)

const dispatcherLogPrefix = "channel:dispatcher"

// onMessage is the channel's transport listener.
func (c *Channel) onMessage(data []byte) {
	env, err := envelope.Parse(data)
	if err != nil {
		slog.Debug(fmt.Sprintf("%s - dropping undecodable envelope: %v", dispatcherLogPrefix, err))
		c.msink.IncrCounterWithLabels(MetricEnvelopesDropped, 1, c.labelsWith(LabelReason.M(ReasonMalformed)))
		return
	}
	c.dispatch(env)
}

// dispatch routes a call to its handlers or a response to its pending future.
func (c *Channel) dispatch(env envelope.Envelope) {
	switch e := env.(type) {
	case *envelope.Call:
		c.dispatchCall(e)
	case *envelope.Response:
		c.dispatchResponse(e)
	}
}

func (c *Channel) dispatchCall(call *envelope.Call) {
	c.mu.Lock()
	sig, ok := c.handlers[call.Method]
	c.mu.Unlock()

	if !ok {
		slog.Debug(fmt.Sprintf("%s - no handler for %s, dropping", dispatcherLogPrefix, call.Method),
			LabelSource.L(call.Source))
		c.msink.IncrCounterWithLabels(MetricEnvelopesDropped, 1, c.labelsWith(LabelReason.M(ReasonNoHandler)))
		return
	}

	n := sig.Dispatch(call)
	c.msink.IncrCounterWithLabels(MetricHandlersInvoked, float32(n), c.labelsWith(LabelMethod.M(call.Method)))
}

func (c *Channel) dispatchResponse(resp *envelope.Response) {
	c.mu.Lock()
	f, ok := c.pending.take(resp.ID)
	pending := c.pending.len()
	c.mu.Unlock()

	if !ok {
		slog.Debug(fmt.Sprintf("%s - no pending call for id=%d, dropping", dispatcherLogPrefix, resp.ID))
		c.msink.IncrCounterWithLabels(MetricEnvelopesDropped, 1, c.labelsWith(LabelReason.M(ReasonUnknownID)))
		return
	}
	c.msink.SetGaugeWithLabels(MetricPendingCalls, float32(pending), c.labels)

	switch resp.Outcome {
	case envelope.OutcomeResult:
		f.Fulfil(resp.Payload)
	case envelope.OutcomeError:
		f.Reject(resp.Payload)
	default:
		// Evicted without settling: the future stays pending for good.
		slog.Debug(fmt.Sprintf("%s - response id=%d carries neither result nor error", dispatcherLogPrefix, resp.ID))
	}
	c.msink.IncrCounterWithLabels(MetricResponsesSettled, 1, c.labelsWith(LabelOutcome.M(resp.Outcome.String())))
}
