package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/morezero/frame-channel/pkg/channel"
)

const respondersLogPrefix = "server:responders"

// methodTable is what every bridge endpoint answers.
func methodTable(role Role) map[string]channel.Responder {
	table := map[string]channel.Responder{
		"ping": func(context.Context, []json.RawMessage) (interface{}, error) {
			return "pong", nil
		},
		"echo": func(_ context.Context, params []json.RawMessage) (interface{}, error) {
			if params == nil {
				params = []json.RawMessage{}
			}
			return params, nil
		},
		"sum": func(_ context.Context, params []json.RawMessage) (interface{}, error) {
			var total float64
			for i, p := range params {
				var n float64
				if err := json.Unmarshal(p, &n); err != nil {
					return nil, fmt.Errorf("param %d is not a number: %s", i, p)
				}
				total += n
			}
			return total, nil
		},
	}
	names := make([]string, 0, len(table)+1)
	for name := range table {
		names = append(names, name)
	}
	names = append(names, "methods")
	sort.Strings(names)
	table["methods"] = func(context.Context, []json.RawMessage) (interface{}, error) {
		return map[string]interface{}{"role": role, "methods": names}, nil
	}
	return table
}

// registerResponders wires the method table and the notify handler onto ch.
func registerResponders(ch *channel.Channel, role Role) {
	for name, r := range methodTable(role) {
		ch.AddResponder(name, r)
	}
	ch.AddHandler("notify", func(params []json.RawMessage) {
		data, _ := json.Marshal(params)
		slog.Info(fmt.Sprintf("%s - %s notified by %s: %s", respondersLogPrefix, role, ch.Target(), data))
	})
}
