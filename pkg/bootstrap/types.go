// Package bootstrap loads the init payload the announcing side sends after its identity
// in the connect message.
package bootstrap

import "encoding/json"

// InitConfig is the root init file.
type InitConfig struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Settings is sent as the first init param.
	Settings map[string]interface{} `json:"settings"`
	// Queue holds envelopes the announcing side buffered before connecting; sent as the
	// second init param when present.
	Queue []json.RawMessage `json:"queue,omitempty"`
	// Methods lists what the announcing side answers, for the listener's logs.
	Methods []string `json:"methods,omitempty"`
}

// Params returns the values to pass to channel.Announce after the identity.
func (c *InitConfig) Params() []interface{} {
	params := []interface{}{c.Settings}
	if len(c.Queue) > 0 {
		params = append(params, c.Queue)
	}
	return params
}

// Setting returns one setting, or def when unset.
func (c *InitConfig) Setting(key string, def interface{}) interface{} {
	if v, ok := c.Settings[key]; ok {
		return v
	}
	return def
}
