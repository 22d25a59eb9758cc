package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const logPrefix = "bootstrap:loader"

// LoadInitConfig loads the init file. It tries any paths passed in, then
// CHANNEL_INIT_FILE, then the defaults, and falls back to GetDefaultInitConfig.
// Unreadable or malformed files are skipped.
func LoadInitConfig(paths ...string) (*InitConfig, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("CHANNEL_INIT_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/init.json", "init.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var cfg InitConfig
		if err := json.Unmarshal(data, &cfg); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse init file %s: %v", logPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded init config from %s", logPrefix, p))
		return MergeInitConfigs(GetDefaultInitConfig(), &cfg), nil
	}

	slog.Info(fmt.Sprintf("%s - Using default init config", logPrefix))
	return GetDefaultInitConfig(), nil
}

// GetDefaultInitConfig returns the built-in init payload.
func GetDefaultInitConfig() *InitConfig {
	return &InitConfig{
		Name:        "frame-channel",
		Description: "Default channel init payload",
		Settings: map[string]interface{}{
			"locale":    "en",
			"heartbeat": false,
		},
		Methods: []string{"ping", "sum", "echo"},
	}
}

// MergeInitConfigs overlays override onto base. Settings merge key by key; the other
// fields replace base when set.
func MergeInitConfigs(base, override *InitConfig) *InitConfig {
	merged := *base

	merged.Settings = make(map[string]interface{}, len(base.Settings)+len(override.Settings))
	for k, v := range base.Settings {
		merged.Settings[k] = v
	}
	for k, v := range override.Settings {
		merged.Settings[k] = v
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Description != "" {
		merged.Description = override.Description
	}
	if override.Queue != nil {
		merged.Queue = override.Queue
	}
	if override.Methods != nil {
		merged.Methods = override.Methods
	}
	return &merged
}
