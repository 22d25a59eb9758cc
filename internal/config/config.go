// Package config provides bridge configuration loaded from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds frame-channel bridge configuration.
type Config struct {
	// COMMS: connect to NATS at COMMSURL, or run one in-process when COMMSEmbedded is set.
	COMMSURL          string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName         string `envconfig:"SERVICE_NAME" default:"frame-channel"`
	COMMSEmbedded     bool   `envconfig:"COMMS_EMBEDDED" default:"false"`
	COMMSEmbeddedPort int    `envconfig:"COMMS_EMBEDDED_PORT" default:"4222"`

	// Channel addressing. Each side receives on <prefix>.<name>.
	SubjectPrefix      string `envconfig:"CHANNEL_SUBJECT_PREFIX" default:"chan"`
	FrameName          string `envconfig:"CHANNEL_FRAME_NAME" default:"frame"`
	HostName           string `envconfig:"CHANNEL_HOST_NAME" default:"host"`
	ProtocolConstraint string `envconfig:"CHANNEL_PROTOCOL_CONSTRAINT" default:"1"`
	ConnectedSubject   string `envconfig:"CHANNEL_CONNECTED_SUBJECT"`
	InitFile           string `envconfig:"CHANNEL_INIT_FILE"`
	// HandshakeTimeout bounds how long the frame waits for connect. Zero waits forever.
	HandshakeTimeout time.Duration `envconfig:"CHANNEL_HANDSHAKE_TIMEOUT" default:"0s"`

	// Database (envelope journal). Empty disables journaling for frame/host.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health and metrics endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`
	MetricsInterval    time.Duration `envconfig:"METRICS_INTERVAL" default:"10s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ValidateForServe checks required config when running a channel endpoint.
func (c *Config) ValidateForServe() error {
	if c.FrameName == "" || c.HostName == "" {
		return fmt.Errorf("%s - CHANNEL_FRAME_NAME and CHANNEL_HOST_NAME are required", logPrefix)
	}
	if c.FrameName == c.HostName {
		return fmt.Errorf("%s - CHANNEL_FRAME_NAME and CHANNEL_HOST_NAME must differ", logPrefix)
	}
	if !c.COMMSEmbedded && c.COMMSURL == "" {
		return fmt.Errorf("%s - COMMS_URL is required unless COMMS_EMBEDDED is set", logPrefix)
	}
	if c.HandshakeTimeout < 0 {
		return fmt.Errorf("%s - CHANNEL_HANDSHAKE_TIMEOUT must not be negative", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("%s - METRICS_INTERVAL must be positive", logPrefix)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%s - LOG_LEVEL %q is not one of debug|info|warn|error", logPrefix, c.LogLevel)
	}
	return nil
}

// ValidateForDB checks required config for DB commands (migrate, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}

// JournalEnabled reports whether frame/host should journal envelopes.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
}
