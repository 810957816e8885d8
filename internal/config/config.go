// Package config provides configuration for the messenger service.
package config

import (
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the messenger configuration.
type Config struct {
	// Server settings
	HTTPPort int `env:"HTTP_PORT,default=8080"`

	// Database
	DatabaseURL string `env:"DATABASE_URL,default=file:messenger.db?cache=shared&mode=rwc"`

	// Auth settings
	JWTSecret           string        `env:"JWT_SECRET"`
	JWTIssuer           string        `env:"JWT_ISSUER,default=messenger"`
	AdmissionPolicyFile string        `env:"ADMISSION_POLICY_FILE"`
	AuthTimeout         time.Duration `env:"WS_AUTH_TIMEOUT,default=10s"`

	// WebSocket settings
	PingInterval    time.Duration `env:"WS_PING_INTERVAL,default=30s"`
	WriteTimeout    time.Duration `env:"WS_WRITE_TIMEOUT,default=10s"`
	ReadTimeout     time.Duration `env:"WS_READ_TIMEOUT,default=60s"`
	MaxMessageSize  int64         `env:"WS_MAX_MESSAGE_SIZE,default=65536"`
	SendBufferSize  int           `env:"WS_SEND_BUFFER_SIZE,default=256"`
	EventsPerSecond int           `env:"WS_EVENTS_PER_SECOND,default=20"`
	EventBurst      int           `env:"WS_EVENT_BURST,default=50"`

	// Chat settings
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT,default=5s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER_SIZE must be positive, got %d", c.SendBufferSize)
	}
	if c.MaxContentLength <= 0 {
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	}
	return nil
}
