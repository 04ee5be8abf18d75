// Package config provides configuration for the advisor relay.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ModeMock makes every backend answer with canned replies.
const ModeMock = "MOCK"

// Config holds the relay configuration.
type Config struct {
	// Server settings
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Upstream: Gemini. A missing key is reported per request, not at startup.
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`

	// Upstream: local model server
	OllamaURL string `env:"OLLAMA_URL" envDefault:"http://127.0.0.1:11434"`

	// Zero keeps the transport default.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"0s"`

	// Relay call audit database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:advisor.db?cache=shared&mode=rwc"`

	// Provider table override; empty uses the built-in table.
	ProvidersFile string `env:"PROVIDERS_FILE"`

	// Audit rows still STARTED after StaleCallAfter are marked ABANDONED.
	StaleCallAfter     time.Duration `env:"STALE_CALL_AFTER" envDefault:"10m"`
	StaleSweepInterval time.Duration `env:"STALE_SWEEP_INTERVAL" envDefault:"1m"`

	MaxAttachmentBytes int64 `env:"MAX_ATTACHMENT_BYTES" envDefault:"10485760"`

	// Requests per second per client IP; 0 disables limiting.
	RateLimitRPS float64 `env:"RATE_LIMIT_RPS" envDefault:"0"`

	// WebSocket settings
	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSReadTimeout  time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`

	Mode     string `env:"ADVISOR_MODE"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// MockMode reports whether canned upstream replies are enabled.
func (c *Config) MockMode() bool {
	return strings.EqualFold(c.Mode, ModeMock)
}

// MaxFrameBytes is the largest WebSocket frame accepted from a client.
func (c *Config) MaxFrameBytes() int64 {
	return c.MaxAttachmentBytes*4/3 + 2<<20
}

// BodyLimit is the echo body-limit string covering the largest allowed
// attachment plus room for the transcript and multipart framing.
func (c *Config) BodyLimit() string {
	// base64 in JSON bodies inflates the file by 4/3
	return fmt.Sprintf("%dK", c.MaxFrameBytes()/1024+1)
}
