// Package config loads the relay's runtime configuration from the
// environment and the upstream account credentials from a local file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/tidwall/jsonc"
)

const DefaultCredentialsPath = ".sepha.json"

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	Addr              string        `env:"SEPHA_ADDR,default=:8080" validate:"required"`
	BasePath          string        `env:"SEPHA_BASE_PATH,default=auth" validate:"required,excludesall=/"`
	Issuer            string        `env:"SEPHA_ISSUER,default=sepha" validate:"required"`
	PrivateKeyPath    string        `env:"SEPHA_PRIVATE_KEY_PATH,default=private.der" validate:"required"`
	UpstreamURL       string        `env:"SEPHA_UPSTREAM_URL,default=https://plug.dj" validate:"required,url"`
	UpstreamTimeout   time.Duration `env:"SEPHA_UPSTREAM_TIMEOUT,default=10s" validate:"gt=0"`
	PublicTokenLength int           `env:"SEPHA_PUBLIC_TOKEN_LENGTH,default=64" validate:"min=16,max=256"`
	AllowedOrigins    string        `env:"SEPHA_ALLOWED_ORIGINS,default=*"`
	LogLevel          string        `env:"SEPHA_LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	EventsTopic       string        `env:"SEPHA_EVENTS_TOPIC,default=sepha.auth" validate:"required"`

	// RedisURL enables publishing audit events to a Redis stream. ENV: REDIS_URL
	RedisURL string `env:"REDIS_URL" validate:"omitempty,url"`
}

// Credentials is the relay's own plug.dj account.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := validateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Origins returns the CORS allowed origins.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LoadCredentials reads the credentials file. The file is JSON and may
// contain comments and trailing commas.
func LoadCredentials(path string) (*Credentials, error) {
	if path == "" {
		path = DefaultCredentialsPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(jsonc.ToJSON(data), &creds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := validateStruct(&creds); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &creds, nil
}
