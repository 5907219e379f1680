// Package api provides the HTTP API for managing assets and their mounted
// files.
package api

import (
	"os"
	"time"

	"github.com/filemount/filemount/internal/bytesize"
)

// EnvJWTSecret is the environment variable that overrides the configured
// JWT secret.
const EnvJWTSecret = "FILEMOUNT_API_JWT_SECRET"

// Config configures the HTTP API server.
type Config struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body.
	// Default: 30s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// Default: 30s
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request when
	// keep-alives are enabled.
	// Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// MaxUploadSize caps the multipart request body size.
	// Default: 512MB
	MaxUploadSize bytesize.ByteSize `mapstructure:"max_upload_size" yaml:"max_upload_size,omitempty"`

	// JWT configures bearer token authentication. An empty secret (and no
	// FILEMOUNT_API_JWT_SECRET env var) disables authentication, which is
	// only sensible for local development.
	JWT JWTConfig `mapstructure:"jwt" yaml:"jwt"`
}

// JWTConfig configures JWT token generation and validation.
type JWTConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	// The FILEMOUNT_API_JWT_SECRET environment variable takes precedence.
	Secret string `mapstructure:"secret" yaml:"secret,omitempty"`

	// Issuer is the token issuer claim.
	// Default: "filemount"
	Issuer string `mapstructure:"issuer" yaml:"issuer,omitempty"`

	// TokenDuration is the lifetime of issued tokens.
	// Default: 24h
	TokenDuration time.Duration `mapstructure:"token_duration" yaml:"token_duration,omitempty"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = 512 * bytesize.MB
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "filemount"
	}
	if c.JWT.TokenDuration == 0 {
		c.JWT.TokenDuration = 24 * time.Hour
	}
}

// GetJWTSecret returns the JWT secret, preferring the environment variable
// over the config file value.
func (c *Config) GetJWTSecret() string {
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		return secret
	}
	return c.JWT.Secret
}
