package gateway

import (
	"errors"
	"time"
)

// Config represents the configuration for the storefront cart API client
type Config struct {
	// BaseURL is the storefront API root, e.g. http://localhost:8080/api
	BaseURL string

	// Timeout bounds a single HTTP exchange at the transport level
	Timeout time.Duration
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

// TokenSource supplies the bearer token of the current session.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return string(t), nil
}
