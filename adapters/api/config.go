package api

import (
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds configuration for the statistics service client
type ClientConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
	// LongTimeout is the deadline for calls that declare an extended one.
	LongTimeout time.Duration `json:"long_timeout"`
}

// DefaultClientConfig returns sensible defaults for a local statistics service
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:     "http://localhost:5000",
		Timeout:     30 * time.Second,
		LongTimeout: 60 * time.Second,
	}
}

// Validate checks if the configuration is valid
func (c ClientConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: "BaseURL", Message: fmt.Sprintf("%q is not an absolute URL", c.BaseURL)}
	}
	if c.Timeout <= 0 {
		return &ValidationError{Field: "Timeout", Message: "must be positive"}
	}
	if c.LongTimeout <= 0 {
		return &ValidationError{Field: "LongTimeout", Message: "must be positive"}
	}
	return nil
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
