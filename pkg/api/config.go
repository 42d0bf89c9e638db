package api

import (
	"net/url"
	"strings"

	"github.com/jingkaihe/netmock/internal/errx"
)

// Unhandled strategy names understood by the engine.
const (
	UnhandledBypass = "bypass"
	UnhandledWarn   = "warn"
	UnhandledError  = "error"
)

const DefaultUnhandled = UnhandledWarn

// Config holds the ambient settings shared by the engine and transports.
type Config struct {
	// BaseURL rebases relative handler paths. Empty means relative paths
	// never match.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// OnUnhandled names the unhandled-request strategy.
	OnUnhandled string `json:"on_unhandled,omitempty" yaml:"on_unhandled,omitempty"`
	// Quiet disables the per-response handler log line.
	Quiet bool `json:"quiet,omitempty" yaml:"quiet,omitempty"`
}

// Validate normalizes c and reports unusable values.
func (c *Config) Validate() error {
	c.OnUnhandled = strings.ToLower(strings.TrimSpace(c.OnUnhandled))
	switch c.OnUnhandled {
	case "":
		c.OnUnhandled = DefaultUnhandled
	case UnhandledBypass, UnhandledWarn, UnhandledError:
	default:
		return errx.With(ErrInvalidConfig, ": on_unhandled must be one of bypass, warn, error (got %q)", c.OnUnhandled)
	}

	c.BaseURL = strings.TrimSpace(c.BaseURL)
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return errx.With(ErrInvalidConfig, ": base_url: %v", err)
		}
		if !u.IsAbs() || u.Host == "" {
			return errx.With(ErrInvalidConfig, ": base_url must be absolute (got %q)", c.BaseURL)
		}
	}
	return nil
}
