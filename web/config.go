package web

import (
	"net"

	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/utils"
)

// Config configures the status and stream server.
type Config struct {
	Listen   string `json:"listen"`
	Disabled bool   `json:"disabled,omitempty"`
	// MaxWidth downscales streamed frames wider than this. Zero streams at capture size.
	MaxWidth    int `json:"max_width"`
	JPEGQuality int `json:"jpeg_quality"`
}

// DefaultConfig listens on every interface at port 8200.
func DefaultConfig() Config {
	return Config{
		Listen:      ":8200",
		MaxWidth:    640,
		JPEGQuality: 75,
	}
}

// Validate ensures all parts of the config are valid.
func (c Config) Validate(path string) error {
	if c.Disabled {
		return nil
	}
	if c.Listen == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "listen")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "invalid listen address"))
	}
	if c.MaxWidth < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("max_width must be non-negative, got %d", c.MaxWidth))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return utils.NewConfigValidationError(path, errors.Errorf("jpeg_quality must be in [1, 100], got %d", c.JPEGQuality))
	}
	return nil
}
