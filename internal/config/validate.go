package config

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/lanternops/mjpegrc/internal/logging"
)

var log = logging.L("config")

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ValidationResult separates fatal errors (block startup) from warnings
// (logged, then clamped to a safe default).
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

func (r ValidationResult) HasFatals() bool {
	return len(r.Fatals) > 0
}

// AllErrors returns fatals followed by warnings, for callers that just want
// a flat list to log or display.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. Zero/negative
// values that would make the rate controller panic or divide by zero are
// clamped to safe defaults and reported as warnings; malformed identity
// fields are fatal since they mean the session can't be addressed at all.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("server_url %q is not a valid URL: %w", c.ServerURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			r.Fatals = append(r.Fatals, fmt.Errorf("server_url scheme must be http or https, got %q", u.Scheme))
		}
	}

	if c.AuthToken != "" {
		for _, ch := range c.AuthToken {
			if unicode.IsControl(ch) {
				r.Fatals = append(r.Fatals, fmt.Errorf("auth_token contains control characters"))
				break
			}
		}
	}

	if c.StartingBitRateBps == 0 {
		r.Warnings = append(r.Warnings, fmt.Errorf("starting_bit_rate_bps is 0, defaulting to 8000000"))
		c.StartingBitRateBps = 8_000_000
	}

	if c.MaxBitRateBps != 0 && c.MinBitRateBps > c.MaxBitRateBps {
		r.Warnings = append(r.Warnings, fmt.Errorf(
			"min_bit_rate_bps %d exceeds max_bit_rate_bps %d, swapping", c.MinBitRateBps, c.MaxBitRateBps))
		c.MinBitRateBps, c.MaxBitRateBps = c.MaxBitRateBps, c.MinBitRateBps
	}

	if c.MaxFPS < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_fps %d is below minimum 1, clamping", c.MaxFPS))
		c.MaxFPS = 1
	} else if c.MaxFPS > 25 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_fps %d exceeds maximum 25, clamping", c.MaxFPS))
		c.MaxFPS = 25
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.MaxConcurrentSessions < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_concurrent_sessions %d is below minimum 1, clamping", c.MaxConcurrentSessions))
		c.MaxConcurrentSessions = 1
	}
	if c.SessionQueueSize < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("session_queue_size %d is below minimum 1, clamping", c.SessionQueueSize))
		c.SessionQueueSize = 1
	}

	return r
}
