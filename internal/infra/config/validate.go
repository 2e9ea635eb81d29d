package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateUpstream(cfg, ve)
	validateExec(cfg, ve)
	validateLoop(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	if cfg.Server.Addr == "" {
		ve.Add("server.addr must not be empty")
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		ve.Add("server.shutdown_timeout must be > 0")
	}
}

func validateUpstream(cfg *Config, ve *ValidationError) {
	if cfg.Upstream.BaseURL == "" {
		ve.Add("upstream.base_url must not be empty")
	} else if u, err := url.Parse(cfg.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		ve.Add("upstream.base_url %q is not an absolute URL", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.Model == "" {
		ve.Add("upstream.model must not be empty")
	}
	if cfg.Upstream.ConnTimeout <= 0 {
		ve.Add("upstream.conn_timeout must be > 0")
	}
	if cfg.Upstream.CircuitBreaker.Enabled && cfg.Upstream.CircuitBreaker.MaxFailures == 0 {
		ve.Add("upstream.circuit_breaker.max_failures must be > 0 when the breaker is enabled")
	}
}

func validateExec(cfg *Config, ve *ValidationError) {
	if cfg.Exec.Timeout < 0 {
		ve.Add("exec.timeout must be >= 0")
	}
}

func validateLoop(cfg *Config, ve *ValidationError) {
	if cfg.Loop.MaxRestarts <= 0 {
		ve.Add("loop.max_restarts must be > 0")
	}
	if cfg.Loop.EstimateTokens && cfg.Loop.TokenEncoding == "" {
		ve.Add("loop.token_encoding must be set when loop.estimate_tokens is enabled")
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLogLevels[cfg.Logger.Level] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	switch cfg.Logger.Output {
	case "", "stderr", "stdout":
	default:
		// Anything else is treated as a file path; nothing to check here.
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "noop":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, noop)", cfg.Tracer.Exporter)
	}
}
