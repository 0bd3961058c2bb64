// Package config loads Superego's server configuration: an optional YAML
// file overlaid with SUPEREGO_* environment variables. A missing file is
// not an error (it yields the built-in defaults), following the teacher's
// LoadScanConfig convention for its own .nox.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/superego-run/superego/core/advisor"
)

// Config is the server's top-level configuration.
type Config struct {
	RulesFile         string        `yaml:"rules_file"`
	LogLevel          string        `yaml:"log_level"`
	AdvisorTimeout    time.Duration `yaml:"advisor_timeout"`
	SampleFailureMode string        `yaml:"sample_failure_mode"`
	AdvisorModel      string        `yaml:"advisor_model"`
	AdvisorBaseURL    string        `yaml:"advisor_base_url"`
	AdvisorRateRPS    float64       `yaml:"advisor_rate_rps"`
	AdvisorRateBurst  int           `yaml:"advisor_rate_burst"`
	HTTPAddr          string        `yaml:"http_addr"`
	WebSocketAddr     string        `yaml:"websocket_addr"`
}

// defaults mirror the documented component defaults from spec.md §4.5/§4.7.
func defaults() Config {
	return Config{
		RulesFile:         "rules.yaml",
		LogLevel:          "info",
		AdvisorTimeout:    10 * time.Second,
		SampleFailureMode: string(advisor.FailDeny),
		AdvisorModel:      "gpt-4o",
		AdvisorRateRPS:    8,
		AdvisorRateBurst:  16,
		HTTPAddr:          ":8080",
		WebSocketAddr:     ":8081",
	}
}

// Load reads path (if it exists) and overlays SUPEREGO_* environment
// variables on top. A missing file is not an error: Load falls back to
// documented defaults, then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// no config file: defaults stand.
		default:
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	overlayEnv(&cfg)
	return &cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := os.Getenv("SUPEREGO_RULES_FILE"); v != "" {
		cfg.RulesFile = v
	}
	if v := os.Getenv("SUPEREGO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SUPEREGO_ADVISOR_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.AdvisorTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("SUPEREGO_SAMPLE_FAILURE_MODE"); v == "deny" || v == "allow" {
		cfg.SampleFailureMode = v
	}
}

// FailMode resolves the configured sample_failure_mode to an
// advisor.FailMode, defaulting to fail-closed on an unrecognized value.
func (c *Config) FailMode() advisor.FailMode {
	if advisor.FailMode(c.SampleFailureMode) == advisor.FailAllow {
		return advisor.FailAllow
	}
	return advisor.FailDeny
}
