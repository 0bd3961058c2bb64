package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/superego-run/superego/core/advisor"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RulesFile != "rules.yaml" || cfg.AdvisorTimeout != 10*time.Second {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
	if cfg.AdvisorRateRPS != 8 || cfg.AdvisorRateBurst != 16 {
		t.Fatalf("expected default advisor rate limit, got %+v", cfg)
	}
}

func TestLoadParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("rules_file: custom.yaml\nlog_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RulesFile != "custom.yaml" || cfg.LogLevel != "debug" {
		t.Fatalf("expected parsed values, got %+v", cfg)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("rules_file: custom.yaml\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SUPEREGO_RULES_FILE", "env.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RulesFile != "env.yaml" {
		t.Fatalf("expected env override, got %q", cfg.RulesFile)
	}
}

func TestFailModeDefaultsToDeny(t *testing.T) {
	cfg := &Config{SampleFailureMode: "bogus"}
	if cfg.FailMode() != advisor.FailDeny {
		t.Fatalf("expected fail-closed default, got %s", cfg.FailMode())
	}
}

func TestFailModeAllow(t *testing.T) {
	cfg := &Config{SampleFailureMode: "allow"}
	if cfg.FailMode() != advisor.FailAllow {
		t.Fatalf("expected allow, got %s", cfg.FailMode())
	}
}
