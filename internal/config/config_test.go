package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.RegistryPath != "switchboard.db" {
		t.Errorf("unexpected registry path %q", cfg.RegistryPath)
	}
	if cfg.IdleTimeout != 2*time.Hour {
		t.Errorf("unexpected idle timeout %v", cfg.IdleTimeout)
	}
	if cfg.ErrorThreshold != 3 {
		t.Errorf("unexpected error threshold %d", cfg.ErrorThreshold)
	}
	if cfg.SerializeTurns {
		t.Error("steering should be enabled by default")
	}
	if cfg.BackendResumeFlag != "--resume" {
		t.Errorf("unexpected resume flag %q", cfg.BackendResumeFlag)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SWITCHBOARD_REGISTRY_PATH", "/var/lib/sb/registry.db")
	t.Setenv("SWITCHBOARD_BACKEND_COMMAND", "/usr/local/bin/agent")
	t.Setenv("SWITCHBOARD_BACKEND_ARGS", "--mode chat --quiet")
	t.Setenv("SWITCHBOARD_SERIALIZE_TURNS", "true")
	t.Setenv("SWITCHBOARD_IDLE_TIMEOUT", "30m")
	t.Setenv("SWITCHBOARD_ERROR_THRESHOLD", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.RegistryPath != "/var/lib/sb/registry.db" {
		t.Errorf("unexpected registry path %q", cfg.RegistryPath)
	}
	if cfg.BackendCommand != "/usr/local/bin/agent" {
		t.Errorf("unexpected backend command %q", cfg.BackendCommand)
	}
	if len(cfg.BackendArgs) != 3 || cfg.BackendArgs[0] != "--mode" {
		t.Errorf("unexpected backend args %v", cfg.BackendArgs)
	}
	if !cfg.SerializeTurns {
		t.Error("serialize turns should be enabled")
	}
	if cfg.IdleTimeout != 30*time.Minute {
		t.Errorf("unexpected idle timeout %v", cfg.IdleTimeout)
	}
	if cfg.ErrorThreshold != 5 {
		t.Errorf("unexpected error threshold %d", cfg.ErrorThreshold)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SWITCHBOARD_IDLE_TIMEOUT", "not-a-duration"},
		{"SWITCHBOARD_ERROR_THRESHOLD", "many"},
		{"SWITCHBOARD_SERIALIZE_TURNS", "kinda"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
