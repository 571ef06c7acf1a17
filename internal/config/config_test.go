package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/bookbuilder
binder:
  name: binder
  domain: conp.example.org
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Build.RateLimitMinutes != 30 {
		t.Errorf("rate limit = %d, want 30", cfg.Build.RateLimitMinutes)
	}
	if cfg.Build.ProgressInterval != 2*time.Minute {
		t.Errorf("progress interval = %v, want 2m", cfg.Build.ProgressInterval)
	}
	if got := cfg.Binder.Host(); got != "https://binder.conp.example.org" {
		t.Errorf("binder host = %q", got)
	}
	if cfg.Archive.PacingDelay != 2*time.Second {
		t.Errorf("pacing delay = %v, want 2s", cfg.Archive.PacingDelay)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BOOKBUILDER_FORGE_TOKEN", "tok-forge")
	t.Setenv("BOOKBUILDER_ARCHIVE_TOKEN", "tok-archive")

	path := writeConfig(t, `
data_dir: /tmp/bookbuilder
binder:
  name: binder
  domain: example.org
forge:
  token: from-file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Forge.Token != "tok-forge" {
		t.Errorf("forge token = %q, want env override", cfg.Forge.Token)
	}
	if cfg.Archive.Token != "tok-archive" {
		t.Errorf("archive token = %q, want env override", cfg.Archive.Token)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero rate limit", func(c *Config) { c.Build.RateLimitMinutes = 0 }},
		{"zero progress interval", func(c *Config) { c.Build.ProgressInterval = 0 }},
		{"mail enabled without host", func(c *Config) { c.Notify.Mail.Enabled = true; c.Notify.Mail.Host = "" }},
		{"nats enabled without url", func(c *Config) { c.Notify.NATS.Enabled = true; c.Notify.NATS.URL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
