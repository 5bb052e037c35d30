package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultTemplateIsValid(t *testing.T) {
	cfg := Default("north-studio")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Workshop.DryingDays != 5 || cfg.Writes.Attempts != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Writes.Timeout != 5*time.Second || cfg.Writes.Backoff != 200*time.Millisecond {
		t.Fatalf("durations: %v %v", cfg.Writes.Timeout, cfg.Writes.Backoff)
	}
	if cfg.Filters.TypeOverrides["1187"] != "DOUBLE" {
		t.Fatalf("type overrides missing: %v", cfg.Filters.TypeOverrides)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing name", func(c *Config) { c.Workshop.Name = "" }, "workshop.name"},
		{"inverted range", func(c *Config) { c.Filters.OrderRange.Min, c.Filters.OrderRange.Max = 10, 5 }, "exceeds"},
		{"unknown override type", func(c *Config) { c.Filters.TypeOverrides["9"] = "OCARINA" }, "unknown type"},
		{"pgx without dsn", func(c *Config) { c.Storage.Driver = "pgx" }, "dsn"},
		{"bad driver", func(c *Config) { c.Storage.Driver = "mysql" }, "driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("w")
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file should yield nil,nil: %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "kilnline.yml"), []byte(GenerateDefault("atelier")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workshop.Name != "atelier" {
		t.Fatalf("name = %q", cfg.Workshop.Name)
	}
}
