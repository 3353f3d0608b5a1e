package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/strategichq/compass/internal/domain"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Tier != domain.TierCommunity {
			t.Errorf("expected community tier by default, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected sqlite driver, got %s", cfg.Repository.Driver)
		}
		if cfg.Simulation.Iterations != 10000 {
			t.Errorf("expected 10000 iterations, got %d", cfg.Simulation.Iterations)
		}
	})

	t.Run("ProTier", func(t *testing.T) {
		t.Setenv("COMPASS_TIER", "pro")
		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Tier != domain.TierPro {
			t.Errorf("expected pro tier, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "postgres" {
			t.Errorf("expected postgres driver for pro tier, got %s", cfg.Repository.Driver)
		}
		if cfg.EventBus.Type != "nats" {
			t.Errorf("expected nats bus for pro tier, got %s", cfg.EventBus.Type)
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("COMPASS_SERVER__PORT", "9090")
		t.Setenv("COMPASS_REPOSITORY__SQLITE_PATH", "/tmp/override.db")
		t.Setenv("COMPASS_SIMULATION__ITERATIONS", "2500")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Repository.SQLitePath != "/tmp/override.db" {
			t.Errorf("expected overridden sqlite path, got %s", cfg.Repository.SQLitePath)
		}
		if cfg.Simulation.Iterations != 2500 {
			t.Errorf("expected 2500 iterations, got %d", cfg.Simulation.Iterations)
		}
	})

	t.Run("FileLayer", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "compass.yaml")
		yaml := []byte("server:\n  port: 7070\nsimulation:\n  iterations: 1234\n")
		if err := os.WriteFile(path, yaml, 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		t.Setenv("COMPASS_CONFIG", path)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("expected port 7070 from file, got %d", cfg.Server.Port)
		}
		if cfg.Simulation.Iterations != 1234 {
			t.Errorf("expected 1234 iterations from file, got %d", cfg.Simulation.Iterations)
		}
	})

	t.Run("EnvBeatsFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "compass.yaml")
		if err := os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}
		t.Setenv("COMPASS_CONFIG", path)
		t.Setenv("COMPASS_SERVER__PORT", "9091")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Server.Port != 9091 {
			t.Errorf("env should override file, got port %d", cfg.Server.Port)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		t.Setenv("COMPASS_CONFIG", "/nonexistent/compass.yaml")
		if _, err := Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("InvalidValues", func(t *testing.T) {
		cases := []struct {
			name  string
			key   string
			value string
		}{
			{"PortOutOfRange", "COMPASS_SERVER__PORT", "70000"},
			{"ZeroIterations", "COMPASS_SIMULATION__ITERATIONS", "0"},
			{"SpreadTooLarge", "COMPASS_SIMULATION__SPREAD", "1.5"},
			{"UnknownTier", "COMPASS_TIER", "enterprise"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				t.Setenv(tc.key, tc.value)
				if _, err := Load(); err == nil {
					t.Errorf("expected validation error for %s=%s", tc.key, tc.value)
				}
			})
		}
	})
}
