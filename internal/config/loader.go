// Package config loads the Compass configuration from layered sources.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/strategichq/compass/internal/domain"
)

// Load builds a Config by layering tier defaults, an optional file, and env
// vars. Order of precedence (low -> high):
//  1. tier defaults (COMPASS_TIER=pro selects the pro base)
//  2. file (YAML) if COMPASS_CONFIG is set
//  3. env (prefix COMPASS_, double underscore nests: COMPASS_SERVER__PORT)
func Load() (*domain.Config, error) {
	base := domain.DefaultConfig()
	if strings.EqualFold(os.Getenv("COMPASS_TIER"), string(domain.TierPro)) {
		base = domain.ProConfig()
	}

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("COMPASS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	// Environment variables. Single underscores stay part of the key so
	// names like sqlite_path survive; "__" descends into a section:
	// COMPASS_REPOSITORY__SQLITE_PATH -> repository.sqlite_path.
	envProvider := env.Provider("COMPASS_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "compass_")
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}

	// Unmarshal over the tier defaults
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *domain.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Tier != domain.TierCommunity && cfg.Tier != domain.TierPro {
		return fmt.Errorf("unknown tier: %s", cfg.Tier)
	}
	if cfg.Simulation.Iterations <= 0 {
		return fmt.Errorf("simulation iterations must be positive: %d", cfg.Simulation.Iterations)
	}
	if cfg.Simulation.Spread <= 0 || cfg.Simulation.Spread > 1 {
		return fmt.Errorf("simulation spread must be in (0,1]: %v", cfg.Simulation.Spread)
	}
	if cfg.Scoring.MissingConfidence >= cfg.Scoring.LowConfidence {
		return fmt.Errorf("missing confidence %v must stay below low-confidence threshold %v",
			cfg.Scoring.MissingConfidence, cfg.Scoring.LowConfidence)
	}
	return nil
}
