package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SCORESYNC_CONFIG is set
//  3. env (prefix SCORESYNC_)
//  4. DB_PATH, kept for compatibility with older deployments
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SCORESYNC_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: SCORESYNC_ADDR, SCORESYNC_SHARED_TOKEN, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("SCORESYNC_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "scoresync_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.DBPath = path
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.Store != StoreSQLite && c.Store != StoreMemory {
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store)
	}
	if c.Store == StoreSQLite && c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty for the sqlite store", ErrInvalidConfig)
	}
	if c.TrainersPolicy != TrainersFlag && c.TrainersPolicy != TrainersCount {
		return fmt.Errorf("%w: unknown trainers policy %q", ErrInvalidConfig, c.TrainersPolicy)
	}
	return nil
}
