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
//  2. file (YAML) if GREENLEDGER_CONFIG is set
//  3. env (prefix GREENLEDGER_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("GREENLEDGER_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: GREENLEDGER_ADDR, GREENLEDGER_QUEUE_SIZE, ...
	// Keys map to the flat koanf tags on the struct, underscores preserved.
	envProvider := env.Provider("GREENLEDGER_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "greenledger_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
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
	switch c.LedgerDriver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: unknown ledger driver %q", ErrInvalidConfig, c.LedgerDriver)
	}
	if c.LedgerDriver == "sqlite" && c.LedgerSQLitePath == "" {
		return fmt.Errorf("%w: ledger_sqlite_path must not be empty", ErrInvalidConfig)
	}
	switch c.ArtifactBackend {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("%w: unknown artifact backend %q", ErrInvalidConfig, c.ArtifactBackend)
	}
	if c.ArtifactBackend == "s3" && c.ArtifactS3Bucket == "" {
		return fmt.Errorf("%w: artifact_s3_bucket must not be empty", ErrInvalidConfig)
	}
	if err := c.ThresholdSet().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.VelocityWindowDays <= 0 {
		return fmt.Errorf("%w: velocity_window_days must be positive", ErrInvalidConfig)
	}
	return nil
}
