// Package config holds the knobs of a compilation run and loads them from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/py2cppai/py2cpp/frontend/types"
)

type Config struct {
	// AIEnabled permits the resolver to consult the type advisor.
	// When false, unresolved bindings go straight to FallbackType.
	AIEnabled           bool          `yaml:"ai_enabled"`
	AcceptanceThreshold float64       `yaml:"acceptance_threshold"`
	AdvisorTimeout      time.Duration `yaml:"advisor_timeout"`
	// ContextWindow is how many statements either side of a binding's uses are shown to the advisor
	ContextWindow int    `yaml:"context_window"`
	FallbackType  string `yaml:"fallback_type"`

	// Strict turns every function-scoped error into a module failure
	Strict bool `yaml:"strict"`
	// Workers bounds per-function parallelism, 0 means GOMAXPROCS
	Workers    int    `yaml:"workers"`
	OptLevel   int    `yaml:"opt_level"`
	EntryPoint string `yaml:"entry_point"`
	// CachePath is the SQLite emission cache, empty disables caching
	CachePath string `yaml:"cache_path"`

	Unroll  UnrollConfig  `yaml:"unroll"`
	Advisor AdvisorConfig `yaml:"advisor"`
}

type UnrollConfig struct {
	MaxFactor int `yaml:"max_factor"`
	// BodyCeiling is the largest loop body, in instructions, unrolled without asking the advisor
	BodyCeiling int `yaml:"body_ceiling"`
	// SizeBudget bounds factor times body size for every accepted factor
	SizeBudget          int     `yaml:"size_budget"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

type AdvisorConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

func Default() Config {
	return Config{
		AIEnabled:           false,
		AcceptanceThreshold: 0.6,
		AdvisorTimeout:      2 * time.Second,
		ContextWindow:       3,
		FallbackType:        "dynamic",
		OptLevel:            2,
		EntryPoint:          "main",
		Unroll: UnrollConfig{
			MaxFactor:           8,
			BodyCeiling:         32,
			SizeBudget:          256,
			ConfidenceThreshold: 0.6,
		},
	}
}

// Load reads the YAML file at path over Default. Unknown fields are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AcceptanceThreshold < 0 || c.AcceptanceThreshold > 1 {
		return fmt.Errorf("acceptance_threshold must be within [0, 1], got %v", c.AcceptanceThreshold)
	}
	if c.AIEnabled && c.AdvisorTimeout <= 0 {
		return fmt.Errorf("advisor_timeout must be positive when ai_enabled is set")
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("context_window must not be negative")
	}
	if _, err := c.Fallback(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.OptLevel < 0 || c.OptLevel > 2 {
		return fmt.Errorf("opt_level must be 0, 1 or 2, got %d", c.OptLevel)
	}
	if c.EntryPoint == "" {
		return fmt.Errorf("entry_point is required")
	}
	u := c.Unroll
	if u.MaxFactor < 2 {
		return fmt.Errorf("unroll.max_factor must be at least 2")
	}
	if u.BodyCeiling < 1 || u.SizeBudget < 1 {
		return fmt.Errorf("unroll.body_ceiling and unroll.size_budget must be positive")
	}
	if u.ConfidenceThreshold < 0 || u.ConfidenceThreshold > 1 {
		return fmt.Errorf("unroll.confidence_threshold must be within [0, 1]")
	}
	return nil
}

// Fallback parses FallbackType. It must be a fully resolved type.
func (c Config) Fallback() (types.Type, error) {
	t, err := types.Parse(c.FallbackType)
	if err != nil {
		return nil, fmt.Errorf("fallback_type: %w", err)
	}
	if !types.IsResolved(t) || types.IsPrim(t, types.None) {
		return nil, fmt.Errorf("fallback_type must be a concrete value type, got '%s'", c.FallbackType)
	}
	return t, nil
}
