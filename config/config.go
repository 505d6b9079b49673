// Package config loads run settings for the projection tool from a
// YAML file. Zero values mean unlimited or default.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/arnodel/jsonproj/engine"
)

// Config gathers the tunable settings of a projection run.
type Config struct {
	Budget   BudgetConfig `yaml:"budget,omitempty"`
	Guard    GuardConfig  `yaml:"guard,omitempty"`
	NDJSON   NDJSONConfig `yaml:"ndjson,omitempty"`
	Workers  int          `yaml:"workers,omitempty"`
	Ordering string       `yaml:"ordering,omitempty"`
}

// BudgetConfig limits how much work a single run may do.
type BudgetConfig struct {
	MaxMatches  int64         `yaml:"max_matches,omitempty"`
	MaxBytes    int64         `yaml:"max_bytes,omitempty"`
	MaxDuration time.Duration `yaml:"max_duration,omitempty"`
}

// GuardConfig limits the fan-out of input documents.
type GuardConfig struct {
	MaxDepth      int `yaml:"max_depth,omitempty"`
	MaxArraySize  int `yaml:"max_array_size,omitempty"`
	MaxObjectKeys int `yaml:"max_object_keys,omitempty"`
}

// NDJSONConfig configures line-delimited input handling.
type NDJSONConfig struct {
	MaxLineLength int  `yaml:"max_line_length,omitempty"`
	SkipErrors    bool `yaml:"skip_errors,omitempty"`
}

// Orderings accepted by Config.Ordering.
const (
	OrderingPreserve = "preserve"
	OrderingRelaxed  = "relaxed"
)

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers: must not be negative, got %d", c.Workers)
	}
	switch c.Ordering {
	case "", OrderingPreserve, OrderingRelaxed:
	default:
		return fmt.Errorf("ordering: must be %q or %q, got %q", OrderingPreserve, OrderingRelaxed, c.Ordering)
	}
	if c.Budget.MaxMatches < 0 || c.Budget.MaxBytes < 0 || c.Budget.MaxDuration < 0 {
		return fmt.Errorf("budget: limits must not be negative")
	}
	if c.Guard.MaxDepth < 0 || c.Guard.MaxArraySize < 0 || c.Guard.MaxObjectKeys < 0 {
		return fmt.Errorf("guard: limits must not be negative")
	}
	if c.NDJSON.MaxLineLength < 0 {
		return fmt.Errorf("ndjson: max_line_length must not be negative, got %d", c.NDJSON.MaxLineLength)
	}
	return nil
}

// EngineBudget converts the budget section, or nil when every limit is
// zero.
func (c *Config) EngineBudget() *engine.Budget {
	if c.Budget == (BudgetConfig{}) {
		return nil
	}
	return &engine.Budget{
		MaxMatches:  c.Budget.MaxMatches,
		MaxBytes:    c.Budget.MaxBytes,
		MaxDuration: c.Budget.MaxDuration,
	}
}

// EngineGuard converts the guard section, filling unset limits from
// the default guard. It returns nil when every limit is zero.
func (c *Config) EngineGuard() *engine.Guard {
	if c.Guard == (GuardConfig{}) {
		return nil
	}
	guard := engine.DefaultGuard()
	if c.Guard.MaxDepth > 0 {
		guard.MaxDepth = c.Guard.MaxDepth
	}
	if c.Guard.MaxArraySize > 0 {
		guard.MaxArraySize = c.Guard.MaxArraySize
	}
	if c.Guard.MaxObjectKeys > 0 {
		guard.MaxObjectKeys = c.Guard.MaxObjectKeys
	}
	return &guard
}
