// Package config provides unified configuration loading for farol.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"farol/internal/storage"
)

// Config contains all farol configuration settings.
type Config struct {
	Store     StoreConfig     `json:"store" yaml:"store"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	Mazes     MazeConfig      `json:"mazes" yaml:"mazes"`
	Viz       VizConfig       `json:"viz" yaml:"viz"`
	QLearning QLearningConfig `json:"qlearning" yaml:"qlearning"`
	Neuro     NeuroConfig     `json:"neuro" yaml:"neuro"`
	Compare   CompareConfig   `json:"compare" yaml:"compare"`
}

// StoreConfig selects the model and run store backend.
type StoreConfig struct {
	// Kind is "memory", "sqlite" or "postgres".
	Kind string `json:"kind" yaml:"kind"`

	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "trace" logs every agent move.
	Level string `json:"level" yaml:"level"`
}

type MazeConfig struct {
	// Dir holds dificuldadeN.txt layouts.
	Dir string `json:"dir" yaml:"dir"`
}

type VizConfig struct {
	Addr  string        `json:"addr" yaml:"addr"`
	Delay time.Duration `json:"delay" yaml:"delay"`
}

type QLearningConfig struct {
	Episodes int     `json:"episodes" yaml:"episodes"`
	MaxSteps int     `json:"max_steps" yaml:"max_steps"`
	Alpha    float64 `json:"alpha" yaml:"alpha"`
	Gamma    float64 `json:"gamma" yaml:"gamma"`
	Epsilon  float64 `json:"epsilon" yaml:"epsilon"`
}

type NeuroConfig struct {
	Population  int    `json:"population" yaml:"population"`
	Generations int    `json:"generations" yaml:"generations"`
	MaxSteps    int    `json:"max_steps" yaml:"max_steps"`
	EliteCount  int    `json:"elite_count" yaml:"elite_count"`
	Selection   string `json:"selection" yaml:"selection"`
}

// CompareConfig sizes the policy comparison sweep.
type CompareConfig struct {
	Episodes int    `json:"episodes" yaml:"episodes"`
	MaxSteps int    `json:"max_steps" yaml:"max_steps"`
	OutDir   string `json:"out_dir" yaml:"out_dir"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Store:   StoreConfig{Kind: storage.KindMemory},
		Logging: LoggingConfig{Level: "info"},
		Mazes:   MazeConfig{Dir: "mazes"},
		Viz:     VizConfig{Addr: "127.0.0.1:8080", Delay: 100 * time.Millisecond},
		QLearning: QLearningConfig{
			Episodes: 1000,
			MaxSteps: 60,
			Alpha:    0.1,
			Gamma:    0.9,
			Epsilon:  1.0,
		},
		Neuro: NeuroConfig{
			Population:  50,
			Generations: 150,
			MaxSteps:    70,
			EliteCount:  10,
			Selection:   "elite",
		},
		Compare: CompareConfig{
			Episodes: 30,
			MaxSteps: 100,
			OutDir:   "reports",
		},
	}
}

// Load resolves configuration in order: defaults, then path if non-empty,
// then environment variables.
func Load(path string) (*Config, error) {
	config := Default()
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}
	applyEnvOverrides(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.Store.DSN = os.ExpandEnv(config.Store.DSN)
	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	validStores := map[string]bool{storage.KindMemory: true, storage.KindSQLite: true, storage.KindPostgres: true}
	if !validStores[c.Store.Kind] {
		return fmt.Errorf("invalid store kind: %s (valid: memory, sqlite, postgres)", c.Store.Kind)
	}
	if c.Store.Kind != storage.KindMemory && c.Store.DSN == "" {
		return fmt.Errorf("store %s requires a dsn", c.Store.Kind)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Viz.Delay < 0 {
		return fmt.Errorf("viz delay must be non-negative, got %v", c.Viz.Delay)
	}
	if c.QLearning.Episodes <= 0 || c.QLearning.MaxSteps <= 0 {
		return fmt.Errorf("qlearning episodes and max_steps must be positive")
	}
	for name, v := range map[string]float64{"alpha": c.QLearning.Alpha, "gamma": c.QLearning.Gamma, "epsilon": c.QLearning.Epsilon} {
		if v < 0 || v > 1 {
			return fmt.Errorf("qlearning %s must be between 0 and 1, got %f", name, v)
		}
	}
	if c.Neuro.Population <= 0 || c.Neuro.Generations <= 0 || c.Neuro.MaxSteps <= 0 {
		return fmt.Errorf("neuro population, generations and max_steps must be positive")
	}
	if c.Neuro.EliteCount < 0 || c.Neuro.EliteCount > c.Neuro.Population {
		return fmt.Errorf("neuro elite_count must be between 0 and population, got %d", c.Neuro.EliteCount)
	}
	validSelection := map[string]bool{"": true, "elite": true, "tournament": true}
	if !validSelection[c.Neuro.Selection] {
		return fmt.Errorf("invalid selection: %s (valid: elite, tournament)", c.Neuro.Selection)
	}
	if c.Compare.Episodes <= 0 || c.Compare.MaxSteps <= 0 {
		return fmt.Errorf("compare episodes and max_steps must be positive")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("FAROL_STORE"); v != "" {
		config.Store.Kind = v
	}
	if v := os.Getenv("FAROL_DSN"); v != "" {
		config.Store.DSN = v
	}
	if v := os.Getenv("FAROL_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("FAROL_MAZE_DIR"); v != "" {
		config.Mazes.Dir = v
	}
	if v := os.Getenv("FAROL_VIZ_ADDR"); v != "" {
		config.Viz.Addr = v
	}
	if v := os.Getenv("FAROL_QL_EPISODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.QLearning.Episodes = n
		}
	}
	if v := os.Getenv("FAROL_NEURO_GENERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Neuro.Generations = n
		}
	}
}
