// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every option of the run command. Keys mirror the long flag
// names with '-' replaced by '_'.
type Config struct {
	Templates        []string      `yaml:"templates"`
	Manifest         string        `yaml:"manifest"`
	Output           string        `yaml:"output"`
	Streams          string        `yaml:"streams"`
	Follow           bool          `yaml:"follow"`
	KmerSize         int           `yaml:"kmer_size"`
	Conclave         int           `yaml:"conclave"`
	Threads          int           `yaml:"threads"`
	Identity         float64       `yaml:"identity"`
	ScoreThreshold   float64       `yaml:"score_threshold"`
	Evalue           float64       `yaml:"evalue"`
	Combine          string        `yaml:"combine"`
	MaxFragments     int           `yaml:"max_fragments"`
	SpoolDir         string        `yaml:"spool_dir"`
	ExtendedFeatures bool          `yaml:"extended_features"`
	Progress         bool          `yaml:"progress"`
	Poll             time.Duration `yaml:"poll"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	LogLevel         string        `yaml:"log_level"`
}

// Default k-mer size, used whenever the configured one is out of range.
const (
	DefaultKmerSize = 16
	MinKmerSize     = 4
	MaxKmerSize     = 32
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Follow:       true,
		KmerSize:     DefaultKmerSize,
		Conclave:     1,
		Threads:      1,
		Identity:     1.0,
		Evalue:       0.05,
		Combine:      "and",
		MaxFragments: 1_000_000,
		Poll:         100 * time.Microsecond,
		IdleTimeout:  10 * time.Minute,
		LogLevel:     "info",
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// FromEnv returns the defaults with environment overrides applied.
func FromEnv() (*Config, error) {
	cfg := Default()
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("SHARDMAP_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SHARDMAP_SPOOL_DIR"); v != "" {
		c.SpoolDir = v
	}
	if v := os.Getenv("SHARDMAP_THREADS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SHARDMAP_THREADS: %w", err)
		}
		c.Threads = n
	}
	return nil
}

// Normalize applies the silent corrections: an out-of-range k-mer size
// falls back to the default and zero threads means all CPUs.
func (c *Config) Normalize() {
	if c.KmerSize < MinKmerSize || c.KmerSize > MaxKmerSize {
		c.KmerSize = DefaultKmerSize
	}
	if c.Threads == 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.Streams == "" {
		c.Streams = c.Output
	}
}
