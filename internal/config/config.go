// Package config loads the YAML configuration shared by the psklink binaries.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/jeongseonghan/psklink/internal/bench"
	"github.com/jeongseonghan/psklink/internal/link"
	"github.com/jeongseonghan/psklink/internal/logging"
	"github.com/jeongseonghan/psklink/internal/modem"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the top-level configuration file.
type Config struct {
	Link    modem.Config  `yaml:"link"`
	Order   modem.Order   `yaml:"order"`
	Noise   NoiseConfig   `yaml:"noise"`
	Bench   BenchConfig   `yaml:"bench"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Audio   AudioConfig   `yaml:"audio"`
}

type NoiseConfig struct {
	Strength float64          `yaml:"strength"`
	Domain   link.NoiseDomain `yaml:"domain"`
	Seed     uint64           `yaml:"seed"`
}

type BenchConfig struct {
	Start   float64 `yaml:"start"`
	End     float64 `yaml:"end"`
	Step    float64 `yaml:"step"`
	Trials  int     `yaml:"trials"`
	Workers int     `yaml:"workers"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr"`
	UploadDir  string `yaml:"upload_dir"`
	ReceiveDir string `yaml:"receive_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type AudioConfig struct {
	// PlaybackRate is the output device rate in Hz.
	PlaybackRate float64 `yaml:"playback_rate"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Link:  modem.DefaultConfig(),
		Order: modem.QPSK,
		Noise: NoiseConfig{
			Strength: 0.1,
			Domain:   link.NoiseSymbol,
			Seed:     1,
		},
		Bench: BenchConfig{
			Start:   0,
			End:     1,
			Step:    0.05,
			Trials:  100,
			Workers: 4,
		},
		Server: ServerConfig{
			Addr:       "0.0.0.0:8080",
			UploadDir:  "./uploads",
			ReceiveDir: "./received",
		},
		Logging: LoggingConfig{Level: "info"},
		Audio:   AudioConfig{PlaybackRate: 44100},
	}
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and normalises the noise domain.
func (c *Config) Validate() error {
	if err := c.Link.Validate(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if !c.Order.Valid() {
		return fmt.Errorf("%w: order: %w", ErrInvalid, modem.ErrUnknownOrder)
	}

	domain, err := link.ParseNoiseDomain(string(c.Noise.Domain))
	if err != nil {
		return fmt.Errorf("%w: noise.domain: %w", ErrInvalid, err)
	}
	c.Noise.Domain = domain
	if !(c.Noise.Strength >= 0) || math.IsInf(c.Noise.Strength, 1) {
		return fmt.Errorf("%w: noise.strength must be finite and non-negative, got %v", ErrInvalid, c.Noise.Strength)
	}

	if _, err := c.Sweep().Levels(); err != nil {
		return fmt.Errorf("%w: bench: %w", ErrInvalid, err)
	}
	if c.Bench.Trials < 1 {
		return fmt.Errorf("%w: bench.trials must be at least 1", ErrInvalid)
	}
	if c.Bench.Workers < 0 {
		return fmt.Errorf("%w: bench.workers must be non-negative", ErrInvalid)
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalid)
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %w", ErrInvalid, err)
	}
	if !(c.Audio.PlaybackRate > 0) {
		return fmt.Errorf("%w: audio.playback_rate must be positive", ErrInvalid)
	}
	return nil
}

// Sweep builds a benchmark sweep from the bench, noise and link sections.
func (c *Config) Sweep() bench.Sweep {
	return bench.Sweep{
		Order:   c.Order,
		Start:   c.Bench.Start,
		End:     c.Bench.End,
		Step:    c.Bench.Step,
		Trials:  c.Bench.Trials,
		Workers: c.Bench.Workers,
		Seed:    c.Noise.Seed,
		Domain:  c.Noise.Domain,
		Config:  c.Link,
	}
}

// Level returns the configured log level, falling back to info.
func (c *Config) Level() log.Level {
	return logging.ParseLevel(c.Logging.Level)
}
