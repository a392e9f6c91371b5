// Package config handles configuration loading and management for the testbench.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fluxfuzzer/ltesec/internal/logger"
	"github.com/fluxfuzzer/ltesec/internal/secalg"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"gopkg.in/yaml.v3"
)

// Config represents the global configuration
type Config struct {
	Testbench TestbenchConfig `yaml:"testbench"`
	Replay    ReplayConfig    `yaml:"replay"`
	Server    ServerConfig    `yaml:"server"`
	Mutator   MutatorConfig   `yaml:"mutator"`
	Output    OutputConfig    `yaml:"output"`
	Log       logger.Config   `yaml:"log"`
}

// TestbenchConfig defines the verdict rules
type TestbenchConfig struct {
	NullCipheringInsecure bool    `yaml:"null_ciphering_insecure"`
	ExpectedRejectCauses  []uint8 `yaml:"expected_reject_causes"`
}

// ReplayConfig defines how scenarios and traces are replayed
type ReplayConfig struct {
	Workers  int  `yaml:"workers"`
	Rate     int  `yaml:"rate"` // testcases per second, 0 = unlimited
	FailFast bool `yaml:"fail_fast"`
}

// ServerConfig defines the HTTP reporting API
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	BroadcastBuffer int           `yaml:"broadcast_buffer"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MutatorConfig defines the capability masks handed out for new testcases
type MutatorConfig struct {
	Seed    int64  `yaml:"seed"`
	EIASeed uint8  `yaml:"eia_seed"`
	EEASeed uint8  `yaml:"eea_seed"`
	Mode    string `yaml:"mode"` // bitflip, interesting, random
}

// OutputConfig defines the output configuration
type OutputConfig struct {
	Format  string `yaml:"format"` // text, json, html, markdown
	Dir     string `yaml:"dir"`
	Verbose bool   `yaml:"verbose"`
	TUI     bool   `yaml:"tui"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	rules := testbench.DefaultRules()
	return &Config{
		Testbench: TestbenchConfig{
			NullCipheringInsecure: rules.Policy.NullCipheringInsecure,
			ExpectedRejectCauses:  rules.ExpectedRejectCauses,
		},
		Replay: ReplayConfig{
			Workers: 8,
			Rate:    0,
		},
		Server: ServerConfig{
			Addr:            ":8088",
			BroadcastBuffer: 256,
			ShutdownTimeout: 5 * time.Second,
		},
		Mutator: MutatorConfig{
			EIASeed: 0x0E,
			EEASeed: 0x0F,
			Mode:    "bitflip",
		},
		Output: OutputConfig{
			Format: "text",
			Dir:    "reports",
		},
		Log: logger.DefaultConfig(),
	}
}

// Load reads a YAML file on top of the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of the defaults
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Replay.Workers <= 0 {
		return fmt.Errorf("replay.workers must be positive, got %d", c.Replay.Workers)
	}
	if c.Replay.Rate < 0 {
		return fmt.Errorf("replay.rate must not be negative, got %d", c.Replay.Rate)
	}
	if c.Server.BroadcastBuffer < 0 {
		return fmt.Errorf("server.broadcast_buffer must not be negative")
	}
	switch c.Mutator.Mode {
	case "bitflip", "interesting", "random":
	default:
		return fmt.Errorf("unknown mutator mode: %s", c.Mutator.Mode)
	}
	switch c.Output.Format {
	case "text", "txt", "json", "html", "markdown", "md":
	default:
		return fmt.Errorf("unknown output format: %s", c.Output.Format)
	}
	return nil
}

// Rules converts the testbench section into summary rules. A null cause list
// stays nil so the testbench applies its defaults; an explicit [] stays empty.
func (c *Config) Rules() testbench.Rules {
	var causes []uint8
	if c.Testbench.ExpectedRejectCauses != nil {
		causes = append(make([]uint8, 0, len(c.Testbench.ExpectedRejectCauses)), c.Testbench.ExpectedRejectCauses...)
	}
	return testbench.Rules{
		Policy:               secalg.Policy{NullCipheringInsecure: c.Testbench.NullCipheringInsecure},
		ExpectedRejectCauses: causes,
	}
}
