// Package config loads the engine configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/smallyu/go-fhe-ecdsa/internal/crypto/paillier"
	"github.com/smallyu/go-fhe-ecdsa/pkg/fhe"
)

// Backend names.
const (
	BackendSim      = "sim"
	BackendPaillier = "paillier"
)

// Config selects a backend and tunes the evaluator.
type Config struct {
	Backend      string `yaml:"backend"`
	Params       string `yaml:"params"`
	PaillierBits int    `yaml:"paillier_bits"`

	// Workers bounds limb-level parallelism.
	Workers int `yaml:"workers"`
	// NoiseThreshold overrides the refresh threshold; unset keeps the
	// backend's MaxNoise and 0 refreshes before every noisy operation.
	NoiseThreshold *int `yaml:"noise_threshold"`

	LowS     bool   `yaml:"low_s"`
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Backend:      BackendSim,
		Params:       fhe.ParamSimMessage16Carry16.Name,
		PaillierBits: 2048,
		Workers:      runtime.NumCPU(),
		LogLevel:     zerolog.InfoLevel.String(),
	}
}

// Load reads a YAML file over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fhe.NewConfigurationError("file", err.Error(), nil)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field. Errors are *fhe.ConfigurationError.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendSim:
	case BackendPaillier:
		if c.PaillierBits < paillier.MinBits {
			return fhe.NewConfigurationError("paillier_bits", fmt.Sprintf("%d, at least %d required", c.PaillierBits, paillier.MinBits), nil)
		}
	default:
		return fhe.NewConfigurationError("backend", fmt.Sprintf("unknown backend %q", c.Backend), nil)
	}
	if _, err := fhe.ParametersByName(c.Params); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fhe.NewConfigurationError("workers", fmt.Sprintf("%d, at least 1 required", c.Workers), nil)
	}
	if c.NoiseThreshold != nil && *c.NoiseThreshold < 0 {
		return fhe.NewConfigurationError("noise_threshold", fmt.Sprintf("negative threshold %d", *c.NoiseThreshold), fhe.ErrNoiseBudget)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fhe.NewConfigurationError("log_level", err.Error(), nil)
	}
	return nil
}

// Level returns the parsed log level. It assumes a validated config.
func (c Config) Level() zerolog.Level {
	l, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
