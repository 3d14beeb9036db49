// Package config loads the YAML configuration shared by the cortex command line
// tools: log level, default backend and per-backend settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/cortex/internal/backend/cpu"
	"github.com/born-ml/cortex/internal/backend/gpu"
	"github.com/born-ml/cortex/internal/tensor"
)

// Backend names accepted by Config.Backend.
const (
	BackendCPU = "cpu"
	BackendGPU = "gpu"
)

// Config is the root of a configuration file.
type Config struct {
	LogLevel string     `yaml:"log_level" validate:"oneof=trace debug info warn warning error"`
	Backend  string     `yaml:"backend" validate:"oneof=cpu gpu"`
	CPU      cpu.Config `yaml:"cpu"`
	GPU      gpu.Config `yaml:"gpu"`
}

var validate = validator.New()

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: "info",
		Backend:  BackendCPU,
		CPU:      cpu.DefaultConfig(),
		GPU:      gpu.DefaultConfig(),
	}
}

// Validate checks the configuration, including both backend sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the file at path over the defaults and validates the result.
// Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // caller-chosen path
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse the config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write stores cfg at path, creating the parent directory.
func Write(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // config is not secret
}

// NewLogger returns a logger at the configured level.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	return logger, nil
}

// NewBackend constructs the backend named by kind ("cpu" or "gpu") from its
// section, logging through logger.
func (c *Config) NewBackend(kind string, logger *logrus.Logger) (tensor.Backend, error) {
	switch kind {
	case BackendCPU:
		cfg := c.CPU
		cfg.Logger = logger
		b, err := cpu.New(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendGPU:
		cfg := c.GPU
		cfg.Logger = logger
		b, err := gpu.New(cfg)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}
}

// NewDefaultBackend constructs the backend selected by Config.Backend.
func (c *Config) NewDefaultBackend(logger *logrus.Logger) (tensor.Backend, error) {
	return c.NewBackend(c.Backend, logger)
}
