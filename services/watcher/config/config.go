// Copyright (C) 2025 GitSentry Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the gitsentry YAML configuration. A default file
// is written on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads and writes yaml in the human
// form accepted by time.ParseDuration, e.g. "500ms". A bare
// time.Duration would round-trip as raw nanoseconds, making the
// generated config file uneditable.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the full gitsentry configuration.
type Config struct {
	// AppName is the identity presented to the desktop notification
	// daemon.
	AppName string `yaml:"app_name" validate:"required"`

	// DataDir holds the badger store and log files. Supports ~.
	DataDir string `yaml:"data_dir" validate:"required"`

	// LedgerCapacity bounds the persisted commit history.
	LedgerCapacity int `yaml:"ledger_capacity" validate:"gte=1,lte=10000"`

	// PollInterval is how often the host drains pending action requests.
	PollInterval Duration `yaml:"poll_interval" validate:"gte=100ms,lte=1m"`

	// Repositories watched at startup. More can be added at runtime.
	Repositories []RepositoryConfig `yaml:"repositories" validate:"dive"`

	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RepositoryConfig names one working tree to watch.
type RepositoryConfig struct {
	Path string `yaml:"path" validate:"required"`

	// Label is the user-facing workspace name. Defaults to the final
	// path element.
	Label string `yaml:"label"`
}

// LoggingConfig mirrors pkg/logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// TelemetryConfig controls the OTel exporters.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g.
	// "localhost:9464".
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// OTLPEndpoint sends traces over OTLP gRPC when non-empty.
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"omitempty,hostname_port"`

	// StdoutExport dumps metrics and traces to stdout. Debug aid.
	StdoutExport bool `yaml:"stdout_export"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		AppName:        "gitsentry",
		DataDir:        "~/.gitsentry",
		LedgerCapacity: 100,
		PollInterval:   Duration(500 * time.Millisecond),
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			MetricsAddr: "localhost:9464",
		},
	}
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".gitsentry", "gitsentry.yaml"), nil
}

// Load reads, defaults and validates the configuration at path. An
// empty path means DefaultPath; a missing default file is created with
// Default contents first.
func Load(path string) (Config, error) {
	firstRun := path == ""
	if firstRun {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Config{}, err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := writeDefault(path); err != nil {
				return Config{}, err
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every struct tag constraint.
func (c *Config) Validate() error {
	v := validator.New()
	// Present Duration fields as time.Duration so the duration-unit
	// comparison tags apply.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(Duration); ok {
			return time.Duration(d)
		}
		return nil
	}, Duration(0))
	return v.Struct(c)
}

// applyDefaults fills derived fields yaml cannot express.
func (c *Config) applyDefaults() {
	for i := range c.Repositories {
		if c.Repositories[i].Label == "" {
			c.Repositories[i].Label = filepath.Base(c.Repositories[i].Path)
		}
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = filepath.Join(c.DataDir, "logs")
	}
}

// StorePath is where the badger store lives under DataDir.
func (c *Config) StorePath() string {
	return filepath.Join(expandPath(c.DataDir), "store")
}

// LogDir is the resolved log directory.
func (c *Config) LogDir() string {
	return expandPath(c.Logging.Dir)
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// expandPath resolves a leading ~ against the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}
