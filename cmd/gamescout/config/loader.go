// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the CLI's file-based settings from
// ~/.gamescout/gamescout.yaml, creating a commented default on first
// run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config holds CLI defaults. Server settings stay in the environment;
// this file only shapes local tooling behavior.
type Config struct {
	// ServerURL is where CLI commands reach a running orchestrator.
	ServerURL string `yaml:"server_url"`

	// DefaultTopK seeds the search command's -k flag.
	DefaultTopK int `yaml:"default_top_k"`

	// DefaultTags seeds the search command's tag filter.
	DefaultTags []string `yaml:"default_tags"`

	// LogLevel overrides LOG_LEVEL for CLI runs when set.
	LogLevel string `yaml:"log_level"`
}

var (
	global     Config
	globalOnce sync.Once
	globalErr  error
)

func defaults() Config {
	return Config{
		ServerURL:   "http://localhost:8080",
		DefaultTopK: 6,
	}
}

// Global loads the config file once per process.
func Global() (Config, error) {
	globalOnce.Do(func() {
		global, globalErr = load()
	})
	return global, globalErr
}

func load() (Config, error) {
	cfg := defaults()

	path, err := configPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if createErr := createDefault(path, cfg); createErr != nil {
			return cfg, createErr
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = defaults().DefaultTopK
	}
	return cfg, nil
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".gamescout", "gamescout.yaml"), nil
}

func createDefault(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	header := []byte("# GameScout CLI configuration.\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}
