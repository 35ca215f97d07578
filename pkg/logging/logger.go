// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for all GameScout
// binaries.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Level names accepted from configuration.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Config tunes the process logger.
type Config struct {
	// Level is the minimum level emitted. Unknown values mean info.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// Text switches to the human-readable handler for local runs;
	// production stays on JSON.
	Text bool
}

// Setup installs the process-wide default logger and returns it.
func Setup(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Text {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	slog.SetDefault(logger)
	return logger
}

// FromEnv builds a logger from LOG_LEVEL and LOG_FORMAT.
func FromEnv(service string) *slog.Logger {
	return Setup(Config{
		Level:   Level(strings.ToLower(os.Getenv("LOG_LEVEL"))),
		Service: service,
		Text:    strings.EqualFold(os.Getenv("LOG_FORMAT"), "text"),
	})
}

func parseLevel(l Level) slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
