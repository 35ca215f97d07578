// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads orchestrator settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Vector backend selector values.
const (
	BackendPinecone = "pinecone"
	BackendWeaviate = "weaviate"
)

// DefaultSystemPrompt is the assistant's base persona when
// GAMESCOUT_SYSTEM_PROMPT is unset.
const DefaultSystemPrompt = "You are GameScout, a games recommendation assistant. " +
	"You help players find games that match the mood, mechanics, and experience they describe. " +
	"Ground recommendations in the catalog context when it is available, mention content " +
	"warnings when a recommended game carries them, and use your tools to look up anything " +
	"you are not sure about. Be concise and concrete."

// Config is the orchestrator's full runtime configuration.
type Config struct {
	Port           string
	SystemPrompt   string
	DenialMessage  string
	RequestTimeout time.Duration

	ModerationModel   string
	ModerationEnabled bool

	EmbeddingURL  string
	VectorBackend string

	PineconeHost   string
	PineconeIndex  string
	PineconeAPIKey string

	WeaviateURL   string
	WeaviateClass string

	WebSearchURL    string
	WebSearchAPIKey string

	OTLPEndpoint string
}

// Load reads configuration from the environment, applying defaults
// and logging a warning for each capability that will be disabled.
func Load() Config {
	cfg := Config{
		Port:              getEnv("GAMESCOUT_PORT", "8080"),
		SystemPrompt:      getEnv("GAMESCOUT_SYSTEM_PROMPT", DefaultSystemPrompt),
		DenialMessage:     os.Getenv("GAMESCOUT_DENIAL_MESSAGE"),
		RequestTimeout:    getDuration("GAMESCOUT_REQUEST_TIMEOUT", 30*time.Second),
		ModerationModel:   os.Getenv("MODERATION_MODEL"),
		ModerationEnabled: getBool("MODERATION_ENABLED", true),
		EmbeddingURL:      os.Getenv("EMBEDDING_URL"),
		VectorBackend:     getEnv("VECTOR_BACKEND", BackendPinecone),
		PineconeHost:      os.Getenv("PINECONE_HOST"),
		PineconeIndex:     os.Getenv("PINECONE_INDEX"),
		PineconeAPIKey:    os.Getenv("PINECONE_API_KEY"),
		WeaviateURL:       os.Getenv("WEAVIATE_URL"),
		WeaviateClass:     os.Getenv("WEAVIATE_CLASS"),
		WebSearchURL:      os.Getenv("WEB_SEARCH_URL"),
		WebSearchAPIKey:   os.Getenv("WEB_SEARCH_API_KEY"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.EmbeddingURL == "" {
		slog.Warn("EMBEDDING_URL not set, catalog retrieval disabled")
	}
	switch cfg.VectorBackend {
	case BackendPinecone:
		if cfg.EmbeddingURL != "" && (cfg.PineconeHost == "" || cfg.PineconeIndex == "") {
			slog.Warn("PINECONE_HOST or PINECONE_INDEX not set, catalog retrieval disabled")
		}
	case BackendWeaviate:
		if cfg.EmbeddingURL != "" && cfg.WeaviateURL == "" {
			slog.Warn("WEAVIATE_URL not set, catalog retrieval disabled")
		}
	default:
		slog.Warn("Unknown VECTOR_BACKEND, catalog retrieval disabled", "backend", cfg.VectorBackend)
	}
	if cfg.WebSearchURL == "" {
		slog.Warn("WEB_SEARCH_URL not set, web search tool disabled")
	}

	return cfg
}

// RetrievalConfigured reports whether retrieval can be wired at all.
func (c Config) RetrievalConfigured() bool {
	if c.EmbeddingURL == "" {
		return false
	}
	switch c.VectorBackend {
	case BackendPinecone:
		return c.PineconeHost != "" && c.PineconeIndex != ""
	case BackendWeaviate:
		return c.WeaviateURL != ""
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("Invalid boolean in environment, using default", "key", key, "value", v)
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return parsed
}
