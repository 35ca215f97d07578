// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retrieval turns free-text queries into scored catalog hits.
//
// The pipeline has two stages: embed the query text into a vector,
// then run a similarity search against a vector index. Both stages sit
// behind small interfaces so the index backend (Pinecone or Weaviate)
// is a deployment choice, not a code change.
package retrieval

import (
	"context"
	"errors"
	"fmt"
)

const (
	// DefaultTopK is the hit count used when a query does not specify
	// one. Matches the orchestrator's request default.
	DefaultTopK = 6

	// MaxTopK caps how many hits one query may request.
	MaxTopK = 50
)

// =============== Query and Hit Types ===============

// Query describes one similarity search.
type Query struct {
	// Text is the natural-language query to embed. Must be non-empty.
	Text string

	// TopK is the maximum number of hits to return. Values <= 0 fall
	// back to the service default.
	TopK int

	// AllowedTags restricts hits to games whose experience tags
	// intersect this set. Empty means no restriction.
	AllowedTags []string
}

// GameHit is one scored match from the catalog index.
type GameHit struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// =============== Interfaces ===============

// Embedder converts text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GameIndex answers vector similarity queries against the game
// catalog. Implementations return hits in backend score order and
// never re-rank.
type GameIndex interface {
	Search(ctx context.Context, vector []float32, topK int, allowedTags []string) ([]GameHit, error)
}

// Retriever is the full two-stage pipeline. The orchestrator and the
// model's search tool both depend on this, not on a concrete client.
type Retriever interface {
	Retrieve(ctx context.Context, q Query) ([]GameHit, error)
}

// =============== Errors ===============

// EmbeddingError reports a failure in the embedding stage.
type EmbeddingError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *EmbeddingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding request failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding request failed: %s", e.Message)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IndexError reports a failure in the vector index stage.
type IndexError struct {
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *IndexError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s query failed (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s query failed: %s", e.Backend, e.Message)
}

func (e *IndexError) Unwrap() error { return e.Err }

// IsEmbeddingError reports whether err is an embedding-stage failure.
func IsEmbeddingError(err error) bool {
	var ee *EmbeddingError
	return errors.As(err, &ee)
}

// IsIndexError reports whether err is an index-stage failure.
func IsIndexError(err error) bool {
	var ie *IndexError
	return errors.As(err, &ie)
}
