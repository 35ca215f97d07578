// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var clientTracer = otel.Tracer("gamescout.retrieval.client")

// Client runs the embed-then-search pipeline against a configured
// index backend.
type Client struct {
	embedder Embedder
	index    GameIndex
}

var _ Retriever = (*Client)(nil)

// NewClient wires an embedder to an index. Panics on nil dependencies;
// a retriever with half a pipeline cannot do anything useful.
func NewClient(embedder Embedder, index GameIndex) *Client {
	if embedder == nil {
		panic("retrieval: NewClient requires a non-nil embedder")
	}
	if index == nil {
		panic("retrieval: NewClient requires a non-nil index")
	}
	return &Client{embedder: embedder, index: index}
}

// Retrieve embeds q.Text and searches the catalog index.
//
// # Description
//
//	Stage one embeds the query text. Stage two queries the index with
//	the vector, q.TopK (defaulted and clamped), and the allowed-tag
//	set, which the backend may apply server-side. The tag restriction
//	is then applied again client-side as a plain set intersection, so
//	the admission rule holds no matter what the backend did with the
//	filter. Hits keep the backend's score order throughout.
//
// # Inputs
//   - ctx: cancels both stages.
//   - q: the query. q.Text must be non-empty.
//
// # Outputs
//   - []GameHit: matching catalog entries, best-first per the backend.
//   - error: *EmbeddingError or *IndexError identifying the failed stage.
func (c *Client) Retrieve(ctx context.Context, q Query) ([]GameHit, error) {
	ctx, span := clientTracer.Start(ctx, "retrieval.Retrieve")
	defer span.End()

	topK := q.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		topK = MaxTopK
	}
	span.SetAttributes(
		attribute.Int("query.top_k", topK),
		attribute.Int("query.allowed_tags", len(q.AllowedTags)),
	)

	vector, err := c.embedder.Embed(ctx, q.Text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding stage failed")
		return nil, err
	}

	hits, err := c.index.Search(ctx, vector, topK, q.AllowedTags)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "index stage failed")
		return nil, err
	}

	filtered := FilterByTags(hits, q.AllowedTags)
	if dropped := len(hits) - len(filtered); dropped > 0 {
		slog.Debug("Dropped hits outside allowed tag set",
			"dropped", dropped,
			"kept", len(filtered))
	}
	span.SetAttributes(attribute.Int("hits.count", len(filtered)))
	return filtered, nil
}

// FilterByTags keeps hits whose experience tags intersect allowedTags.
// An empty allowed set admits every hit. A hit with no tags is only
// admitted by the empty set. Order is preserved; the returned slice is
// always freshly allocated.
func FilterByTags(hits []GameHit, allowedTags []string) []GameHit {
	out := make([]GameHit, 0, len(hits))
	if len(allowedTags) == 0 {
		out = append(out, hits...)
		return out
	}

	allowed := make(map[string]struct{}, len(allowedTags))
	for _, t := range allowedTags {
		allowed[t] = struct{}{}
	}

	for _, hit := range hits {
		for _, tag := range metadataStrings(hit.Metadata, "experienceTags", "experience_tags") {
			if _, ok := allowed[tag]; ok {
				out = append(out, hit)
				break
			}
		}
	}
	return out
}

// metadataStrings reads the first present key as a string list.
// Accepts []string, []any of strings, and a bare string.
func metadataStrings(meta map[string]any, keys ...string) []string {
	for _, key := range keys {
		raw, ok := meta[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case []string:
			return v
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case string:
			if v == "" {
				return nil
			}
			return []string{v}
		}
	}
	return nil
}

// metadataString reads the first present non-empty string value.
func metadataString(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := meta[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
