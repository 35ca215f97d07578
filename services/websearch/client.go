// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package websearch wraps an external web search API for the model's
// web_search tool.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamescout.websearch")

// DefaultMaxResults bounds one search when the caller does not ask for
// a specific count.
const DefaultMaxResults = 5

// SearchResult is one hit from the search API.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs web searches. The model's tool and tests depend on
// this, not on the HTTP client.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Client calls a JSON search endpoint (POST {"query": ..., "max_results": ...}).
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ Searcher = (*Client)(nil)

// NewClient builds a search client. Panics when endpoint is empty.
func NewClient(endpoint, apiKey string) *Client {
	if endpoint == "" {
		panic("websearch: NewClient requires a non-empty endpoint")
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Search runs one query and returns API-ordered results.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "websearch.Search")
	defer span.End()

	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	span.SetAttributes(
		attribute.Int("query.length", len(query)),
		attribute.Int("query.max_results", maxResults),
	)

	body, err := json.Marshal(searchRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search request failed")
		return nil, fmt.Errorf("search service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("search failed (status %d): %s", resp.StatusCode, string(raw))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	span.SetAttributes(attribute.Int("results.count", len(decoded.Results)))
	return decoded.Results, nil
}
