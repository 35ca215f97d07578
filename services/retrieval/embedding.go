// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var embedTracer = otel.Tracer("gamescout.retrieval.embedding")

// embeddingRequest is the wire body sent to the embedding service.
type embeddingRequest struct {
	Input string `json:"input"`
}

// embeddingResponse accepts both payload shapes the embedding service
// is known to produce: a bare top-level vector or an OpenAI-style
// data array whose first element carries the vector.
type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Data      []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (r *embeddingResponse) vector() []float32 {
	if len(r.Embedding) > 0 {
		return r.Embedding
	}
	if len(r.Data) > 0 {
		return r.Data[0].Embedding
	}
	return nil
}

// HTTPEmbedder calls a BGE-style embedding endpoint over HTTP.
type HTTPEmbedder struct {
	endpoint   string
	httpClient *http.Client
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder builds an embedder for the given endpoint URL.
// Panics if endpoint is empty; wiring decides availability, not this
// constructor.
func NewHTTPEmbedder(endpoint string) *HTTPEmbedder {
	if endpoint == "" {
		panic("retrieval: NewHTTPEmbedder requires a non-empty endpoint")
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Embed converts text into a dense vector.
//
// # Description
//
//	POSTs {"input": text} to the embedding endpoint and decodes the
//	vector from whichever of the two accepted payload shapes the
//	service returns. A 2xx response with no usable vector is an
//	EmbeddingError, same as a transport or status failure.
//
// # Inputs
//   - ctx: cancels the HTTP call.
//   - text: query text, must be non-empty.
//
// # Outputs
//   - []float32: the embedding vector.
//   - error: *EmbeddingError on any failure.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := embedTracer.Start(ctx, "embedder.Embed")
	defer span.End()
	span.SetAttributes(attribute.Int("query.length", len(text)))

	if text == "" {
		err := &EmbeddingError{Message: "empty query text"}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	body, err := json.Marshal(embeddingRequest{Input: text})
	if err != nil {
		return nil, &EmbeddingError{Message: "marshal request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &EmbeddingError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding request failed")
		return nil, &EmbeddingError{Message: "embedding service unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &EmbeddingError{
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &EmbeddingError{Message: "decode response", Err: err}
	}

	vec := decoded.vector()
	if len(vec) == 0 {
		return nil, &EmbeddingError{Message: "response carried no embedding vector"}
	}

	span.SetAttributes(attribute.Int("embedding.dimensions", len(vec)))
	return vec, nil
}
