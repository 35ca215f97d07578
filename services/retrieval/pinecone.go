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
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var pineconeTracer = otel.Tracer("gamescout.retrieval.pinecone")

// metadataTagsField is the catalog metadata key carrying experience
// tags, used for server-side filtering.
const metadataTagsField = "experienceTags"

// PineconeIndex queries a Pinecone index over its REST API.
type PineconeIndex struct {
	host       string
	index      string
	apiKey     string
	httpClient *http.Client
}

var _ GameIndex = (*PineconeIndex)(nil)

// NewPineconeIndex builds a Pinecone-backed game index. host is the
// gateway base URL, index the index name. Panics when either is empty.
func NewPineconeIndex(host, index, apiKey string) *PineconeIndex {
	if host == "" || index == "" {
		panic("retrieval: NewPineconeIndex requires host and index")
	}
	return &PineconeIndex{
		host:       strings.TrimRight(host, "/"),
		index:      index,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type pineconeQueryRequest struct {
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
	IncludeValues   bool           `json:"includeValues"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

// Search runs a similarity query and returns hits in Pinecone's score
// order. allowedTags, when non-empty, becomes a server-side $in filter
// on the experience tags metadata field.
func (p *PineconeIndex) Search(ctx context.Context, vector []float32, topK int, allowedTags []string) ([]GameHit, error) {
	ctx, span := pineconeTracer.Start(ctx, "pinecone.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.name", p.index),
		attribute.Int("query.top_k", topK),
	)

	reqBody := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		IncludeValues:   false,
	}
	if len(allowedTags) > 0 {
		reqBody.Filter = map[string]any{
			metadataTagsField: map[string]any{"$in": allowedTags},
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &IndexError{Backend: "pinecone", Message: "marshal query", Err: err}
	}

	url := fmt.Sprintf("%s/databases/%s/query", p.host, p.index)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &IndexError{Backend: "pinecone", Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pinecone unreachable")
		return nil, &IndexError{Backend: "pinecone", Message: "index unreachable", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &IndexError{
			Backend:    "pinecone",
			StatusCode: resp.StatusCode,
			Message:    string(raw),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var decoded pineconeQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &IndexError{Backend: "pinecone", Message: "decode response", Err: err}
	}

	hits := make([]GameHit, 0, len(decoded.Matches))
	for _, m := range decoded.Matches {
		hits = append(hits, GameHit{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	span.SetAttributes(attribute.Int("hits.count", len(hits)))
	return hits, nil
}
