// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var weaviateTracer = otel.Tracer("gamescout.retrieval.weaviate")

// DefaultGameClass is the Weaviate class holding catalog entries.
const DefaultGameClass = "GameCatalogEntry"

// WeaviateIndex queries the game catalog through the Weaviate Go
// client. Self-hosted deployments use this instead of Pinecone.
type WeaviateIndex struct {
	client    *weaviate.Client
	className string
}

var _ GameIndex = (*WeaviateIndex)(nil)

// NewWeaviateIndex wraps an existing Weaviate client. className falls
// back to DefaultGameClass when empty.
func NewWeaviateIndex(client *weaviate.Client, className string) *WeaviateIndex {
	if client == nil {
		panic("retrieval: NewWeaviateIndex requires a non-nil client")
	}
	if className == "" {
		className = DefaultGameClass
	}
	return &WeaviateIndex{client: client, className: className}
}

// Search runs a nearVector query and maps each object to a GameHit.
// Certainty from _additional becomes the hit score; Weaviate returns
// objects best-first and that order is preserved.
func (w *WeaviateIndex) Search(ctx context.Context, vector []float32, topK int, allowedTags []string) ([]GameHit, error) {
	ctx, span := weaviateTracer.Start(ctx, "weaviate.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("index.class", w.className),
		attribute.Int("query.top_k", topK),
	)

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "gameId"},
		{Name: "title"},
		{Name: "description"},
		{Name: "experienceTags"},
		{Name: "contentWarnings"},
		{Name: "sourceUrl"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "certainty"},
		}},
	}

	query := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(topK)

	if len(allowedTags) > 0 {
		where := filters.Where().
			WithPath([]string{"experienceTags"}).
			WithOperator(filters.ContainsAny).
			WithValueText(allowedTags...)
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, &IndexError{Backend: "weaviate", Message: "query failed", Err: err}
	}
	if len(result.Errors) > 0 {
		err := &IndexError{Backend: "weaviate", Message: result.Errors[0].Message}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	hits, err := w.parseHits(result)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("hits.count", len(hits)))
	return hits, nil
}

// weaviateGameObject mirrors the GraphQL Get payload for catalog
// entries. Parsed via the marshal/unmarshal round trip because the
// client returns dynamic JSON objects.
type weaviateGameObject struct {
	GameID          string   `json:"gameId"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	ExperienceTags  []string `json:"experienceTags"`
	ContentWarnings []string `json:"contentWarnings"`
	SourceURL       string   `json:"sourceUrl"`
	Additional      struct {
		ID        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

func (w *WeaviateIndex) parseHits(result *models.GraphQLResponse) ([]GameHit, error) {
	raw, err := json.Marshal(result.Data)
	if err != nil {
		return nil, &IndexError{Backend: "weaviate", Message: "marshal response", Err: err}
	}

	var payload struct {
		Get map[string][]weaviateGameObject `json:"Get"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, &IndexError{Backend: "weaviate", Message: "decode response", Err: err}
	}

	objects := payload.Get[w.className]
	hits := make([]GameHit, 0, len(objects))
	for _, obj := range objects {
		hit := GameHit{
			ID:    obj.Additional.ID,
			Score: obj.Additional.Certainty,
			Metadata: map[string]any{
				"gameId":          obj.GameID,
				"title":           obj.Title,
				"description":     obj.Description,
				"experienceTags":  obj.ExperienceTags,
				"contentWarnings": obj.ContentWarnings,
				"sourceUrl":       obj.SourceURL,
			},
		}
		if hit.ID == "" {
			hit.ID = obj.GameID
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// NewWeaviateClient dials a Weaviate deployment at baseURL, e.g.
// "http://localhost:8080".
func NewWeaviateClient(baseURL string) (*weaviate.Client, error) {
	scheme, host, err := splitURL(baseURL)
	if err != nil {
		return nil, err
	}
	return weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: host})
}

func splitURL(baseURL string) (scheme, host string, err error) {
	switch {
	case len(baseURL) > 8 && baseURL[:8] == "https://":
		return "https", baseURL[8:], nil
	case len(baseURL) > 7 && baseURL[:7] == "http://":
		return "http", baseURL[7:], nil
	default:
		return "", "", fmt.Errorf("weaviate URL %q must include http:// or https://", baseURL)
	}
}
