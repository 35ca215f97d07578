// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gamescout-ai/gamescout/services/llm"
	"github.com/gamescout-ai/gamescout/services/retrieval"
	"github.com/gamescout-ai/gamescout/services/websearch"
)

// Tool names exposed to the model.
const (
	ToolVectorDatabaseSearch = "vector_database_search"
	ToolWebSearch            = "web_search"
)

// BuildToolRegistry assembles the fixed tool set for chat streams.
// Either dependency may be nil; its tool is simply not registered, so
// a lightweight deployment still exposes whatever it can serve.
func BuildToolRegistry(retriever retrieval.Retriever, searcher websearch.Searcher) *llm.Registry {
	registry := llm.NewRegistry()

	if retriever != nil {
		must(registry.Register(llm.Tool{
			Name: ToolVectorDatabaseSearch,
			Description: "Search the game catalog by meaning. Use this to find games " +
				"matching a described mood, mechanic, or experience. Returns scored " +
				"matches with title, description, content warnings, and source URL.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Natural-language description of the games to find.",
					},
					"top_k": map[string]any{
						"type":        "integer",
						"description": "Maximum matches to return (default 6, max 50).",
					},
					"tags": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Restrict matches to games with at least one of these experience tags.",
					},
				},
				"required": []string{"query"},
			},
			Execute: vectorSearchTool(retriever),
		}))
	}

	if searcher != nil {
		must(registry.Register(llm.Tool{
			Name: ToolWebSearch,
			Description: "Search the web for current information: prices, release " +
				"dates, platform availability, recent reviews.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Search query.",
					},
					"max_results": map[string]any{
						"type":        "integer",
						"description": "Maximum results to return (default 5).",
					},
				},
				"required": []string{"query"},
			},
			Execute: webSearchTool(searcher),
		}))
	}

	return registry
}

type vectorSearchArgs struct {
	Query string   `json:"query"`
	TopK  int      `json:"top_k"`
	Tags  []string `json:"tags"`
}

// vectorSearchTool lets the model run its own catalog retrievals with
// model-chosen query, count, and tag restriction. Same pipeline and
// filtering as the eager pass.
func vectorSearchTool(retriever retrieval.Retriever) llm.ToolFunc {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args vectorSearchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("bad arguments: %w", err)
		}
		if args.Query == "" {
			return "", fmt.Errorf("query is required")
		}

		hits, err := retriever.Retrieve(ctx, retrieval.Query{
			Text:        args.Query,
			TopK:        args.TopK,
			AllowedTags: args.Tags,
		})
		if err != nil {
			return "", err
		}

		payload, err := json.Marshal(hits)
		if err != nil {
			return "", fmt.Errorf("marshal hits: %w", err)
		}
		return string(payload), nil
	}
}

type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

func webSearchTool(searcher websearch.Searcher) llm.ToolFunc {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args webSearchArgs
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("bad arguments: %w", err)
		}
		if args.Query == "" {
			return "", fmt.Errorf("query is required")
		}

		results, err := searcher.Search(ctx, args.Query, args.MaxResults)
		if err != nil {
			return "", err
		}

		payload, err := json.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("marshal results: %w", err)
		}
		return string(payload), nil
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
