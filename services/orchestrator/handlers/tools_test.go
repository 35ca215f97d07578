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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamescout-ai/gamescout/services/retrieval"
	"github.com/gamescout-ai/gamescout/services/websearch"
)

type mockSearcher struct {
	results []websearch.SearchResult
	err     error
	gotMax  int
}

func (m *mockSearcher) Search(ctx context.Context, query string, maxResults int) ([]websearch.SearchResult, error) {
	m.gotMax = maxResults
	return m.results, m.err
}

func TestBuildToolRegistry_NilDepsShrinkRegistry(t *testing.T) {
	tests := []struct {
		name      string
		retriever retrieval.Retriever
		searcher  websearch.Searcher
		wantLen   int
	}{
		{"both nil", nil, nil, 0},
		{"retriever only", &mockRetriever{}, nil, 1},
		{"searcher only", nil, &mockSearcher{}, 1},
		{"both present", &mockRetriever{}, &mockSearcher{}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := BuildToolRegistry(tt.retriever, tt.searcher)
			assert.Equal(t, tt.wantLen, registry.Len())
		})
	}
}

func TestVectorSearchTool_Executes(t *testing.T) {
	retriever := &mockRetriever{hits: []retrieval.GameHit{{
		ID:       "g-1",
		Score:    0.91,
		Metadata: map[string]any{"title": "Celeste"},
	}}}
	registry := BuildToolRegistry(retriever, nil)
	tool, ok := registry.Get(ToolVectorDatabaseSearch)
	require.True(t, ok)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"tough platformers","top_k":4,"tags":["challenging"]}`))
	require.NoError(t, err)

	assert.Equal(t, "tough platformers", retriever.gotQuery.Text)
	assert.Equal(t, 4, retriever.gotQuery.TopK)
	assert.Equal(t, []string{"challenging"}, retriever.gotQuery.AllowedTags)

	var hits []retrieval.GameHit
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "g-1", hits[0].ID)
}

func TestVectorSearchTool_Failures(t *testing.T) {
	registry := BuildToolRegistry(&mockRetriever{}, nil)
	tool, ok := registry.Get(ToolVectorDatabaseSearch)
	require.True(t, ok)

	t.Run("missing query", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
		assert.Error(t, err)
	})

	t.Run("malformed arguments", func(t *testing.T) {
		_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":`))
		assert.Error(t, err)
	})

	t.Run("retriever failure propagates", func(t *testing.T) {
		broken := BuildToolRegistry(&mockRetriever{err: fmt.Errorf("index down")}, nil)
		tool, ok := broken.Get(ToolVectorDatabaseSearch)
		require.True(t, ok)
		_, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"q"}`))
		assert.Error(t, err)
	})
}

func TestWebSearchTool_Executes(t *testing.T) {
	searcher := &mockSearcher{results: []websearch.SearchResult{
		{Title: "Hades II early access", URL: "https://example.com", Snippet: "Out now."},
	}}
	registry := BuildToolRegistry(nil, searcher)
	tool, ok := registry.Get(ToolWebSearch)
	require.True(t, ok)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"hades 2 release","max_results":2}`))
	require.NoError(t, err)
	assert.Equal(t, 2, searcher.gotMax)

	var results []websearch.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "Hades II early access", results[0].Title)
}
