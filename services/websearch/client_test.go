// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_PanicsOnEmptyEndpoint(t *testing.T) {
	assert.Panics(t, func() { NewClient("", "key") })
}

func TestSearch_RequestShape(t *testing.T) {
	var got searchRequest
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(searchResponse{Results: []SearchResult{
			{Title: "Hades review", URL: "https://example.com/hades", Snippet: "A roguelike."},
		}})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	results, err := client.Search(context.Background(), "hades review", 3)

	require.NoError(t, err)
	assert.Equal(t, "hades review", got.Query)
	assert.Equal(t, 3, got.MaxResults)
	assert.Equal(t, "Bearer secret", gotAuth)
	require.Len(t, results, 1)
	assert.Equal(t, "Hades review", results[0].Title)
}

func TestSearch_DefaultsMaxResults(t *testing.T) {
	var got searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Search(context.Background(), "q", 0)

	require.NoError(t, err)
	assert.Equal(t, DefaultMaxResults, got.MaxResults)
}

func TestSearch_NoAuthHeaderWithoutKey(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.Search(context.Background(), "q", 1)

	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestSearch_Failures(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		_, err := client.Search(context.Background(), "q", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 429")
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", "")
		_, err := client.Search(context.Background(), "q", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unreachable")
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer server.Close()

		client := NewClient(server.URL, "")
		_, err := client.Search(context.Background(), "q", 1)
		require.Error(t, err)
	})
}
