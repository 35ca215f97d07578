// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cliconfig "github.com/gamescout-ai/gamescout/cmd/gamescout/config"
	orchconfig "github.com/gamescout-ai/gamescout/services/orchestrator/config"
	"github.com/gamescout-ai/gamescout/services/retrieval"
)

var (
	searchTopK    int
	searchTags    []string
	searchAsJSON  bool
	searchContext bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the game catalog directly",
	Long: "Runs the embed-then-search retrieval pipeline against the configured\n" +
		"vector backend and prints the hits, without going through the chat model.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fileCfg, err := cliconfig.Global()
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}

		topK := searchTopK
		if topK <= 0 {
			topK = fileCfg.DefaultTopK
		}
		tags := searchTags
		if len(tags) == 0 {
			tags = fileCfg.DefaultTags
		}

		cfg := orchconfig.Load()
		retriever, err := buildCLIRetriever(cfg)
		if err != nil {
			return err
		}

		hits, err := retriever.Retrieve(cmd.Context(), retrieval.Query{
			Text:        strings.Join(args, " "),
			TopK:        topK,
			AllowedTags: tags,
		})
		if err != nil {
			return err
		}

		switch {
		case searchContext:
			fmt.Println(retrieval.AssembleContext(hits))
		case searchAsJSON:
			out, err := json.MarshalIndent(hits, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		default:
			if len(hits) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for i, hit := range hits {
				fmt.Printf("%2d. %-40v score=%.3f id=%s\n",
					i+1, hit.Metadata["title"], hit.Score, hit.ID)
			}
		}
		return nil
	},
}

func buildCLIRetriever(cfg orchconfig.Config) (retrieval.Retriever, error) {
	if !cfg.RetrievalConfigured() {
		return nil, fmt.Errorf("retrieval is not configured; set EMBEDDING_URL and backend settings")
	}

	embedder := retrieval.NewHTTPEmbedder(cfg.EmbeddingURL)
	switch cfg.VectorBackend {
	case orchconfig.BackendPinecone:
		return retrieval.NewClient(embedder,
			retrieval.NewPineconeIndex(cfg.PineconeHost, cfg.PineconeIndex, cfg.PineconeAPIKey)), nil
	case orchconfig.BackendWeaviate:
		client, err := retrieval.NewWeaviateClient(cfg.WeaviateURL)
		if err != nil {
			return nil, err
		}
		return retrieval.NewClient(embedder,
			retrieval.NewWeaviateIndex(client, cfg.WeaviateClass)), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "maximum hits (default from config file)")
	searchCmd.Flags().StringSliceVarP(&searchTags, "tag", "t", nil, "restrict to experience tags")
	searchCmd.Flags().BoolVar(&searchAsJSON, "json", false, "print raw hits as JSON")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print the assembled model context instead of hits")
	rootCmd.AddCommand(searchCmd)
}
