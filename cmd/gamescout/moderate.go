// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/gamescout-ai/gamescout/services/moderation"
)

var moderateModel string

var moderateCmd = &cobra.Command{
	Use:   "moderate <text>",
	Short: "Run text through the moderation gate",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is not set")
		}
		cfg := openai.DefaultConfig(apiKey)
		if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
			cfg.BaseURL = baseURL
		}

		gate := moderation.NewOpenAIGate(openai.NewClientWithConfig(cfg), moderateModel, "")
		result, err := gate.Moderate(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}

		if result.Flagged {
			fmt.Printf("flagged: %s\n", result.DenialMessage)
		} else {
			fmt.Println("clean")
		}
		return nil
	},
}

func init() {
	moderateCmd.Flags().StringVarP(&moderateModel, "model", "m", "", "moderation model (default "+moderation.DefaultModel+")")
	rootCmd.AddCommand(moderateCmd)
}
