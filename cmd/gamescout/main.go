// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// gamescout is the operations CLI: it runs the orchestrator and
// exercises its pipeline pieces from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gamescout-ai/gamescout/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "gamescout",
	Short: "GameScout games recommendation service",
	Long: "GameScout streams retrieval-augmented game recommendations.\n" +
		"Run the server with `gamescout serve`, or poke at the pipeline\n" +
		"directly with `gamescout search` and `gamescout moderate`.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Local .env is a convenience; absence is normal in production.
		_ = godotenv.Load()
		logging.FromEnv("gamescout-cli")
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
