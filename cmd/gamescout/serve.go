// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/gamescout-ai/gamescout/services/orchestrator"
	orchconfig "github.com/gamescout-ai/gamescout/services/orchestrator/config"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat orchestrator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := orchconfig.Load()
		if servePort != "" {
			cfg.Port = servePort
		}

		server, err := orchestrator.New(cfg)
		if err != nil {
			return err
		}
		return server.Run()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (overrides GAMESCOUT_PORT)")
	rootCmd.AddCommand(serveCmd)
}
