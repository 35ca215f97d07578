// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes maps URLs to handlers.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gamescout-ai/gamescout/services/orchestrator/handlers"
)

// ServiceName labels health responses and telemetry.
const ServiceName = "gamescout-orchestrator"

// SetupRoutes registers every endpoint on the router.
func SetupRoutes(router *gin.Engine, chat handlers.ChatStreamHandler) {
	router.GET("/health", handlers.HealthCheck(ServiceName))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/chat", chat.HandleChatStream)
	}
}
