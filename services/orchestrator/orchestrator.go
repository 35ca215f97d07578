// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package orchestrator boots the GameScout chat service: telemetry,
// the moderation gate, the retrieval pipeline, the model client, and
// the HTTP surface.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gamescout-ai/gamescout/services/llm"
	"github.com/gamescout-ai/gamescout/services/moderation"
	"github.com/gamescout-ai/gamescout/services/orchestrator/config"
	"github.com/gamescout-ai/gamescout/services/orchestrator/handlers"
	"github.com/gamescout-ai/gamescout/services/orchestrator/observability"
	"github.com/gamescout-ai/gamescout/services/orchestrator/routes"
	"github.com/gamescout-ai/gamescout/services/retrieval"
	"github.com/gamescout-ai/gamescout/services/websearch"
)

// Server is a fully wired orchestrator ready to serve.
type Server struct {
	cfg           config.Config
	router        *gin.Engine
	shutdownTrace func(context.Context)
}

// New wires every component the configuration enables.
//
// # Description
//
//	Missing optional configuration degrades instead of failing:
//	no embedding or index settings means no retrieval (chat still
//	works, tools shrink to match), no web search URL means no
//	web_search tool, moderation off means no gate. Only the model
//	client is mandatory.
func New(cfg config.Config) (*Server, error) {
	observability.Init()

	shutdownTrace, err := initTracer(context.Background(), cfg.OTLPEndpoint)
	if err != nil {
		// Tracing is wanted, not required.
		slog.Warn("Tracer init failed, continuing without traces", "error", err)
		shutdownTrace = func(context.Context) {}
	}

	llmClient, err := llm.NewOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("init model client: %w", err)
	}

	var gate moderation.Gate
	if cfg.ModerationEnabled {
		gate = moderation.NewOpenAIGate(
			newOpenAIAPIClient(),
			cfg.ModerationModel,
			cfg.DenialMessage,
		)
	} else {
		slog.Warn("Moderation disabled by configuration")
	}

	retriever, err := buildRetriever(cfg)
	if err != nil {
		slog.Warn("Retrieval init failed, running without catalog context", "error", err)
		retriever = nil
	}

	var searcher websearch.Searcher
	if cfg.WebSearchURL != "" {
		searcher = websearch.NewClient(cfg.WebSearchURL, cfg.WebSearchAPIKey)
	}

	tools := handlers.BuildToolRegistry(retriever, searcher)
	chat := handlers.NewChatStreamHandler(gate, retriever, llmClient, tools,
		cfg.SystemPrompt, cfg.RequestTimeout)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(routes.ServiceName))
	routes.SetupRoutes(router, chat)

	return &Server{cfg: cfg, router: router, shutdownTrace: shutdownTrace}, nil
}

// Run serves until the listener fails. Blocks.
func (s *Server) Run() error {
	defer s.shutdownTrace(context.Background())

	addr := ":" + s.cfg.Port
	slog.Info("Starting orchestrator",
		"addr", addr,
		"retrieval", s.cfg.RetrievalConfigured(),
		"backend", s.cfg.VectorBackend)
	return s.router.Run(addr)
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// buildRetriever assembles the embed-then-search pipeline for the
// configured backend.
func buildRetriever(cfg config.Config) (retrieval.Retriever, error) {
	if !cfg.RetrievalConfigured() {
		return nil, nil
	}

	embedder := retrieval.NewHTTPEmbedder(cfg.EmbeddingURL)

	var index retrieval.GameIndex
	switch cfg.VectorBackend {
	case config.BackendPinecone:
		index = retrieval.NewPineconeIndex(cfg.PineconeHost, cfg.PineconeIndex, cfg.PineconeAPIKey)
	case config.BackendWeaviate:
		client, err := retrieval.NewWeaviateClient(cfg.WeaviateURL)
		if err != nil {
			return nil, err
		}
		index = retrieval.NewWeaviateIndex(client, cfg.WeaviateClass)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}

	return retrieval.NewClient(embedder, index), nil
}

// newOpenAIAPIClient builds the plain API client used for moderation.
// Shares the model client's env contract.
func newOpenAIAPIClient() *openai.Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		if data, err := os.ReadFile("/run/secrets/openai_api_key"); err == nil {
			apiKey = strings.TrimSpace(string(data))
		}
	}
	clientCfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		clientCfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// initTracer stands up the OTLP gRPC trace pipeline. The returned
// function flushes and shuts the provider down.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(routes.ServiceName)))
	if err != nil {
		return nil, err
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceProvider.Shutdown(ctx); err != nil {
			slog.Warn("Tracer shutdown failed", "error", err)
		}
	}, nil
}
