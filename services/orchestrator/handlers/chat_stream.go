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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gamescout-ai/gamescout/services/llm"
	"github.com/gamescout-ai/gamescout/services/moderation"
	"github.com/gamescout-ai/gamescout/services/orchestrator/datatypes"
	"github.com/gamescout-ai/gamescout/services/orchestrator/observability"
	"github.com/gamescout-ai/gamescout/services/retrieval"
)

// DefaultRequestTimeout bounds one chat turn end to end, tool calls
// included.
const DefaultRequestTimeout = 30 * time.Second

// keepAliveInterval is how often the stream emits a comment ping while
// the model thinks.
const keepAliveInterval = 15 * time.Second

const badRequestBody = "Bad request: missing messages"

// ChatStreamHandler serves POST /api/chat.
type ChatStreamHandler interface {
	HandleChatStream(c *gin.Context)
}

// chatStreamHandler drives one request through moderation, retrieval,
// context assembly, and the streaming model call.
//
// gate and retriever may be nil: a deployment without moderation or a
// catalog index still chats, it just skips those stages.
type chatStreamHandler struct {
	gate           moderation.Gate
	retriever      retrieval.Retriever
	llmClient      llm.LLMClient
	tools          *llm.Registry
	systemPrompt   string
	requestTimeout time.Duration
	tracer         trace.Tracer
}

var _ ChatStreamHandler = (*chatStreamHandler)(nil)

// NewChatStreamHandler wires the chat pipeline.
//
// # Inputs
//   - gate: moderation gate; nil skips moderation entirely.
//   - retriever: catalog retriever; nil skips eager retrieval and the
//     retrieval tool works only if registered in tools by the caller.
//   - llmClient: streaming model backend. Required; panics when nil.
//   - tools: tool registry handed to every model call; may be nil.
//   - systemPrompt: base system prompt, prepended to every turn.
//   - requestTimeout: per-request wall clock budget; <= 0 means
//     DefaultRequestTimeout.
func NewChatStreamHandler(gate moderation.Gate, retriever retrieval.Retriever, llmClient llm.LLMClient, tools *llm.Registry, systemPrompt string, requestTimeout time.Duration) ChatStreamHandler {
	if llmClient == nil {
		panic("handlers: NewChatStreamHandler requires a non-nil llmClient")
	}
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &chatStreamHandler{
		gate:           gate,
		retriever:      retriever,
		llmClient:      llmClient,
		tools:          tools,
		systemPrompt:   systemPrompt,
		requestTimeout: requestTimeout,
		tracer:         otel.Tracer("gamescout.orchestrator.chat"),
	}
}

// HandleChatStream runs one chat turn.
//
// # Description
//
//	Step 1: parse and validate the body. A body without a messages
//	array is rejected with a plain-text 400 before any downstream
//	work. Step 2: moderate the latest user text; a flagged message
//	streams the fixed denial sequence and stops. A moderation outage
//	fails open with a logged warning. Step 3: eagerly retrieve catalog
//	context; any failure downgrades to an empty context. Step 4:
//	stream the model call, relaying deltas, reasoning, and tool
//	traffic as SSE events. Step 5: finish. Errors after headers are
//	sent become error events on the stream; whatever text already
//	streamed stands.
func (h *chatStreamHandler) HandleChatStream(c *gin.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.requestTimeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "chat.HandleChatStream")
	defer span.End()

	metrics := observability.DefaultMetrics
	status := "ok"
	if metrics != nil {
		metrics.ActiveStreams.Inc()
		defer func() {
			metrics.ActiveStreams.Dec()
			metrics.RequestsTotal.WithLabelValues(status).Inc()
			metrics.StreamDurationSeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())
		}()
	}

	// Step 1: Parse and validate.
	req, ok := h.parseRequest(c, span)
	if !ok {
		status = "bad_request"
		return
	}
	req.EnsureDefaults()
	span.SetAttributes(
		attribute.Int("request.messages", len(req.Messages)),
		attribute.Int("request.top_k", req.TopK),
	)

	latestText := datatypes.LatestUserText(req.Messages)

	// Step 2: Moderate. Denied requests still speak SSE so the client
	// renders them like any other assistant turn.
	denial, failedOpen := h.moderate(ctx, span, latestText)
	if failedOpen {
		span.AddEvent("moderation_failed_open")
	}
	if denial != "" {
		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			status = "error"
			c.String(http.StatusInternalServerError, "streaming unsupported")
			return
		}
		if err := writer.WriteDenial(denial); err != nil {
			slog.Warn("Failed to write denial stream", "error", err)
		}
		status = "denied"
		span.SetAttributes(attribute.Bool("moderation.denied", true))
		return
	}

	// Step 3: Eager retrieval, best effort.
	contextBlock := h.retrieveContext(ctx, span, req, latestText)

	systemPrompt := h.systemPrompt
	if contextBlock != "" {
		systemPrompt = fmt.Sprintf("%s\n\nRelevant games from the catalog:\n\n%s", h.systemPrompt, contextBlock)
	}

	// Step 4: Stream the model call.
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		status = "error"
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if err := writer.WriteStart(); err != nil {
		status = "error"
		return
	}

	done := make(chan struct{})
	defer close(done)
	go runKeepAlive(writer, done)

	relay := newStreamRelay(writer, metrics, start)
	streamErr := h.llmClient.ChatStream(ctx, req.Messages, llm.GenerationParams{
		SystemPrompt:       systemPrompt,
		MaxSteps:           llm.DefaultMaxSteps,
		SerializeToolCalls: true,
		ReasoningEffort:    "low",
	}, h.tools, relay.handle)

	relay.closeOpenParts()

	if streamErr != nil {
		status = "error"
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "model stream failed")
		if metrics != nil {
			metrics.ErrorsTotal.WithLabelValues(observability.ErrorCodeModelStream).Inc()
		}
		slog.Error("Model stream failed", "error", streamErr)
		if writeErr := writer.WriteStreamError(streamErrorMessage(streamErr)); writeErr != nil {
			slog.Warn("Failed to write stream error event", "error", writeErr)
		}
	}

	// Step 5: Finish. Emitted on both success and error paths so the
	// client always sees a terminal event.
	if err := writer.WriteFinish(); err != nil {
		slog.Warn("Failed to write finish event", "error", err)
	}
}

// parseRequest decodes and validates the body. False means a response
// was already written.
func (h *chatStreamHandler) parseRequest(c *gin.Context, span trace.Span) (*datatypes.ChatStreamRequest, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, badRequestBody)
		return nil, false
	}

	var req datatypes.ChatStreamRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Messages == nil {
		// Missing field and malformed JSON land the same way: nothing
		// to chat about. An empty-but-present array passes.
		span.SetAttributes(attribute.Bool("request.malformed", true))
		if m := observability.DefaultMetrics; m != nil {
			m.ErrorsTotal.WithLabelValues(observability.ErrorCodeBadRequest).Inc()
		}
		c.String(http.StatusBadRequest, badRequestBody)
		return nil, false
	}

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		if m := observability.DefaultMetrics; m != nil {
			m.ErrorsTotal.WithLabelValues(observability.ErrorCodeBadRequest).Inc()
		}
		c.String(http.StatusBadRequest, fmt.Sprintf("Bad request: %v", err))
		return nil, false
	}
	return &req, true
}

// moderate screens text through the gate. Returns the denial message
// when flagged, and whether the gate failed open.
func (h *chatStreamHandler) moderate(ctx context.Context, span trace.Span, text string) (denial string, failedOpen bool) {
	if h.gate == nil || text == "" {
		return "", false
	}

	metrics := observability.DefaultMetrics
	result, err := h.gate.Moderate(ctx, text)
	if err != nil {
		// Fail open: a moderation outage must not take chat down.
		slog.Warn("Moderation gate failed, continuing without it", "error", err)
		if metrics != nil {
			metrics.ModerationChecksTotal.WithLabelValues(observability.ModerationOutcomeError).Inc()
			metrics.ErrorsTotal.WithLabelValues(observability.ErrorCodeModeration).Inc()
		}
		return "", true
	}
	if result.Flagged {
		if metrics != nil {
			metrics.ModerationChecksTotal.WithLabelValues(observability.ModerationOutcomeFlagged).Inc()
		}
		if result.DenialMessage != "" {
			return result.DenialMessage, false
		}
		return moderation.DefaultDenialMessage, false
	}
	if metrics != nil {
		metrics.ModerationChecksTotal.WithLabelValues(observability.ModerationOutcomeClean).Inc()
	}
	return "", false
}

// retrieveContext runs eager retrieval and assembly. Every failure
// path returns "" so the turn continues without context.
func (h *chatStreamHandler) retrieveContext(ctx context.Context, span trace.Span, req *datatypes.ChatStreamRequest, latestText string) string {
	if h.retriever == nil {
		return ""
	}

	queryText := req.RetrievalQuery
	if queryText == "" {
		queryText = latestText
	}
	if queryText == "" {
		return ""
	}

	metrics := observability.DefaultMetrics
	hits, err := h.retriever.Retrieve(ctx, retrieval.Query{
		Text:        queryText,
		TopK:        req.TopK,
		AllowedTags: req.ExperienceTags,
	})
	if err != nil {
		slog.Warn("Retrieval failed, continuing with empty context", "error", err)
		span.AddEvent("retrieval_failed")
		if metrics != nil {
			metrics.RetrievalRequestsTotal.WithLabelValues("error").Inc()
			metrics.ErrorsTotal.WithLabelValues(observability.ErrorCodeRetrieval).Inc()
		}
		return ""
	}
	if metrics != nil {
		metrics.RetrievalRequestsTotal.WithLabelValues("ok").Inc()
		metrics.RetrievalHits.WithLabelValues("eager").Observe(float64(len(hits)))
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))
	return retrieval.AssembleContext(hits)
}

// streamErrorMessage maps stream failures to client-safe text.
func streamErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if llm.IsModelStreamError(err) {
		return "model stream interrupted"
	}
	return "internal error"
}

// runKeepAlive pings the stream until done closes. Write failures end
// the loop; the client is gone.
func runKeepAlive(writer SSEWriter, done <-chan struct{}) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				return
			}
		}
	}
}

// =============== Stream Relay ===============

// streamRelay converts model stream events to SSE part events,
// tracking which part is open so the wire always shows balanced
// start/end pairs with exactly one part in progress.
type streamRelay struct {
	writer            SSEWriter
	metrics           *observability.StreamingMetrics
	start             time.Time
	firstTokenSeen    bool
	openTextPart      string
	openReasoningPart string
}

func newStreamRelay(writer SSEWriter, metrics *observability.StreamingMetrics, start time.Time) *streamRelay {
	return &streamRelay{writer: writer, metrics: metrics, start: start}
}

func (r *streamRelay) handle(event llm.StreamEvent) error {
	switch event.Type {
	case llm.EventReasoningDelta:
		if err := r.closeTextPart(); err != nil {
			return err
		}
		if r.openReasoningPart == "" {
			r.openReasoningPart = uuid.NewString()
			if err := r.writer.WriteReasoningStart(r.openReasoningPart); err != nil {
				return err
			}
		}
		return r.writer.WriteReasoningDelta(r.openReasoningPart, event.Content)

	case llm.EventTextDelta:
		if err := r.closeReasoningPart(); err != nil {
			return err
		}
		if !r.firstTokenSeen {
			r.firstTokenSeen = true
			if r.metrics != nil {
				r.metrics.TimeToFirstTokenSeconds.WithLabelValues("openai").Observe(time.Since(r.start).Seconds())
			}
		}
		if r.openTextPart == "" {
			r.openTextPart = uuid.NewString()
			if err := r.writer.WriteTextStart(r.openTextPart); err != nil {
				return err
			}
		}
		return r.writer.WriteTextDelta(r.openTextPart, event.Content)

	case llm.EventToolCall:
		if err := r.closeOpenPartsErr(); err != nil {
			return err
		}
		if r.metrics != nil {
			r.metrics.ToolCallsTotal.WithLabelValues(event.ToolCall.Name, "requested").Inc()
		}
		return r.writer.WriteToolCall(event.ToolCall.Name, event.ToolCall.Arguments)

	case llm.EventToolResult:
		if r.metrics != nil {
			outcome := "ok"
			if event.ToolCall.IsError {
				outcome = "error"
			}
			r.metrics.ToolCallsTotal.WithLabelValues(event.ToolCall.Name, outcome).Inc()
		}
		return r.writer.WriteToolResult(event.ToolCall.Name, event.ToolCall.Output, event.ToolCall.IsError)

	case llm.EventStepFinish:
		return r.closeOpenPartsErr()
	}
	return nil
}

func (r *streamRelay) closeTextPart() error {
	if r.openTextPart == "" {
		return nil
	}
	id := r.openTextPart
	r.openTextPart = ""
	return r.writer.WriteTextEnd(id)
}

func (r *streamRelay) closeReasoningPart() error {
	if r.openReasoningPart == "" {
		return nil
	}
	id := r.openReasoningPart
	r.openReasoningPart = ""
	return r.writer.WriteReasoningEnd(id)
}

func (r *streamRelay) closeOpenPartsErr() error {
	if err := r.closeReasoningPart(); err != nil {
		return err
	}
	return r.closeTextPart()
}

// closeOpenParts is the best-effort variant used during teardown.
func (r *streamRelay) closeOpenParts() {
	if err := r.closeOpenPartsErr(); err != nil {
		slog.Debug("Failed to close open stream parts", "error", err)
	}
}
