// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gamescout-ai/gamescout/services/orchestrator/datatypes"
)

var openaiTracer = otel.Tracer("gamescout.llm.openai")

// DefaultModel is used when OPENAI_MODEL is unset.
const DefaultModel = openai.GPT4oMini

// OpenAIClient streams chat completions from OpenAI (or any
// API-compatible endpoint via OPENAI_BASE_URL).
type OpenAIClient struct {
	client *openai.Client
	model  string
}

var _ LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client from the environment.
//
// # Description
//
//	Reads OPENAI_API_KEY (falling back to the /run/secrets mount used
//	in container deployments), OPENAI_MODEL, and OPENAI_BASE_URL.
//
// # Outputs
//   - *OpenAIClient: ready to stream.
//   - error: when no API key can be found.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		if data, err := os.ReadFile("/run/secrets/openai_api_key"); err == nil {
			apiKey = strings.TrimSpace(string(data))
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set and no secret file was found")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = DefaultModel
		slog.Warn("OPENAI_MODEL not set, using default", "model", model)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// NewOpenAIClientWithConfig builds a client from an explicit config,
// used by tests and alternate wiring.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig, model string) *OpenAIClient {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

// pendingToolCall accumulates a streamed tool call across deltas.
// OpenAI sends the name first and the arguments as fragments keyed by
// choice index.
type pendingToolCall struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// ChatStream streams one completion, executing tool calls between
// model steps.
//
// # Description
//
//	Runs up to params.MaxSteps model rounds. Each round opens a
//	streaming completion; text and reasoning deltas are forwarded to
//	the callback as they arrive. When the model finishes a round by
//	requesting tools, the calls execute strictly one at a time in
//	index order, each announced via EventToolCall and resolved via
//	EventToolResult, and the transcript grows by the assistant turn
//	plus one tool message per call before the next round starts. A
//	round that finishes without tool calls ends the stream. Hitting
//	the step ceiling ends the stream without error; the text produced
//	so far stands.
//
//	A tool failure does not abort the stream. The model receives a
//	JSON error payload as the tool output and decides how to proceed.
//
// # Inputs
//   - ctx: cancels the stream mid-flight.
//   - messages: conversation history, converted to OpenAI messages.
//   - params: generation tuning; see GenerationParams.
//   - tools: available tools; nil or empty disables tool calling.
//   - callback: receives every event in production order.
//
// # Outputs
//   - error: *ModelStreamError on transport failure, the callback's
//     error when it aborts, nil on normal completion.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []datatypes.ChatMessage, params GenerationParams, tools *Registry, callback StreamCallback) error {
	ctx, span := openaiTracer.Start(ctx, "llm.ChatStream")
	defer span.End()

	maxSteps := params.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	span.SetAttributes(
		attribute.String("llm.model", o.model),
		attribute.Int("llm.max_steps", maxSteps),
		attribute.Int("llm.tools", tools.Len()),
	)

	conversation := convertMessages(params.SystemPrompt, messages)

	for step := 0; step < maxSteps; step++ {
		finished, err := o.runStep(ctx, conversation, params, tools, callback, func(assistant openai.ChatCompletionMessage, toolMsgs []openai.ChatCompletionMessage) {
			conversation = append(conversation, assistant)
			conversation = append(conversation, toolMsgs...)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stream step failed")
			return err
		}
		if finished {
			span.SetAttributes(attribute.Int("llm.steps_used", step+1))
			return nil
		}
		if err := callback(StreamEvent{Type: EventStepFinish}); err != nil {
			return err
		}
	}

	slog.Warn("Chat stream hit step ceiling", "max_steps", maxSteps)
	span.SetAttributes(attribute.Bool("llm.step_ceiling_hit", true))
	return nil
}

// runStep opens one streaming completion round. Returns finished=true
// when the model stopped without requesting tools.
func (o *OpenAIClient) runStep(ctx context.Context, conversation []openai.ChatCompletionMessage, params GenerationParams, tools *Registry, callback StreamCallback, extend func(openai.ChatCompletionMessage, []openai.ChatCompletionMessage)) (finished bool, err error) {
	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: conversation,
		Stream:   true,
	}
	if tools.Len() > 0 {
		req.Tools = tools.Definitions()
		if params.SerializeToolCalls {
			req.ParallelToolCalls = false
		}
	}
	if params.ReasoningEffort != "" {
		req.ReasoningEffort = params.ReasoningEffort
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return false, &ModelStreamError{Message: "open stream", Err: err}
	}
	defer stream.Close()

	var (
		textBuf      strings.Builder
		pending      = make(map[int]*pendingToolCall)
		finishReason openai.FinishReason
	)

	for {
		resp, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return false, &ModelStreamError{Message: "read stream", Err: recvErr}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.ReasoningContent != "" {
			if err := callback(StreamEvent{Type: EventReasoningDelta, Content: choice.Delta.ReasoningContent}); err != nil {
				return false, err
			}
		}
		if choice.Delta.Content != "" {
			textBuf.WriteString(choice.Delta.Content)
			if err := callback(StreamEvent{Type: EventTextDelta, Content: choice.Delta.Content}); err != nil {
				return false, err
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &pendingToolCall{index: idx}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args.WriteString(tc.Function.Arguments)
		}
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
	}

	if finishReason != openai.FinishReasonToolCalls || len(pending) == 0 {
		return true, nil
	}

	// Tool round: execute serially in index order.
	calls := make([]*pendingToolCall, 0, len(pending))
	for _, call := range pending {
		calls = append(calls, call)
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].index < calls[j].index })

	assistant := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: textBuf.String(),
	}
	for _, call := range calls {
		assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
			ID:   call.id,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.name,
				Arguments: call.args.String(),
			},
		})
	}

	toolMsgs := make([]openai.ChatCompletionMessage, 0, len(calls))
	for _, call := range calls {
		args := call.args.String()
		if err := callback(StreamEvent{Type: EventToolCall, ToolCall: &ToolInvocation{
			ID:        call.id,
			Name:      call.name,
			Arguments: args,
		}}); err != nil {
			return false, err
		}

		output, isError := o.executeTool(ctx, tools, call.name, args)
		if err := callback(StreamEvent{Type: EventToolResult, ToolCall: &ToolInvocation{
			ID:        call.id,
			Name:      call.name,
			Arguments: args,
			Output:    output,
			IsError:   isError,
		}}); err != nil {
			return false, err
		}

		toolMsgs = append(toolMsgs, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    output,
			ToolCallID: call.id,
		})
	}

	extend(assistant, toolMsgs)
	return false, nil
}

// executeTool runs one tool with a per-call timeout. Failures become a
// JSON error payload rather than aborting the stream.
func (o *OpenAIClient) executeTool(ctx context.Context, tools *Registry, name, args string) (output string, isError bool) {
	start := time.Now()
	tool, ok := tools.Get(name)
	if !ok {
		slog.Warn("Model requested unknown tool", "tool", name)
		return errorPayload(fmt.Sprintf("unknown tool %q", name)), true
	}

	result, err := tool.Execute(ctx, json.RawMessage(args))
	if err != nil {
		execErr := &ToolExecutionError{Tool: name, Err: err}
		slog.Warn("Tool execution failed",
			"tool", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", execErr)
		return errorPayload(execErr.Error()), true
	}

	slog.Debug("Tool executed",
		"tool", name,
		"duration_ms", time.Since(start).Milliseconds())
	return result, false
}

func errorPayload(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}

// =============== Message Conversion ===============

// convertMessages flattens part-structured history into OpenAI chat
// messages. The system prompt, when present, leads the transcript.
func convertMessages(systemPrompt string, messages []datatypes.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case datatypes.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case datatypes.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}

		var texts []string
		for _, part := range msg.Parts {
			switch part.Type {
			case datatypes.PartTypeText:
				if part.Text != "" {
					texts = append(texts, part.Text)
				}
			case datatypes.PartTypeReasoning:
				// Reasoning is display-only and never replayed.
			case datatypes.PartTypeToolCall:
				// Historical tool traffic is summarized as text so a
				// stateless backend still sees what happened.
				if part.ToolName != "" {
					texts = append(texts, fmt.Sprintf("[called %s]", part.ToolName))
				}
			case datatypes.PartTypeToolResult:
				if part.Output != "" {
					texts = append(texts, fmt.Sprintf("[%s result] %s", part.ToolName, part.Output))
				}
			}
		}
		if len(texts) == 0 {
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: strings.Join(texts, " "),
		})
	}
	return out
}
