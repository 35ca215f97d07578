// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts streaming chat completion backends.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/gamescout-ai/gamescout/services/orchestrator/datatypes"
)

// =============== Stream Events ===============

// StreamEventType tags events delivered through a StreamCallback.
type StreamEventType string

const (
	// EventTextDelta carries a chunk of visible answer text.
	EventTextDelta StreamEventType = "text-delta"

	// EventReasoningDelta carries a chunk of model reasoning, when the
	// provider exposes it.
	EventReasoningDelta StreamEventType = "reasoning-delta"

	// EventToolCall announces that the model requested a tool, before
	// the tool runs.
	EventToolCall StreamEventType = "tool-call"

	// EventToolResult carries the tool's output (or error payload)
	// after execution.
	EventToolResult StreamEventType = "tool-result"

	// EventStepFinish marks the end of one model step when the model
	// is about to take another (it requested tools).
	EventStepFinish StreamEventType = "step-finish"
)

// ToolInvocation describes one tool call and, on EventToolResult, its
// outcome.
type ToolInvocation struct {
	ID        string
	Name      string
	Arguments string
	Output    string
	IsError   bool
}

// StreamEvent is one incremental item from a chat stream.
type StreamEvent struct {
	Type     StreamEventType
	Content  string
	ToolCall *ToolInvocation
}

// StreamCallback receives stream events in production order. Returning
// an error aborts the stream.
type StreamCallback func(event StreamEvent) error

// =============== Generation Parameters ===============

// DefaultMaxSteps is the hard ceiling on model steps per request. Each
// round of tool calls consumes a step; the ceiling keeps a model that
// will not stop calling tools from streaming forever.
const DefaultMaxSteps = 10

// GenerationParams tunes one streaming call. Pointer fields mean "use
// the backend default".
type GenerationParams struct {
	SystemPrompt string

	// MaxSteps caps model steps; <= 0 means DefaultMaxSteps.
	MaxSteps int

	// SerializeToolCalls forces tools to execute one at a time so side
	// effects land in the order the model narrates them.
	SerializeToolCalls bool

	// ReasoningEffort passes through to reasoning-capable models
	// ("low", "medium", "high"). Empty omits the field.
	ReasoningEffort string

	Temperature *float32
	MaxTokens   *int
}

// =============== Client Interface ===============

// LLMClient streams one chat completion, running registered tools as
// the model requests them.
type LLMClient interface {
	// ChatStream converts messages to the backend's native shape,
	// streams the completion, and invokes callback for every event.
	// Blocks until the stream finishes, the step ceiling is reached,
	// or ctx is done.
	ChatStream(ctx context.Context, messages []datatypes.ChatMessage, params GenerationParams, tools *Registry, callback StreamCallback) error
}

// =============== Errors ===============

// ModelStreamError reports a failure establishing or reading the
// model stream.
type ModelStreamError struct {
	Message string
	Err     error
}

func (e *ModelStreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model stream failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("model stream failed: %s", e.Message)
}

func (e *ModelStreamError) Unwrap() error { return e.Err }

// IsModelStreamError reports whether err is a model stream failure.
func IsModelStreamError(err error) bool {
	var mse *ModelStreamError
	return errors.As(err, &mse)
}
