// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamescout-ai/gamescout/services/llm"
	"github.com/gamescout-ai/gamescout/services/orchestrator/datatypes"
	"github.com/gamescout-ai/gamescout/services/moderation"
	"github.com/gamescout-ai/gamescout/services/retrieval"
)

// =============== Mocks ===============

type mockGate struct {
	result moderation.Result
	err    error
	calls  int
}

func (m *mockGate) Moderate(ctx context.Context, text string) (moderation.Result, error) {
	m.calls++
	return m.result, m.err
}

type mockRetriever struct {
	hits     []retrieval.GameHit
	err      error
	calls    int
	gotQuery retrieval.Query
}

func (m *mockRetriever) Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.GameHit, error) {
	m.calls++
	m.gotQuery = q
	return m.hits, m.err
}

// scriptedLLM implements llm.LLMClient by replaying canned events and
// recording what it was called with.
type scriptedLLM struct {
	events      []llm.StreamEvent
	err         error
	calls       int
	gotParams   llm.GenerationParams
	gotMessages []datatypes.ChatMessage
}

var _ llm.LLMClient = (*scriptedLLM)(nil)

func (s *scriptedLLM) ChatStream(ctx context.Context, messages []datatypes.ChatMessage, params llm.GenerationParams, tools *llm.Registry, callback llm.StreamCallback) error {
	s.calls++
	s.gotParams = params
	s.gotMessages = messages
	for _, event := range s.events {
		if err := callback(event); err != nil {
			return err
		}
	}
	return s.err
}

// =============== Test Setup ===============

func chatBody(texts ...string) []byte {
	messages := make([]map[string]any, 0, len(texts))
	for _, text := range texts {
		messages = append(messages, map[string]any{
			"role": "user",
			"parts": []map[string]any{
				{"type": "text", "text": text},
			},
		})
	}
	body, _ := json.Marshal(map[string]any{"messages": messages})
	return body
}

func performChat(t *testing.T, handler ChatStreamHandler, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/chat", handler.HandleChatStream)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)
	return recorder
}

// =============== Constructor ===============

func TestNewChatStreamHandler_PanicsOnNilLLM(t *testing.T) {
	assert.Panics(t, func() {
		NewChatStreamHandler(&mockGate{}, &mockRetriever{}, nil, nil, "", 0)
	})
}

func TestNewChatStreamHandler_OptionalDepsMayBeNil(t *testing.T) {
	assert.NotPanics(t, func() {
		NewChatStreamHandler(nil, nil, &scriptedLLM{}, nil, "", 0)
	})
}

// =============== Bad Requests ===============

// TestHandleChatStream_MissingMessages verifies the exact 400 contract
// for absent or malformed messages.
func TestHandleChatStream_MissingMessages(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"empty object", []byte(`{}`)},
		{"not json", []byte(`this is not json`)},
		{"messages wrong shape", []byte(`{"messages": "nope"}`)},
		{"empty body", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llmClient := &scriptedLLM{}
			gate := &mockGate{}
			handler := NewChatStreamHandler(gate, &mockRetriever{}, llmClient, nil, "prompt", 0)

			recorder := performChat(t, handler, tt.body)

			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.Equal(t, "Bad request: missing messages", recorder.Body.String())
			assert.Equal(t, 0, gate.calls, "nothing downstream may run")
			assert.Equal(t, 0, llmClient.calls)
		})
	}
}

// TestHandleChatStream_EmptyMessagesArrayAccepted verifies a present
// but empty history still streams a model turn.
func TestHandleChatStream_EmptyMessagesArrayAccepted(t *testing.T) {
	llmClient := &scriptedLLM{events: textEvents("Hello!")}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, llmClient, nil, "prompt", 0)

	recorder := performChat(t, handler, []byte(`{"messages": []}`))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, llmClient.calls)
	events := parseSSEEvents(t, recorder.Body.String())
	assert.Equal(t, "start", events[0].Event)
	assert.Equal(t, "finish", events[len(events)-1].Event)
}

// TestHandleChatStream_OversizedPartRejected verifies validation
// failures are 400s too.
func TestHandleChatStream_OversizedPartRejected(t *testing.T) {
	big := make([]byte, 33*1024)
	for i := range big {
		big[i] = 'a'
	}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, &scriptedLLM{}, nil, "", 0)

	recorder := performChat(t, handler, chatBody(string(big)))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// =============== Moderation ===============

// TestHandleChatStream_DenialSequence verifies a flagged message
// streams exactly start, text-start, text-delta, text-end, finish
// with the denial text, and nothing downstream runs.
func TestHandleChatStream_DenialSequence(t *testing.T) {
	gate := &mockGate{result: moderation.Result{
		Flagged:       true,
		DenialMessage: "Your message violates the guidelines.",
	}}
	retriever := &mockRetriever{}
	llmClient := &scriptedLLM{}
	handler := NewChatStreamHandler(gate, retriever, llmClient, nil, "prompt", 0)

	recorder := performChat(t, handler, chatBody("something vile"))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))

	events := parseSSEEvents(t, recorder.Body.String())
	require.Len(t, events, 5)
	assert.Equal(t, "start", events[0].Event)
	assert.Equal(t, "text-start", events[1].Event)
	assert.Equal(t, "text-delta", events[2].Event)
	assert.Equal(t, "text-end", events[3].Event)
	assert.Equal(t, "finish", events[4].Event)
	assert.Equal(t, "Your message violates the guidelines.", decodeEvent(t, events[2]).Delta)

	assert.Equal(t, 0, retriever.calls, "no retrieval after denial")
	assert.Equal(t, 0, llmClient.calls, "no model call after denial")
}

// TestHandleChatStream_ModerationFailsOpen verifies a gate outage is
// survived: the turn continues as if the text were clean.
func TestHandleChatStream_ModerationFailsOpen(t *testing.T) {
	gate := &mockGate{err: &moderation.ServiceError{Err: fmt.Errorf("timeout")}}
	llmClient := &scriptedLLM{events: textEvents("still here")}
	handler := NewChatStreamHandler(gate, &mockRetriever{}, llmClient, nil, "prompt", 0)

	recorder := performChat(t, handler, chatBody("hello"))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, gate.calls)
	assert.Equal(t, 1, llmClient.calls, "model must still be invoked")

	events := parseSSEEvents(t, recorder.Body.String())
	assert.Equal(t, "finish", events[len(events)-1].Event)
}

// =============== Retrieval ===============

// TestHandleChatStream_ContextReachesSystemPrompt verifies assembled
// hits are appended to the system prompt.
func TestHandleChatStream_ContextReachesSystemPrompt(t *testing.T) {
	retriever := &mockRetriever{hits: []retrieval.GameHit{{
		ID:    "g-1",
		Score: 0.9,
		Metadata: map[string]any{
			"title":       "Stardew Valley",
			"description": "Cozy farming sim.",
		},
	}}}
	llmClient := &scriptedLLM{events: textEvents("Try Stardew Valley.")}
	handler := NewChatStreamHandler(&mockGate{}, retriever, llmClient, nil, "base prompt", 0)

	performChat(t, handler, chatBody("cozy games please"))

	require.Equal(t, 1, retriever.calls)
	assert.Equal(t, "cozy games please", retriever.gotQuery.Text)
	assert.Contains(t, llmClient.gotParams.SystemPrompt, "base prompt")
	assert.Contains(t, llmClient.gotParams.SystemPrompt, "Result 1: Stardew Valley")
}

// TestHandleChatStream_ExplicitRetrievalFields verifies the optional
// request fields override the derived defaults.
func TestHandleChatStream_ExplicitRetrievalFields(t *testing.T) {
	retriever := &mockRetriever{}
	llmClient := &scriptedLLM{events: textEvents("ok")}
	handler := NewChatStreamHandler(&mockGate{}, retriever, llmClient, nil, "p", 0)

	body, _ := json.Marshal(map[string]any{
		"messages": []map[string]any{{
			"role":  "user",
			"parts": []map[string]any{{"type": "text", "text": "hi"}},
		}},
		"retrieval_query": "roguelike deckbuilders",
		"top_k":           3,
		"experience_tags": []string{"strategic"},
	})
	performChat(t, handler, body)

	require.Equal(t, 1, retriever.calls)
	assert.Equal(t, "roguelike deckbuilders", retriever.gotQuery.Text)
	assert.Equal(t, 3, retriever.gotQuery.TopK)
	assert.Equal(t, []string{"strategic"}, retriever.gotQuery.AllowedTags)
}

// TestHandleChatStream_RetrievalFailureDowngrades verifies a broken
// retrieval pipeline never kills the turn.
func TestHandleChatStream_RetrievalFailureDowngrades(t *testing.T) {
	retriever := &mockRetriever{err: &retrieval.EmbeddingError{Message: "down"}}
	llmClient := &scriptedLLM{events: textEvents("no catalog today")}
	handler := NewChatStreamHandler(&mockGate{}, retriever, llmClient, nil, "base prompt", 0)

	recorder := performChat(t, handler, chatBody("anything"))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, llmClient.calls)
	assert.Equal(t, "base prompt", llmClient.gotParams.SystemPrompt, "no context block on failure")

	events := parseSSEEvents(t, recorder.Body.String())
	assert.Equal(t, "finish", events[len(events)-1].Event)
	for _, e := range events {
		assert.NotEqual(t, "error", e.Event, "retrieval failure is not a stream error")
	}
}

// TestHandleChatStream_NilRetrieverSkipsRetrieval covers lightweight
// deployments with no catalog.
func TestHandleChatStream_NilRetrieverSkipsRetrieval(t *testing.T) {
	llmClient := &scriptedLLM{events: textEvents("hi")}
	handler := NewChatStreamHandler(&mockGate{}, nil, llmClient, nil, "p", 0)

	recorder := performChat(t, handler, chatBody("hello"))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 1, llmClient.calls)
}

// =============== Streaming Relay ===============

// TestHandleChatStream_GenerationParams pins the model call contract:
// ten-step ceiling, serialized tools, low reasoning effort.
func TestHandleChatStream_GenerationParams(t *testing.T) {
	llmClient := &scriptedLLM{events: textEvents("ok")}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, llmClient, nil, "p", 0)

	performChat(t, handler, chatBody("hi"))

	assert.Equal(t, llm.DefaultMaxSteps, llmClient.gotParams.MaxSteps)
	assert.True(t, llmClient.gotParams.SerializeToolCalls)
	assert.Equal(t, "low", llmClient.gotParams.ReasoningEffort)
}

// TestHandleChatStream_TextRelay verifies text deltas arrive wrapped
// in one balanced part.
func TestHandleChatStream_TextRelay(t *testing.T) {
	llmClient := &scriptedLLM{events: textEvents("Try ", "Hades.")}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, llmClient, nil, "p", 0)

	recorder := performChat(t, handler, chatBody("action games"))

	events := parseSSEEvents(t, recorder.Body.String())
	types := eventTypes(events)
	assert.Equal(t, []string{"start", "text-start", "text-delta", "text-delta", "text-end", "finish"}, types)

	assert.Equal(t, "Try ", decodeEvent(t, events[2]).Delta)
	assert.Equal(t, "Hades.", decodeEvent(t, events[3]).Delta)

	partID := decodeEvent(t, events[1]).PartId
	assert.Equal(t, partID, decodeEvent(t, events[4]).PartId)
}

// TestHandleChatStream_ReasoningThenText verifies reasoning segments
// close before text opens.
func TestHandleChatStream_ReasoningThenText(t *testing.T) {
	llmClient := &scriptedLLM{events: []llm.StreamEvent{
		{Type: llm.EventReasoningDelta, Content: "thinking..."},
		{Type: llm.EventTextDelta, Content: "Answer."},
	}}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, llmClient, nil, "p", 0)

	recorder := performChat(t, handler, chatBody("hi"))

	types := eventTypes(parseSSEEvents(t, recorder.Body.String()))
	assert.Equal(t, []string{
		"start",
		"reasoning-start", "reasoning-delta", "reasoning-end",
		"text-start", "text-delta", "text-end",
		"finish",
	}, types)
}

// TestHandleChatStream_ToolTrafficRelay verifies tool calls and
// results appear between closed text parts, in order.
func TestHandleChatStream_ToolTrafficRelay(t *testing.T) {
	call := &llm.ToolInvocation{Name: "vector_database_search", Arguments: `{"query":"cozy"}`}
	result := &llm.ToolInvocation{Name: "vector_database_search", Output: `[]`}
	llmClient := &scriptedLLM{events: []llm.StreamEvent{
		{Type: llm.EventToolCall, ToolCall: call},
		{Type: llm.EventToolResult, ToolCall: result},
		{Type: llm.EventStepFinish},
		{Type: llm.EventTextDelta, Content: "Nothing matched, but"},
	}}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, llmClient, nil, "p", 0)

	recorder := performChat(t, handler, chatBody("cozy"))

	events := parseSSEEvents(t, recorder.Body.String())
	types := eventTypes(events)
	assert.Equal(t, []string{"start", "tool-call", "tool-result", "text-start", "text-delta", "text-end", "finish"}, types)

	toolCall := decodeEvent(t, events[1])
	assert.Equal(t, "vector_database_search", toolCall.ToolName)
	assert.Equal(t, `{"query":"cozy"}`, toolCall.ToolArgs)
}

// TestHandleChatStream_ModelFailureMidStream verifies partial output
// stands, an error event lands, and the stream still finishes.
func TestHandleChatStream_ModelFailureMidStream(t *testing.T) {
	llmClient := &scriptedLLM{
		events: textEvents("partial "),
		err:    &llm.ModelStreamError{Message: "connection reset"},
	}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, llmClient, nil, "p", 0)

	recorder := performChat(t, handler, chatBody("hi"))

	assert.Equal(t, http.StatusOK, recorder.Code, "headers were already sent")
	events := parseSSEEvents(t, recorder.Body.String())
	types := eventTypes(events)
	assert.Equal(t, []string{"start", "text-start", "text-delta", "text-end", "error", "finish"}, types)

	errEvent := decodeEvent(t, events[4])
	assert.Equal(t, "model stream interrupted", errEvent.Error)
	assert.NotContains(t, errEvent.Error, "connection reset", "provider detail stays server-side")
}

// TestHandleChatStream_SSEHeaders verifies the streaming headers on a
// live turn.
func TestHandleChatStream_SSEHeaders(t *testing.T) {
	llmClient := &scriptedLLM{events: textEvents("hi")}
	handler := NewChatStreamHandler(&mockGate{}, &mockRetriever{}, llmClient, nil, "p", 0)

	recorder := performChat(t, handler, chatBody("hi"))

	assert.Equal(t, "text/event-stream", recorder.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", recorder.Header().Get("Cache-Control"))
	assert.Equal(t, "no", recorder.Header().Get("X-Accel-Buffering"))
}

// =============== Helpers ===============

func textEvents(deltas ...string) []llm.StreamEvent {
	events := make([]llm.StreamEvent, 0, len(deltas))
	for _, d := range deltas {
		events = append(events, llm.StreamEvent{Type: llm.EventTextDelta, Content: d})
	}
	return events
}

func eventTypes(events []sseEvent) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.Event)
	}
	return types
}
