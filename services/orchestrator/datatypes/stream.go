// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// StreamEventType names the wire-level SSE event kinds emitted while a
// chat response streams.
type StreamEventType string

const (
	StreamEventStart          StreamEventType = "start"
	StreamEventTextStart      StreamEventType = "text-start"
	StreamEventTextDelta      StreamEventType = "text-delta"
	StreamEventTextEnd        StreamEventType = "text-end"
	StreamEventReasoningStart StreamEventType = "reasoning-start"
	StreamEventReasoningDelta StreamEventType = "reasoning-delta"
	StreamEventReasoningEnd   StreamEventType = "reasoning-end"
	StreamEventToolCall       StreamEventType = "tool-call"
	StreamEventToolResult     StreamEventType = "tool-result"
	StreamEventError          StreamEventType = "error"
	StreamEventFinish         StreamEventType = "finish"
)

// StreamEvent is one SSE payload. Every event carries identity and
// integrity metadata: Hash chains to PrevHash so the client can verify
// no event was dropped or reordered in transit.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Id        string          `json:"id"`
	PartId    string          `json:"part_id,omitempty"`
	Delta     string          `json:"delta,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolArgs  string          `json:"tool_args,omitempty"`
	Output    string          `json:"output,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt int64           `json:"created_at"`
	Hash      string          `json:"hash,omitempty"`
	PrevHash  string          `json:"prev_hash,omitempty"`
}
