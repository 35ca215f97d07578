// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userText(texts ...string) ChatMessage {
	parts := make([]ContentPart, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, ContentPart{Type: PartTypeText, Text: t})
	}
	return ChatMessage{Role: RoleUser, Parts: parts}
}

// TestLatestUserText_JoinsTextParts verifies that multiple text parts
// of the latest user message join with a single space.
func TestLatestUserText_JoinsTextParts(t *testing.T) {
	messages := []ChatMessage{
		userText("older message"),
		{Role: RoleAssistant, Parts: []ContentPart{{Type: PartTypeText, Text: "assistant reply"}}},
		userText("cozy", "farming", "games"),
	}

	assert.Equal(t, "cozy farming games", LatestUserText(messages))
}

// TestLatestUserText_IgnoresNonTextParts verifies reasoning and tool
// parts never leak into the moderation/retrieval text.
func TestLatestUserText_IgnoresNonTextParts(t *testing.T) {
	messages := []ChatMessage{
		{Role: RoleUser, Parts: []ContentPart{
			{Type: PartTypeReasoning, Text: "hidden reasoning"},
			{Type: PartTypeText, Text: "visible"},
			{Type: PartTypeToolResult, ToolName: "web_search", Output: "tool output"},
		}},
	}

	assert.Equal(t, "visible", LatestUserText(messages))
}

// TestLatestUserText_NoUserMessage verifies the empty-history and
// assistant-only cases yield "".
func TestLatestUserText_NoUserMessage(t *testing.T) {
	assert.Empty(t, LatestUserText(nil))
	assert.Empty(t, LatestUserText([]ChatMessage{
		{Role: RoleAssistant, Parts: []ContentPart{{Type: PartTypeText, Text: "hi"}}},
	}))
}

// TestLatestUserText_LatestUserHasNoText verifies a user message with
// only non-text parts yields "" rather than falling back to an older
// user message.
func TestLatestUserText_LatestUserHasNoText(t *testing.T) {
	messages := []ChatMessage{
		userText("old text"),
		{Role: RoleUser, Parts: []ContentPart{{Type: PartTypeReasoning, Text: "r"}}},
	}

	assert.Empty(t, LatestUserText(messages))
}

// TestChatStreamRequest_Validate covers the part-type union and
// structural limits.
func TestChatStreamRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ChatStreamRequest
		wantErr bool
	}{
		{
			name: "valid request",
			req: ChatStreamRequest{
				Messages: []ChatMessage{userText("hello")},
			},
		},
		{
			name:    "empty messages allowed",
			req:     ChatStreamRequest{Messages: []ChatMessage{}},
			wantErr: false,
		},
		{
			name: "unknown part type rejected",
			req: ChatStreamRequest{
				Messages: []ChatMessage{{
					Role:  RoleUser,
					Parts: []ContentPart{{Type: "image", Text: "x"}},
				}},
			},
			wantErr: true,
		},
		{
			name: "bad role rejected",
			req: ChatStreamRequest{
				Messages: []ChatMessage{{
					Role:  "developer",
					Parts: []ContentPart{{Type: PartTypeText, Text: "x"}},
				}},
			},
			wantErr: true,
		},
		{
			name: "oversized part rejected",
			req: ChatStreamRequest{
				Messages: []ChatMessage{userText(strings.Repeat("a", MaxPartContentBytes+1))},
			},
			wantErr: true,
		},
		{
			name: "top_k above cap rejected",
			req: ChatStreamRequest{
				Messages: []ChatMessage{userText("x")},
				TopK:     MaxTopK + 1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestChatStreamRequest_ValidateTooManyMessages verifies the history
// cap.
func TestChatStreamRequest_ValidateTooManyMessages(t *testing.T) {
	messages := make([]ChatMessage, MaxMessagesPerRequest+1)
	for i := range messages {
		messages[i] = userText("m")
	}

	err := (&ChatStreamRequest{Messages: messages}).Validate()
	assert.Error(t, err)
}

// TestChatStreamRequest_EnsureDefaults verifies top-k defaulting and
// clamping.
func TestChatStreamRequest_EnsureDefaults(t *testing.T) {
	req := ChatStreamRequest{}
	req.EnsureDefaults()
	assert.Equal(t, DefaultTopK, req.TopK)

	req = ChatStreamRequest{TopK: 12}
	req.EnsureDefaults()
	assert.Equal(t, 12, req.TopK)

	req = ChatStreamRequest{TopK: 500}
	req.EnsureDefaults()
	assert.Equal(t, MaxTopK, req.TopK)
}

// TestChatStreamRequest_ExperienceFilterFoldsIntoTags covers the
// single-tag request field older clients still send.
func TestChatStreamRequest_ExperienceFilterFoldsIntoTags(t *testing.T) {
	req := ChatStreamRequest{ExperienceFilter: "cozy"}
	req.EnsureDefaults()
	assert.Equal(t, []string{"cozy"}, req.ExperienceTags)

	req = ChatStreamRequest{ExperienceTags: []string{"cozy", "chill"}, ExperienceFilter: "cozy"}
	req.EnsureDefaults()
	assert.Equal(t, []string{"cozy", "chill"}, req.ExperienceTags)

	req = ChatStreamRequest{ExperienceTags: []string{"chill"}, ExperienceFilter: "cozy"}
	req.EnsureDefaults()
	assert.Equal(t, []string{"chill", "cozy"}, req.ExperienceTags)
}

// TestChatStreamRequest_MissingVersusEmptyMessages verifies the JSON
// distinction the handler relies on: a missing field decodes to a nil
// slice, a present-but-empty array to a non-nil one.
func TestChatStreamRequest_MissingVersusEmptyMessages(t *testing.T) {
	var missing ChatStreamRequest
	require.NoError(t, json.Unmarshal([]byte(`{}`), &missing))
	assert.Nil(t, missing.Messages)

	var empty ChatStreamRequest
	require.NoError(t, json.Unmarshal([]byte(`{"messages": []}`), &empty))
	assert.NotNil(t, empty.Messages)
	assert.Empty(t, empty.Messages)
}
