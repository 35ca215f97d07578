// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============== Limits ===============

const (
	// MaxMessagesPerRequest bounds the conversation history a single
	// request may carry.
	MaxMessagesPerRequest = 100

	// MaxPartContentBytes bounds the byte length of a single content
	// part's text payload.
	MaxPartContentBytes = 32 * 1024

	// DefaultTopK is the number of catalog hits retrieved when the
	// request does not ask for a specific count.
	DefaultTopK = 6

	// MaxTopK caps the number of catalog hits a request may ask for.
	MaxTopK = 50
)

// =============== Roles and Part Types ===============

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PartType discriminates the content part union. The set is closed:
// validation rejects any other value.
type PartType string

const (
	PartTypeText       PartType = "text"
	PartTypeReasoning  PartType = "reasoning"
	PartTypeToolCall   PartType = "tool-call"
	PartTypeToolResult PartType = "tool-result"
)

// =============== Content Parts ===============

// ContentPart is one element of a message body. The Type field selects
// which of the remaining fields are meaningful:
//
//   - text:        Text
//   - reasoning:   Text, Streaming
//   - tool-call:   ToolName, Args
//   - tool-result: ToolName, Output, IsError
type ContentPart struct {
	Type      PartType        `json:"type" validate:"required"`
	Text      string          `json:"text,omitempty" validate:"maxbytes"`
	Streaming bool            `json:"streaming,omitempty"`
	ToolName  string          `json:"toolName,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Output    string          `json:"output,omitempty" validate:"maxbytes"`
	IsError   bool            `json:"isError,omitempty"`
}

// ChatMessage is one turn in the conversation.
type ChatMessage struct {
	Role  Role          `json:"role" validate:"required,oneof=system user assistant"`
	Parts []ContentPart `json:"parts" validate:"required,dive"`
}

// ChatStreamRequest is the body of POST /api/chat.
//
// Messages is required. A request whose body omits the field entirely
// (or is not valid JSON) is rejected before any moderation or
// retrieval work happens. An empty-but-present array is accepted.
type ChatStreamRequest struct {
	Messages       []ChatMessage `json:"messages" validate:"max=100,dive"`
	RetrievalQuery string        `json:"retrieval_query,omitempty"`
	TopK           int           `json:"top_k,omitempty" validate:"gte=0,lte=50"`
	ExperienceTags []string      `json:"experience_tags,omitempty"`

	// ExperienceFilter is the single-tag form of ExperienceTags kept
	// for older clients; EnsureDefaults folds it into the set.
	ExperienceFilter string `json:"experience_filter,omitempty"`
}

// =============== Validation ===============

var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	// maxbytes guards raw byte length; validator's max counts runes.
	_ = chatValidate.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= MaxPartContentBytes
	})
}

// Validate checks structural limits and the part-type union.
//
// # Description
//
//	Runs tag validation (role enum, message count, per-part byte
//	limits) and then verifies every part's Type is a member of the
//	closed part-type set. Returns the first violation found.
//
// # Outputs
//   - error: nil when the request is well formed.
func (r *ChatStreamRequest) Validate() error {
	if err := chatValidate.Struct(r); err != nil {
		return err
	}
	for i, msg := range r.Messages {
		for j, part := range msg.Parts {
			switch part.Type {
			case PartTypeText, PartTypeReasoning, PartTypeToolCall, PartTypeToolResult:
			default:
				return fmt.Errorf("messages[%d].parts[%d]: unknown part type %q", i, j, part.Type)
			}
		}
	}
	return nil
}

// EnsureDefaults fills in server-side defaults for optional fields and
// folds the legacy single-tag filter into the tag set.
func (r *ChatStreamRequest) EnsureDefaults() {
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.TopK > MaxTopK {
		r.TopK = MaxTopK
	}
	if r.ExperienceFilter != "" && !slices.Contains(r.ExperienceTags, r.ExperienceFilter) {
		r.ExperienceTags = append(r.ExperienceTags, r.ExperienceFilter)
	}
}

// =============== Helpers ===============

// LatestUserText returns the text of the most recent user message,
// built by concatenating its text parts in order with a single space.
// Non-text parts are ignored. Returns "" when no user message exists
// or the latest one carries no text parts.
func LatestUserText(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != RoleUser {
			continue
		}
		var texts []string
		for _, part := range messages[i].Parts {
			if part.Type == PartTypeText && part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		return strings.Join(texts, " ")
	}
	return ""
}
