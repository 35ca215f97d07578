// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package moderation screens user text before it reaches the model.
package moderation

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("gamescout.moderation")

// DefaultDenialMessage is streamed verbatim when a message is flagged
// and no deployment-specific denial text is configured.
const DefaultDenialMessage = "Your message violates the guidelines."

// DefaultModel is the moderation model used when none is configured.
const DefaultModel = "omni-moderation-latest"

// Result is the outcome of screening one piece of text. Computed per
// request, never persisted.
type Result struct {
	Flagged       bool
	DenialMessage string
}

// Gate decides whether user text may proceed to the model.
//
// A returned error means the gate itself failed, not that the text was
// flagged. The caller decides the failure policy; the orchestrator
// fails open with a logged warning so a moderation outage does not
// take chat down with it.
type Gate interface {
	Moderate(ctx context.Context, text string) (Result, error)
}

// ServiceError wraps a moderation backend failure.
type ServiceError struct {
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("moderation service failed: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsServiceError reports whether err is a moderation backend failure.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// =============== OpenAI Gate ===============

// OpenAIGate screens text with the OpenAI moderation endpoint.
type OpenAIGate struct {
	client        *openai.Client
	model         string
	denialMessage string
}

var _ Gate = (*OpenAIGate)(nil)

// NewOpenAIGate builds a gate around an OpenAI client. Empty model or
// denialMessage fall back to the package defaults. Panics when client
// is nil.
func NewOpenAIGate(client *openai.Client, model, denialMessage string) *OpenAIGate {
	if client == nil {
		panic("moderation: NewOpenAIGate requires a non-nil client")
	}
	if model == "" {
		model = DefaultModel
	}
	if denialMessage == "" {
		denialMessage = DefaultDenialMessage
	}
	return &OpenAIGate{client: client, model: model, denialMessage: denialMessage}
}

// Moderate screens text.
//
// # Description
//
//	Empty text is vacuously clean and skips the API call entirely.
//	Otherwise one moderation request is made; a flagged verdict comes
//	back with the configured denial message attached.
//
// # Outputs
//   - Result: the verdict. Zero value on error.
//   - error: *ServiceError when the moderation call itself failed.
func (g *OpenAIGate) Moderate(ctx context.Context, text string) (Result, error) {
	ctx, span := tracer.Start(ctx, "moderation.Moderate")
	defer span.End()
	span.SetAttributes(attribute.Int("text.length", len(text)))

	if text == "" {
		return Result{}, nil
	}

	resp, err := g.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: g.model,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "moderation request failed")
		return Result{}, &ServiceError{Err: err}
	}
	if len(resp.Results) == 0 {
		err := &ServiceError{Err: errors.New("moderation response carried no results")}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	flagged := resp.Results[0].Flagged
	span.SetAttributes(attribute.Bool("moderation.flagged", flagged))
	if !flagged {
		return Result{}, nil
	}
	return Result{Flagged: true, DenialMessage: g.denialMessage}, nil
}
