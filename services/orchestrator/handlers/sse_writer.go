// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gamescout-ai/gamescout/services/orchestrator/datatypes"
)

// =============== SSE Writer Interface ===============

// SSEWriter emits server-sent events for one chat stream. All methods
// are safe for concurrent use; the keepalive goroutine shares the
// writer with the relay loop.
type SSEWriter interface {
	WriteStart() error
	WriteTextStart(partID string) error
	WriteTextDelta(partID, delta string) error
	WriteTextEnd(partID string) error
	WriteReasoningStart(partID string) error
	WriteReasoningDelta(partID, delta string) error
	WriteReasoningEnd(partID string) error
	WriteToolCall(name, args string) error
	WriteToolResult(name, output string, isError bool) error
	WriteStreamError(message string) error
	WriteFinish() error
	WriteKeepAlive() error

	// WriteDenial emits the fixed five-event denial sequence: start,
	// text-start, the full denial text as a single delta, text-end,
	// finish. The caller's rendering path is identical to a live
	// stream's.
	WriteDenial(message string) error
}

// =============== Implementation ===============

type sseWriter struct {
	mu       sync.Mutex
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
}

var _ SSEWriter = (*sseWriter)(nil)

// NewSSEWriter wraps a ResponseWriter for SSE output. Returns an error
// when the writer cannot flush, since buffered SSE defeats streaming.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// SetSSEHeaders configures the response for event streaming. Must run
// before the first write. X-Accel-Buffering disables proxy buffering
// in nginx-style front ends.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeEvent stamps identity and chain metadata, serializes, and
// flushes one event.
func (s *sseWriter) writeEvent(event datatypes.StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.Id = uuid.NewString()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = s.prevHash
	event.Hash = computeEventHash(event)
	s.prevHash = event.Hash

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	if _, err := fmt.Fprintf(s.writer, "event: %s\ndata: %s\n\n", event.Type, payload); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// computeEventHash hashes the chain-relevant fields, pipe-joined, with
// SHA-256. PrevHash participates so the chain breaks on any dropped or
// reordered event.
func computeEventHash(event datatypes.StreamEvent) string {
	material := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d|%s",
		event.Type, event.Id, event.PartId, event.Delta,
		event.ToolName, event.Output, event.CreatedAt, event.PrevHash)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

func (s *sseWriter) WriteStart() error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventStart})
}

func (s *sseWriter) WriteTextStart(partID string) error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventTextStart, PartId: partID})
}

func (s *sseWriter) WriteTextDelta(partID, delta string) error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventTextDelta, PartId: partID, Delta: delta})
}

func (s *sseWriter) WriteTextEnd(partID string) error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventTextEnd, PartId: partID})
}

func (s *sseWriter) WriteReasoningStart(partID string) error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventReasoningStart, PartId: partID})
}

func (s *sseWriter) WriteReasoningDelta(partID, delta string) error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventReasoningDelta, PartId: partID, Delta: delta})
}

func (s *sseWriter) WriteReasoningEnd(partID string) error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventReasoningEnd, PartId: partID})
}

func (s *sseWriter) WriteToolCall(name, args string) error {
	return s.writeEvent(datatypes.StreamEvent{
		Type:     datatypes.StreamEventToolCall,
		ToolName: name,
		ToolArgs: args,
	})
}

func (s *sseWriter) WriteToolResult(name, output string, isError bool) error {
	return s.writeEvent(datatypes.StreamEvent{
		Type:     datatypes.StreamEventToolResult,
		ToolName: name,
		Output:   output,
		IsError:  isError,
	})
}

func (s *sseWriter) WriteStreamError(message string) error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventError, Error: message})
}

func (s *sseWriter) WriteFinish() error {
	return s.writeEvent(datatypes.StreamEvent{Type: datatypes.StreamEventFinish})
}

// WriteKeepAlive emits an SSE comment line. Comments keep idle proxies
// from dropping the connection and are invisible to event parsers.
func (s *sseWriter) WriteKeepAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) WriteDenial(message string) error {
	partID := uuid.NewString()
	if err := s.WriteStart(); err != nil {
		return err
	}
	if err := s.WriteTextStart(partID); err != nil {
		return err
	}
	if err := s.WriteTextDelta(partID, message); err != nil {
		return err
	}
	if err := s.WriteTextEnd(partID); err != nil {
		return err
	}
	return s.WriteFinish()
}
