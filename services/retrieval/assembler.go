// Copyright (C) 2025 GameScout AI (dev@gamescout.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package retrieval

import (
	"fmt"
	"strings"
)

// AssembleContext renders retrieved hits into the plain-text block the
// model receives alongside the system prompt.
//
// # Description
//
//	Each hit becomes one labeled block in input order:
//
//	  Result 1: Stardew Valley
//	  Why: Cozy farming sim with gentle pacing.
//	  Warnings:
//	  URL: https://example.com/stardew
//
//	Titles fall back through title, name, then "Game <id>".
//	Descriptions fall back through description, whyRecommended, then
//	summary, with runs of whitespace collapsed to single spaces.
//	Warnings are comma-joined and empty when the hit carries none.
//	Blocks are separated by one blank line. No hits renders "".
//
// # Inputs
//   - hits: scored catalog hits, already ordered best-first.
//
// # Outputs
//   - string: the assembled context block, or "" for zero hits.
//
// # Assumptions
//   - The function is pure: same hits in, same text out, no
//     reordering, and hits are never mutated.
func AssembleContext(hits []GameHit) string {
	if len(hits) == 0 {
		return ""
	}

	blocks := make([]string, 0, len(hits))
	for i, hit := range hits {
		var b strings.Builder
		fmt.Fprintf(&b, "Result %d: %s\n", i+1, resolveTitle(hit))
		fmt.Fprintf(&b, "Why: %s\n", resolveDescription(hit))
		fmt.Fprintf(&b, "Warnings: %s\n", resolveWarnings(hit))
		fmt.Fprintf(&b, "URL: %s", resolveURL(hit))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func resolveTitle(hit GameHit) string {
	if title := metadataString(hit.Metadata, "title", "name"); title != "" {
		return normalizeWhitespace(title)
	}
	return fmt.Sprintf("Game %s", hit.ID)
}

func resolveDescription(hit GameHit) string {
	return normalizeWhitespace(metadataString(hit.Metadata,
		"description", "whyRecommended", "why_recommended", "summary"))
}

func resolveWarnings(hit GameHit) string {
	warnings := metadataStrings(hit.Metadata, "contentWarnings", "content_warnings")
	cleaned := make([]string, 0, len(warnings))
	for _, w := range warnings {
		if w = normalizeWhitespace(w); w != "" {
			cleaned = append(cleaned, w)
		}
	}
	return strings.Join(cleaned, ", ")
}

func resolveURL(hit GameHit) string {
	return metadataString(hit.Metadata, "sourceUrl", "source_url", "url", "link")
}

// normalizeWhitespace collapses any whitespace run to a single space
// and trims the ends.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
